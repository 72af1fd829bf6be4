package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
)

func toUser(u *discordgo.User) *platform.User {
	if u == nil {
		return nil
	}
	return &platform.User{
		ID:         models.Snowflake(u.ID),
		Name:       u.Username,
		GlobalName: u.GlobalName,
		Bot:        u.Bot,
		AvatarURL:  u.AvatarURL(""),
		Mention:    u.Mention(),
	}
}

// toMember flattens a guild member into a user carrying the member fields.
func toMember(guildID string, m *discordgo.Member) *platform.User {
	if m == nil || m.User == nil {
		return nil
	}
	u := toUser(m.User)
	u.GuildID = models.Snowflake(guildID)
	u.Nick = m.Nick
	u.JoinedAt = m.JoinedAt
	for _, r := range m.Roles {
		u.Roles = append(u.Roles, models.Snowflake(r))
	}
	return u
}

func toRole(guildID string, r *discordgo.Role) *platform.Role {
	return &platform.Role{
		ID:          models.Snowflake(r.ID),
		GuildID:     models.Snowflake(guildID),
		Name:        r.Name,
		Color:       r.Color,
		Position:    r.Position,
		Hoist:       r.Hoist,
		Mentionable: r.Mentionable,
		Managed:     r.Managed,
		Mention:     r.Mention(),
	}
}

func toChannel(c *discordgo.Channel) *platform.Channel {
	return &platform.Channel{
		ID:       models.Snowflake(c.ID),
		GuildID:  models.Snowflake(c.GuildID),
		Name:     c.Name,
		Topic:    c.Topic,
		Type:     int(c.Type),
		NSFW:     c.NSFW,
		Position: c.Position,
		Mention:  c.Mention(),
	}
}

func toGuild(g *discordgo.Guild) *platform.Guild {
	count := g.MemberCount
	if count == 0 {
		count = len(g.Members)
	}
	return &platform.Guild{
		ID:           models.Snowflake(g.ID),
		Name:         g.Name,
		OwnerID:      models.Snowflake(g.OwnerID),
		Description:  g.Description,
		IconURL:      g.IconURL(""),
		MemberCount:  count,
		RoleCount:    len(g.Roles),
		ChannelCount: len(g.Channels),
		EmojiCount:   len(g.Emojis),
	}
}

func toEmoji(guildID string, e *discordgo.Emoji) *platform.Emoji {
	return &platform.Emoji{
		ID:       models.Snowflake(e.ID),
		GuildID:  models.Snowflake(guildID),
		Name:     e.Name,
		Animated: e.Animated,
	}
}

func toMessage(m *discordgo.Message) *platform.Message {
	msg := &platform.Message{
		ID:          models.Snowflake(m.ID),
		ChannelID:   models.Snowflake(m.ChannelID),
		GuildID:     models.Snowflake(m.GuildID),
		Author:      toUser(m.Author),
		Content:     m.Content,
		HasControls: len(m.Components) > 0,
		Timestamp:   m.Timestamp,
	}
	for _, e := range m.Embeds {
		msg.Embeds = append(msg.Embeds, toEmbed(e))
	}
	return msg
}

func toEmbed(e *discordgo.MessageEmbed) platform.Embed {
	out := platform.Embed{
		Title:       e.Title,
		Type:        string(e.Type),
		URL:         e.URL,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.Thumbnail != nil {
		out.Thumbnail = e.Thumbnail.URL
	}
	if e.Footer != nil {
		out.Footer = &platform.EmbedFooter{Text: e.Footer.Text, IconURL: e.Footer.IconURL}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, platform.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}

func fromEmbeds(embeds []platform.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(embeds))
	for _, e := range embeds {
		me := &discordgo.MessageEmbed{
			Title:       e.Title,
			Type:        discordgo.EmbedTypeRich,
			URL:         e.URL,
			Description: e.Description,
			Color:       e.Color,
		}
		if e.Type != "" {
			me.Type = discordgo.EmbedType(e.Type)
		}
		if e.Thumbnail != "" {
			me.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
		}
		if e.Footer != nil {
			me.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer.Text, IconURL: e.Footer.IconURL}
		}
		for _, f := range e.Fields {
			me.Fields = append(me.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		out = append(out, me)
	}
	return out
}

var buttonStyles = map[platform.ButtonStyle]discordgo.ButtonStyle{
	platform.ButtonPrimary:   discordgo.PrimaryButton,
	platform.ButtonSecondary: discordgo.SecondaryButton,
	platform.ButtonSuccess:   discordgo.SuccessButton,
	platform.ButtonDanger:    discordgo.DangerButton,
	platform.ButtonLink:      discordgo.LinkButton,
}

func componentEmoji(e *platform.Emoji) *discordgo.ComponentEmoji {
	if e == nil {
		return nil
	}
	return &discordgo.ComponentEmoji{ID: string(e.ID), Name: e.Name, Animated: e.Animated}
}

// maxRows and maxRowWidth are the platform's component layout limits.
const (
	maxRows     = 5
	maxRowWidth = 5
)

// components lays controls out in action rows. Controls go to the row they
// ask for; a full row spills into the next one. A select menu fills a row on
// its own.
func components(spec platform.MessageSpec) []discordgo.MessageComponent {
	if !spec.HasControls() {
		return []discordgo.MessageComponent{}
	}
	rows := make([][]discordgo.MessageComponent, maxRows)
	full := make([]bool, maxRows)
	place := func(row int, c discordgo.MessageComponent, exclusive bool) {
		row = min(max(row, 0), maxRows-1)
		for r := row; r < maxRows; r++ {
			if full[r] || (exclusive && len(rows[r]) > 0) {
				continue
			}
			rows[r] = append(rows[r], c)
			full[r] = exclusive || len(rows[r]) >= maxRowWidth
			return
		}
	}

	for _, m := range spec.Selects {
		menu := discordgo.SelectMenu{
			MenuType:    discordgo.StringSelectMenu,
			CustomID:    m.CustomID,
			Placeholder: m.Placeholder,
			MinValues:   &m.MinValues,
			MaxValues:   m.MaxValues,
			Disabled:    m.Disabled,
		}
		for _, o := range m.Options {
			menu.Options = append(menu.Options, discordgo.SelectMenuOption{
				Label:       o.Label,
				Value:       o.Value,
				Description: o.Description,
				Emoji:       componentEmoji(o.Emoji),
				Default:     o.Default,
			})
		}
		place(m.Row, menu, true)
	}
	for _, b := range spec.Buttons {
		place(b.Row, discordgo.Button{
			Label:    b.Label,
			Style:    buttonStyles[b.Style],
			Disabled: b.Disabled,
			Emoji:    componentEmoji(b.Emoji),
			URL:      b.URL,
			CustomID: b.CustomID,
		}, false)
	}

	out := []discordgo.MessageComponent{}
	for _, r := range rows {
		if len(r) > 0 {
			out = append(out, discordgo.ActionsRow{Components: r})
		}
	}
	return out
}

func messageFlags(spec platform.MessageSpec) discordgo.MessageFlags {
	var flags discordgo.MessageFlags
	if spec.SuppressEmbeds {
		flags |= discordgo.MessageFlagsSuppressEmbeds
	}
	if spec.Silent {
		flags |= discordgo.MessageFlagsSuppressNotifications
	}
	if spec.Ephemeral {
		flags |= discordgo.MessageFlagsEphemeral
	}
	return flags
}

var componentTypes = map[discordgo.ComponentType]string{
	discordgo.ButtonComponent:     "button",
	discordgo.SelectMenuComponent: "select",
}

func toInteraction(i *discordgo.Interaction) *platform.Interaction {
	data := i.MessageComponentData()
	out := &platform.Interaction{
		ID:            i.ID,
		Token:         i.Token,
		AppID:         models.Snowflake(i.AppID),
		CustomID:      data.CustomID,
		ComponentType: componentTypes[data.ComponentType],
		Values:        data.Values,
		ChannelID:     models.Snowflake(i.ChannelID),
		GuildID:       models.Snowflake(i.GuildID),
		Raw:           i,
	}
	if i.Message != nil {
		out.MessageID = models.Snowflake(i.Message.ID)
	}
	if i.Member != nil {
		out.User = toMember(i.GuildID, i.Member)
	} else {
		out.User = toUser(i.User)
	}
	if created, err := discordgo.SnowflakeTimestamp(i.ID); err == nil {
		out.CreatedAt = created
	}
	return out
}
