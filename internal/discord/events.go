package discord

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

func (c *Client) onReady(s *discordgo.Session, r *discordgo.Ready) {
	ctx, h := c.eventContext()
	slog.Info("Discord ready", "user", r.User.Username, "guilds", len(r.Guilds))
	if c.qrWriter != nil {
		PrintInviteQR(c.qrWriter, InviteURL(r.User.ID, DefaultInvitePermissions))
	}
	if h != nil {
		h.Connected(ctx)
	}
}

func (c *Client) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	ctx, h := c.eventContext()
	if h == nil || m.Message == nil {
		return
	}
	msg := toMessage(m.Message)
	if m.Member != nil && m.Author != nil {
		member := *m.Member
		member.User = m.Author
		msg.Author = toMember(m.GuildID, &member)
	}
	h.MessageCreated(ctx, msg)
}

func (c *Client) onMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	ctx, h := c.eventContext()
	if h == nil {
		return
	}
	if u := toMember(m.GuildID, m.Member); u != nil {
		h.MemberJoined(ctx, u)
	}
}

func (c *Client) onMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	ctx, h := c.eventContext()
	if h == nil {
		return
	}
	if u := toMember(m.GuildID, m.Member); u != nil {
		h.MemberLeft(ctx, u)
	}
}

func (c *Client) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, h := c.eventContext()
	if h == nil || i.Type != discordgo.InteractionMessageComponent {
		return
	}
	h.InteractionCreated(ctx, toInteraction(i.Interaction))
}
