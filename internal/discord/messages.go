package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
)

func reasonOption(reason string) []discordgo.RequestOption {
	if reason == "" {
		return nil
	}
	return []discordgo.RequestOption{discordgo.WithAuditLogReason(reason)}
}

func (c *Client) AddRoles(ctx context.Context, guildID, userID models.Snowflake, roles []models.Snowflake, reason string) error {
	var errs []error
	opts := append(reasonOption(reason), discordgo.WithContext(ctx))
	for _, r := range roles {
		if err := c.session.GuildMemberRoleAdd(string(guildID), string(userID), string(r), opts...); err != nil {
			errs = append(errs, fmt.Errorf("add role %s: %w", r, classify(err)))
		}
	}
	slog.Debug("Discord AddRoles", "guild", guildID, "user", userID, "count", len(roles), "failed", len(errs))
	return errors.Join(errs...)
}

func (c *Client) RemoveRoles(ctx context.Context, guildID, userID models.Snowflake, roles []models.Snowflake, reason string) error {
	var errs []error
	opts := append(reasonOption(reason), discordgo.WithContext(ctx))
	for _, r := range roles {
		if err := c.session.GuildMemberRoleRemove(string(guildID), string(userID), string(r), opts...); err != nil {
			errs = append(errs, fmt.Errorf("remove role %s: %w", r, classify(err)))
		}
	}
	slog.Debug("Discord RemoveRoles", "guild", guildID, "user", userID, "count", len(roles), "failed", len(errs))
	return errors.Join(errs...)
}

func (c *Client) SendMessage(ctx context.Context, channelID models.Snowflake, spec platform.MessageSpec) (*platform.Message, error) {
	send := &discordgo.MessageSend{
		Content:    spec.Content,
		Embeds:     fromEmbeds(spec.Embeds),
		TTS:        spec.TTS,
		Components: components(spec),
		Flags:      messageFlags(spec) &^ discordgo.MessageFlagsEphemeral,
	}
	m, err := c.session.ChannelMessageSendComplex(string(channelID), send, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("send message to %s: %w", channelID, classify(err))
	}
	if spec.DeleteAfter > 0 {
		c.deleteAfter(spec.DeleteAfter, func() error {
			return c.session.ChannelMessageDelete(m.ChannelID, m.ID)
		})
	}
	return toMessage(m), nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID models.Snowflake, spec platform.MessageSpec) (*platform.Message, error) {
	comps := components(spec)
	edit := discordgo.NewMessageEdit(string(channelID), string(messageID)).
		SetContent(spec.Content).
		SetEmbeds(fromEmbeds(spec.Embeds))
	edit.Components = &comps
	m, err := c.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("edit message %s: %w", messageID, classify(err))
	}
	return toMessage(m), nil
}

func (c *Client) FetchMessage(ctx context.Context, channelID, messageID models.Snowflake) (*platform.Message, error) {
	m, err := c.session.ChannelMessage(string(channelID), string(messageID), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", messageID, classify(err))
	}
	return toMessage(m), nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID models.Snowflake) error {
	if err := c.session.ChannelMessageDelete(string(channelID), string(messageID), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, classify(err))
	}
	return nil
}

// rawInteraction returns the SDK interaction, rebuilding the fields needed
// for callbacks when the interaction did not come from this adapter.
func rawInteraction(i *platform.Interaction) *discordgo.Interaction {
	if raw, ok := i.Raw.(*discordgo.Interaction); ok {
		return raw
	}
	return &discordgo.Interaction{
		ID:        i.ID,
		AppID:     string(i.AppID),
		Token:     i.Token,
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: string(i.ChannelID),
		GuildID:   string(i.GuildID),
	}
}

func responseData(spec platform.MessageSpec) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		Content:    spec.Content,
		Embeds:     fromEmbeds(spec.Embeds),
		Components: components(spec),
		TTS:        spec.TTS,
		Flags:      messageFlags(spec),
	}
}

func (c *Client) Defer(ctx context.Context, i *platform.Interaction) error {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
	if err := c.session.InteractionRespond(rawInteraction(i), resp, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("defer interaction %s: %w", i.ID, classify(err))
	}
	return nil
}

func (c *Client) Respond(ctx context.Context, i *platform.Interaction, spec platform.MessageSpec) error {
	raw := rawInteraction(i)
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: responseData(spec),
	}
	if err := c.session.InteractionRespond(raw, resp, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("respond to interaction %s: %w", i.ID, classify(err))
	}
	if spec.DeleteAfter > 0 {
		c.deleteAfter(spec.DeleteAfter, func() error {
			return c.session.InteractionResponseDelete(raw)
		})
	}
	return nil
}

func (c *Client) UpdateMessage(ctx context.Context, i *platform.Interaction, spec platform.MessageSpec) error {
	spec.Ephemeral = false
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: responseData(spec),
	}
	if err := c.session.InteractionRespond(rawInteraction(i), resp, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("update message of interaction %s: %w", i.ID, classify(err))
	}
	return nil
}

func (c *Client) FollowUp(ctx context.Context, i *platform.Interaction, spec platform.MessageSpec) (*platform.Message, error) {
	raw := rawInteraction(i)
	params := &discordgo.WebhookParams{
		Content:    spec.Content,
		Embeds:     fromEmbeds(spec.Embeds),
		Components: components(spec),
		TTS:        spec.TTS,
		Flags:      messageFlags(spec),
	}
	m, err := c.session.FollowupMessageCreate(raw, true, params, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("follow up interaction %s: %w", i.ID, classify(err))
	}
	if spec.DeleteAfter > 0 {
		c.deleteAfter(spec.DeleteAfter, func() error {
			return c.session.FollowupMessageDelete(raw, m.ID)
		})
	}
	return toMessage(m), nil
}

// deleteAfter runs del once d has elapsed. Failures are only logged; the
// message may already be gone.
func (c *Client) deleteAfter(d time.Duration, del func() error) {
	time.AfterFunc(d, func() {
		if err := del(); err != nil {
			slog.Warn("Discord deleteAfter: delete failed", "error", classify(err))
		}
	})
}
