package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// DefaultIntents are enabled before any configured intent: everything that
// needs no privileged access.
const DefaultIntents = discordgo.IntentsAllWithoutPrivileged

var intentNames = map[string]discordgo.Intent{
	"guilds":                        discordgo.IntentGuilds,
	"members":                       discordgo.IntentGuildMembers,
	"moderation":                    discordgo.IntentGuildModeration,
	"bans":                          discordgo.IntentGuildModeration,
	"emojis":                        discordgo.IntentGuildEmojis,
	"emojis_and_stickers":           discordgo.IntentGuildEmojis,
	"integrations":                  discordgo.IntentGuildIntegrations,
	"webhooks":                      discordgo.IntentGuildWebhooks,
	"invites":                       discordgo.IntentGuildInvites,
	"voice_states":                  discordgo.IntentGuildVoiceStates,
	"presences":                     discordgo.IntentGuildPresences,
	"messages":                      discordgo.IntentGuildMessages | discordgo.IntentDirectMessages,
	"guild_messages":                discordgo.IntentGuildMessages,
	"dm_messages":                   discordgo.IntentDirectMessages,
	"reactions":                     discordgo.IntentGuildMessageReactions | discordgo.IntentDirectMessageReactions,
	"guild_reactions":               discordgo.IntentGuildMessageReactions,
	"dm_reactions":                  discordgo.IntentDirectMessageReactions,
	"typing":                        discordgo.IntentGuildMessageTyping | discordgo.IntentDirectMessageTyping,
	"guild_typing":                  discordgo.IntentGuildMessageTyping,
	"dm_typing":                     discordgo.IntentDirectMessageTyping,
	"message_content":               discordgo.IntentMessageContent,
	"guild_scheduled_events":        discordgo.IntentGuildScheduledEvents,
	"auto_moderation":               discordgo.IntentAutoModerationConfiguration | discordgo.IntentAutoModerationExecution,
	"auto_moderation_configuration": discordgo.IntentAutoModerationConfiguration,
	"auto_moderation_execution":     discordgo.IntentAutoModerationExecution,
}

// ParseIntents adds the named intents to DefaultIntents. Names are matched
// case-insensitively with spaces or underscores.
func ParseIntents(names []string) (discordgo.Intent, error) {
	intents := DefaultIntents
	for _, name := range names {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
		intent, ok := intentNames[key]
		if !ok {
			return 0, fmt.Errorf("unknown intent %q", name)
		}
		intents |= intent
	}
	return intents, nil
}
