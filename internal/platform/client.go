package platform

import (
	"context"

	"github.com/BTreeMap/ScriptCord/internal/models"
)

// Directory performs read-only lookups. Cached state is consulted before the
// API. Lookups by id return ErrNotFound for unknown ids.
type Directory interface {
	User(ctx context.Context, id models.Snowflake) (*User, error)
	Member(ctx context.Context, guildID, userID models.Snowflake) (*User, error)
	Members(ctx context.Context, guildID models.Snowflake) ([]*User, error)
	CachedUsers(ctx context.Context) []*User
	Role(ctx context.Context, guildID, roleID models.Snowflake) (*Role, error)
	Roles(ctx context.Context, guildID models.Snowflake) ([]*Role, error)
	Channel(ctx context.Context, id models.Snowflake) (*Channel, error)
	Channels(ctx context.Context) []*Channel
	Guild(ctx context.Context, id models.Snowflake) (*Guild, error)
	Guilds(ctx context.Context) []*Guild
	Emojis(ctx context.Context, guildID models.Snowflake) ([]*Emoji, error)
}

// RoleManager grants and revokes roles.
type RoleManager interface {
	AddRoles(ctx context.Context, guildID, userID models.Snowflake, roles []models.Snowflake, reason string) error
	RemoveRoles(ctx context.Context, guildID, userID models.Snowflake, roles []models.Snowflake, reason string) error
}

// Messenger sends and edits channel messages.
type Messenger interface {
	SendMessage(ctx context.Context, channelID models.Snowflake, msg MessageSpec) (*Message, error)
	EditMessage(ctx context.Context, channelID, messageID models.Snowflake, msg MessageSpec) (*Message, error)
	FetchMessage(ctx context.Context, channelID, messageID models.Snowflake) (*Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID models.Snowflake) error
}

// InteractionResponder answers component interactions.
type InteractionResponder interface {
	Defer(ctx context.Context, i *Interaction) error
	Respond(ctx context.Context, i *Interaction, msg MessageSpec) error
	UpdateMessage(ctx context.Context, i *Interaction, msg MessageSpec) error
	FollowUp(ctx context.Context, i *Interaction, msg MessageSpec) (*Message, error)
}

// Client is the full capability set.
type Client interface {
	Directory
	RoleManager
	Messenger
	InteractionResponder
	// Self returns the bot's own user.
	Self() *User
}

// EventHandler receives gateway events after conversion to platform types.
type EventHandler interface {
	// Connected is called on every (re)connection.
	Connected(ctx context.Context)
	MessageCreated(ctx context.Context, msg *Message)
	// MemberJoined and MemberLeft receive the member with GuildID set.
	MemberJoined(ctx context.Context, member *User)
	MemberLeft(ctx context.Context, member *User)
	InteractionCreated(ctx context.Context, i *Interaction)
}
