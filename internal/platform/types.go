// Package platform defines the chat-platform value types and the capability
// interfaces the interpreter calls. The Discord implementation lives in
// internal/discord; MockClient serves tests.
package platform

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/BTreeMap/ScriptCord/internal/models"
)

// ErrNotFound is returned for unknown or deleted entities. Callers treat it as
// a soft miss.
var ErrNotFound = errors.New("entity not found")

// User is a platform account. When GuildID is set it also carries the guild
// member fields.
type User struct {
	ID         models.Snowflake   `expr:"id"`
	Name       string             `expr:"name"`
	GlobalName string             `expr:"global_name"`
	Bot        bool               `expr:"bot"`
	AvatarURL  string             `expr:"avatar_url"`
	Mention    string             `expr:"mention"`
	GuildID    models.Snowflake   `expr:"guild_id"`
	Nick       string             `expr:"nick"`
	Roles      []models.Snowflake `expr:"roles"`
	JoinedAt   time.Time          `expr:"joined_at"`
}

// IsMember reports whether u carries guild member fields.
func (u *User) IsMember() bool {
	return u != nil && u.GuildID != ""
}

// DisplayName returns the nickname, then the global name, then the username.
func (u *User) DisplayName() string {
	switch {
	case u.Nick != "":
		return u.Nick
	case u.GlobalName != "":
		return u.GlobalName
	default:
		return u.Name
	}
}

// HasRole reports whether the member has the role.
func (u *User) HasRole(id models.Snowflake) bool {
	return slices.Contains(u.Roles, id)
}

func (u *User) String() string {
	return u.DisplayName()
}

// Role is a guild role.
type Role struct {
	ID          models.Snowflake `expr:"id"`
	GuildID     models.Snowflake `expr:"guild_id"`
	Name        string           `expr:"name"`
	Color       int              `expr:"color"`
	Position    int              `expr:"position"`
	Hoist       bool             `expr:"hoist"`
	Mentionable bool             `expr:"mentionable"`
	Managed     bool             `expr:"managed"`
	Mention     string           `expr:"mention"`
}

func (r *Role) String() string {
	return r.Name
}

// Channel is a guild or direct-message channel.
type Channel struct {
	ID       models.Snowflake `expr:"id"`
	GuildID  models.Snowflake `expr:"guild_id"`
	Name     string           `expr:"name"`
	Topic    string           `expr:"topic"`
	Type     int              `expr:"type"`
	NSFW     bool             `expr:"nsfw"`
	Position int              `expr:"position"`
	Mention  string           `expr:"mention"`
}

func (c *Channel) String() string {
	return c.Name
}

// Guild is a server together with its statistics.
type Guild struct {
	ID           models.Snowflake `expr:"id"`
	Name         string           `expr:"name"`
	OwnerID      models.Snowflake `expr:"owner_id"`
	Description  string           `expr:"description"`
	IconURL      string           `expr:"icon_url"`
	MemberCount  int              `expr:"member_count"`
	RoleCount    int              `expr:"role_count"`
	ChannelCount int              `expr:"channel_count"`
	EmojiCount   int              `expr:"emoji_count"`
}

func (g *Guild) String() string {
	return g.Name
}

// Emoji is either a native unicode emoji (ID empty) or a custom guild emoji.
type Emoji struct {
	ID       models.Snowflake `expr:"id"`
	GuildID  models.Snowflake `expr:"guild_id"`
	Name     string           `expr:"name"`
	Animated bool             `expr:"animated"`
}

// IsUnicode reports whether e is a native emoji.
func (e *Emoji) IsUnicode() bool {
	return e.ID == ""
}

// String renders the emoji the way it is written in message content.
func (e *Emoji) String() string {
	if e.IsUnicode() {
		return e.Name
	}
	if e.Animated {
		return fmt.Sprintf("<a:%s:%s>", e.Name, e.ID)
	}
	return fmt.Sprintf("<:%s:%s>", e.Name, e.ID)
}

// Message is a message read back from the platform.
type Message struct {
	ID          models.Snowflake `expr:"id"`
	ChannelID   models.Snowflake `expr:"channel_id"`
	GuildID     models.Snowflake `expr:"guild_id"`
	Author      *User            `expr:"author"`
	Content     string           `expr:"content"`
	Embeds      []Embed          `expr:"embeds"`
	HasControls bool             `expr:"has_controls"`
	Timestamp   time.Time        `expr:"timestamp"`
}

func (m *Message) String() string {
	return m.Content
}

// Interaction is a component interaction delivered by the platform.
type Interaction struct {
	ID            string           `expr:"id"`
	Token         string
	AppID         models.Snowflake `expr:"app_id"`
	CustomID      string           `expr:"custom_id"`
	ComponentType string           `expr:"component_type"`
	Values        []string         `expr:"values"`
	MessageID     models.Snowflake `expr:"message_id"`
	ChannelID     models.Snowflake `expr:"channel_id"`
	GuildID       models.Snowflake `expr:"guild_id"`
	User          *User            `expr:"user"`
	CreatedAt     time.Time        `expr:"created_at"`

	// Raw is the SDK object, kept for the adapter that produced it.
	Raw any
}

// Value returns the first selected value, or "" for buttons.
func (i *Interaction) Value() string {
	if len(i.Values) == 0 {
		return ""
	}
	return i.Values[0]
}

// InteractionTTL is how long the platform accepts an initial response.
const InteractionTTL = 15 * time.Minute

// Expired reports whether the initial response window has closed.
func (i *Interaction) Expired(now time.Time) bool {
	return !i.CreatedAt.IsZero() && now.Sub(i.CreatedAt) >= InteractionTTL
}
