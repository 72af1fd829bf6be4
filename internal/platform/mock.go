package platform

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/BTreeMap/ScriptCord/internal/models"
)

// Call is one recorded MockClient invocation.
type Call struct {
	Method string
	Args   []any
}

// MockClient is an in-memory Client for tests. Entities are seeded with the
// Add methods; every capability call is recorded.
type MockClient struct {
	mu       sync.Mutex
	self     *User
	users    map[models.Snowflake]*User
	members  map[models.Snowflake]map[models.Snowflake]*User
	roles    map[models.Snowflake][]*Role
	channels []*Channel
	guilds   []*Guild
	emojis   map[models.Snowflake][]*Emoji
	messages map[models.Snowflake]*Message
	nextID   int
	calls    []Call

	// FailWith, when set, is returned by every mutating call.
	FailWith error
}

var _ Client = (*MockClient)(nil)

// NewMockClient creates a MockClient whose own user is self.
func NewMockClient(self *User) *MockClient {
	if self == nil {
		self = &User{ID: "1", Name: "scriptcord", Bot: true}
	}
	return &MockClient{
		self:     self,
		users:    make(map[models.Snowflake]*User),
		members:  make(map[models.Snowflake]map[models.Snowflake]*User),
		roles:    make(map[models.Snowflake][]*Role),
		emojis:   make(map[models.Snowflake][]*Emoji),
		messages: make(map[models.Snowflake]*Message),
		nextID:   1000,
	}
}

// AddGuild seeds a guild.
func (m *MockClient) AddGuild(g *Guild) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guilds = append(m.guilds, g)
}

// AddUser seeds a user. A user with GuildID set is also added as a member.
func (m *MockClient) AddUser(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.GuildID == "" {
		m.users[u.ID] = u
		return
	}
	if _, ok := m.users[u.ID]; !ok {
		plain := *u
		plain.GuildID, plain.Nick, plain.Roles = "", "", nil
		m.users[u.ID] = &plain
	}
	if m.members[u.GuildID] == nil {
		m.members[u.GuildID] = make(map[models.Snowflake]*User)
	}
	m.members[u.GuildID][u.ID] = u
}

// AddRole seeds a guild role.
func (m *MockClient) AddRole(r *Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[r.GuildID] = append(m.roles[r.GuildID], r)
}

// AddChannel seeds a channel.
func (m *MockClient) AddChannel(c *Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, c)
}

// AddEmoji seeds a custom emoji.
func (m *MockClient) AddEmoji(e *Emoji) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emojis[e.GuildID] = append(m.emojis[e.GuildID], e)
}

// Calls returns the recorded calls, optionally filtered by method.
func (m *MockClient) Calls(method string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if method == "" {
		return slices.Clone(m.calls)
	}
	var out []Call
	for _, c := range m.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Messages returns a copy of every message currently held.
func (m *MockClient) Messages() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Message, 0, len(m.messages))
	for _, msg := range m.messages {
		cp := *msg
		out = append(out, &cp)
	}
	return out
}

func (m *MockClient) record(method string, args ...any) {
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

func (m *MockClient) Self() *User {
	return m.self
}

func (m *MockClient) User(_ context.Context, id models.Snowflake) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
}

func (m *MockClient) Member(_ context.Context, guildID, userID models.Snowflake) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.members[guildID][userID]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("member %s in guild %s: %w", userID, guildID, ErrNotFound)
}

func (m *MockClient) Members(_ context.Context, guildID models.Snowflake) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.members[guildID]
	if !ok {
		return nil, nil
	}
	out := make([]*User, 0, len(members))
	for _, u := range members {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b *User) int { return compareIDs(a.ID, b.ID) })
	return out, nil
}

func (m *MockClient) CachedUsers(_ context.Context) []*User {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, g := range m.guilds {
		for _, u := range m.members[g.ID] {
			out = append(out, u)
		}
	}
	slices.SortStableFunc(out, func(a, b *User) int { return compareIDs(a.ID, b.ID) })
	return out
}

func (m *MockClient) Role(_ context.Context, guildID, roleID models.Snowflake) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles[guildID] {
		if r.ID == roleID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("role %s: %w", roleID, ErrNotFound)
}

func (m *MockClient) Roles(_ context.Context, guildID models.Snowflake) ([]*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.roles[guildID]), nil
}

func (m *MockClient) Channel(_ context.Context, id models.Snowflake) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.channels {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("channel %s: %w", id, ErrNotFound)
}

func (m *MockClient) Channels(_ context.Context) []*Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.channels)
}

func (m *MockClient) Guild(_ context.Context, id models.Snowflake) (*Guild, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.guilds {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, fmt.Errorf("guild %s: %w", id, ErrNotFound)
}

func (m *MockClient) Guilds(_ context.Context) []*Guild {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.guilds)
}

func (m *MockClient) Emojis(_ context.Context, guildID models.Snowflake) ([]*Emoji, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.emojis[guildID]), nil
}

func (m *MockClient) AddRoles(_ context.Context, guildID, userID models.Snowflake, roles []models.Snowflake, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("AddRoles", guildID, userID, slices.Clone(roles), reason)
	if m.FailWith != nil {
		return m.FailWith
	}
	u, ok := m.members[guildID][userID]
	if !ok {
		return fmt.Errorf("member %s: %w", userID, ErrNotFound)
	}
	for _, r := range roles {
		if !u.HasRole(r) {
			u.Roles = append(u.Roles, r)
		}
	}
	return nil
}

func (m *MockClient) RemoveRoles(_ context.Context, guildID, userID models.Snowflake, roles []models.Snowflake, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("RemoveRoles", guildID, userID, slices.Clone(roles), reason)
	if m.FailWith != nil {
		return m.FailWith
	}
	u, ok := m.members[guildID][userID]
	if !ok {
		return fmt.Errorf("member %s: %w", userID, ErrNotFound)
	}
	u.Roles = slices.DeleteFunc(u.Roles, func(id models.Snowflake) bool {
		return slices.Contains(roles, id)
	})
	return nil
}

func (m *MockClient) SendMessage(_ context.Context, channelID models.Snowflake, spec MessageSpec) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SendMessage", channelID, spec)
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	m.nextID++
	msg := &Message{
		ID:          models.Snowflake(fmt.Sprint(m.nextID)),
		ChannelID:   channelID,
		Author:      m.self,
		Content:     spec.Content,
		Embeds:      slices.Clone(spec.Embeds),
		HasControls: spec.HasControls(),
	}
	m.messages[msg.ID] = msg
	cp := *msg
	return &cp, nil
}

func (m *MockClient) EditMessage(_ context.Context, channelID, messageID models.Snowflake, spec MessageSpec) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("EditMessage", channelID, messageID, spec)
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	msg, ok := m.messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	msg.Content = spec.Content
	msg.Embeds = slices.Clone(spec.Embeds)
	msg.HasControls = spec.HasControls()
	cp := *msg
	return &cp, nil
}

func (m *MockClient) FetchMessage(_ context.Context, channelID, messageID models.Snowflake) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	cp := *msg
	return &cp, nil
}

func (m *MockClient) DeleteMessage(_ context.Context, channelID, messageID models.Snowflake) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteMessage", channelID, messageID)
	if _, ok := m.messages[messageID]; !ok {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	delete(m.messages, messageID)
	return nil
}

func (m *MockClient) Defer(_ context.Context, i *Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Defer", i.ID)
	return m.FailWith
}

func (m *MockClient) Respond(_ context.Context, i *Interaction, spec MessageSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Respond", i.ID, spec)
	return m.FailWith
}

func (m *MockClient) UpdateMessage(_ context.Context, i *Interaction, spec MessageSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UpdateMessage", i.ID, spec)
	if m.FailWith != nil {
		return m.FailWith
	}
	if msg, ok := m.messages[i.MessageID]; ok {
		msg.Content = spec.Content
		msg.Embeds = slices.Clone(spec.Embeds)
		msg.HasControls = spec.HasControls()
	}
	return nil
}

func (m *MockClient) FollowUp(_ context.Context, i *Interaction, spec MessageSpec) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("FollowUp", i.ID, spec)
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	m.nextID++
	return &Message{ID: models.Snowflake(fmt.Sprint(m.nextID)), ChannelID: i.ChannelID, Author: m.self, Content: spec.Content}, nil
}

func compareIDs(a, b models.Snowflake) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
