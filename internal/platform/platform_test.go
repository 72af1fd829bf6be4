package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserDisplayName(t *testing.T) {
	u := &User{Name: "alice"}
	assert.Equal(t, "alice", u.String())
	u.GlobalName = "Alice"
	assert.Equal(t, "Alice", u.String())
	u.Nick = "Al"
	assert.Equal(t, "Al", u.String())
	assert.False(t, u.IsMember())
}

func TestEmojiString(t *testing.T) {
	assert.Equal(t, "👍", (&Emoji{Name: "👍"}).String())
	assert.Equal(t, "<:party:42>", (&Emoji{ID: "42", Name: "party"}).String())
	assert.Equal(t, "<a:party:42>", (&Emoji{ID: "42", Name: "party", Animated: true}).String())
}

func TestParseButtonStyle(t *testing.T) {
	for in, want := range map[string]ButtonStyle{
		"primary": ButtonPrimary, "Blurple": ButtonPrimary,
		"grey": ButtonSecondary, "gray": ButtonSecondary,
		"green": ButtonSuccess, "red": ButtonDanger, "url": ButtonLink,
	} {
		got, ok := ParseButtonStyle(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseButtonStyle("sparkly")
	assert.False(t, ok)
}

func TestMessageSpecMatches(t *testing.T) {
	spec := MessageSpec{Content: "hi", Embeds: []Embed{{Title: "T", Footer: &EmbedFooter{Text: "f"}}}}
	live := &Message{Content: "hi", Embeds: []Embed{{Title: "T", Type: "rich", Footer: &EmbedFooter{Text: "f"}}}}
	assert.True(t, spec.Matches(live))

	live.Embeds[0].Title = "changed"
	assert.False(t, spec.Matches(live))

	withButton := MessageSpec{Content: "hi", Buttons: []Button{{Label: "ok"}}}
	assert.False(t, withButton.Matches(&Message{Content: "hi"}))
	assert.False(t, spec.Matches(nil))
}

func TestInteractionExpired(t *testing.T) {
	now := time.Now()
	i := &Interaction{CreatedAt: now.Add(-time.Minute)}
	assert.False(t, i.Expired(now))
	i.CreatedAt = now.Add(-InteractionTTL)
	assert.True(t, i.Expired(now))
	assert.False(t, (&Interaction{}).Expired(now))
}

func TestMockClientMessages(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient(nil)

	msg, err := m.SendMessage(ctx, "10", MessageSpec{Content: "hello"})
	require.NoError(t, err)

	fetched, err := m.FetchMessage(ctx, "10", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", fetched.Content)

	_, err = m.EditMessage(ctx, "10", msg.ID, MessageSpec{Content: "bye"})
	require.NoError(t, err)
	fetched, _ = m.FetchMessage(ctx, "10", msg.ID)
	assert.Equal(t, "bye", fetched.Content)

	require.NoError(t, m.DeleteMessage(ctx, "10", msg.ID))
	_, err = m.FetchMessage(ctx, "10", msg.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Len(t, m.Calls("SendMessage"), 1)
	assert.Len(t, m.Calls("EditMessage"), 1)
}

func TestMockClientRoles(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient(nil)
	m.AddUser(&User{ID: "5", Name: "bob", GuildID: "7", Roles: nil})

	require.NoError(t, m.AddRoles(ctx, "7", "5", []models.Snowflake{"1", "2"}, "test"))
	require.NoError(t, m.RemoveRoles(ctx, "7", "5", []models.Snowflake{"1"}, "test"))

	member, err := m.Member(ctx, "7", "5")
	require.NoError(t, err)
	assert.Equal(t, []models.Snowflake{"2"}, member.Roles)

	plain, err := m.User(ctx, "5")
	require.NoError(t, err)
	assert.False(t, plain.IsMember())
}
