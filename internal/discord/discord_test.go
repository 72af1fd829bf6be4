package discord

import (
	"bytes"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
)

func TestParseIntents(t *testing.T) {
	intents, err := ParseIntents(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultIntents, intents)

	intents, err = ParseIntents([]string{"members", "Message Content"})
	require.NoError(t, err)
	assert.NotZero(t, intents&discordgo.IntentsGuildMembers)
	assert.NotZero(t, intents&discordgo.IntentsMessageContent)

	_, err = ParseIntents([]string{"telepathy"})
	assert.Error(t, err)
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)

	_, err = NewClient(WithToken("x"), WithIntents([]string{"nope"}))
	assert.Error(t, err)

	c, err := NewClient(WithToken("x"), WithIntents([]string{"members"}))
	require.NoError(t, err)
	assert.Nil(t, c.Self())
}

func TestComponentsLayout(t *testing.T) {
	assert.Empty(t, components(platform.MessageSpec{Content: "plain"}))

	spec := platform.MessageSpec{
		Selects: []platform.SelectMenu{{CustomID: "s", MinValues: 1, MaxValues: 1, Options: []platform.SelectOption{{Label: "a", Value: "a"}}}},
	}
	for i := 0; i < 6; i++ {
		spec.Buttons = append(spec.Buttons, platform.Button{CustomID: string(rune('a' + i)), Label: "b", Style: platform.ButtonPrimary})
	}
	rows := components(spec)
	require.Len(t, rows, 3)

	first := rows[0].(discordgo.ActionsRow)
	require.Len(t, first.Components, 1)
	menu := first.Components[0].(discordgo.SelectMenu)
	assert.Equal(t, "s", menu.CustomID)
	require.NotNil(t, menu.MinValues)
	assert.Equal(t, 1, *menu.MinValues)

	assert.Len(t, rows[1].(discordgo.ActionsRow).Components, 5)
	assert.Len(t, rows[2].(discordgo.ActionsRow).Components, 1)
}

func TestMessageFlags(t *testing.T) {
	flags := messageFlags(platform.MessageSpec{Silent: true, SuppressEmbeds: true, Ephemeral: true})
	assert.NotZero(t, flags&discordgo.MessageFlagsSuppressNotifications)
	assert.NotZero(t, flags&discordgo.MessageFlagsSuppressEmbeds)
	assert.NotZero(t, flags&discordgo.MessageFlagsEphemeral)
	assert.Zero(t, messageFlags(platform.MessageSpec{}))
}

func TestEmbedConversion(t *testing.T) {
	in := []platform.Embed{{
		Title:       "T",
		Description: "D",
		Color:       0x00ff00,
		Thumbnail:   "https://example.com/t.png",
		Footer:      &platform.EmbedFooter{Text: "f"},
		Fields:      []platform.EmbedField{{Name: "n", Value: "v", Inline: true}},
	}}
	out := fromEmbeds(in)
	require.Len(t, out, 1)
	assert.Equal(t, discordgo.EmbedTypeRich, out[0].Type)

	back := toEmbed(out[0])
	assert.True(t, in[0].Equal(back))
}

func TestToMember(t *testing.T) {
	m := &discordgo.Member{
		User:  &discordgo.User{ID: "7", Username: "alice", GlobalName: "Alice"},
		Nick:  "Al",
		Roles: []string{"1", "2"},
	}
	u := toMember("100", m)
	require.NotNil(t, u)
	assert.Equal(t, models.Snowflake("100"), u.GuildID)
	assert.Equal(t, "Al", u.DisplayName())
	assert.Equal(t, []models.Snowflake{"1", "2"}, u.Roles)
	assert.Equal(t, "<@7>", u.Mention)

	assert.Nil(t, toMember("100", &discordgo.Member{}))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.True(t, errors.Is(classify(discordgo.ErrStateNotFound), platform.ErrNotFound))

	notFound := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
	assert.True(t, errors.Is(classify(notFound), platform.ErrNotFound))

	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	assert.False(t, errors.Is(classify(forbidden), platform.ErrNotFound))
}

func TestPrintInviteQR(t *testing.T) {
	url := InviteURL("42", DefaultInvitePermissions)
	assert.Contains(t, url, "client_id=42")

	var buf bytes.Buffer
	PrintInviteQR(&buf, url)
	assert.Contains(t, buf.String(), url)
	assert.Greater(t, buf.Len(), len(url))
}
