package resolver

import (
	"context"
	"testing"

	"github.com/BTreeMap/ScriptCord/internal/expression"
	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
	"github.com/BTreeMap/ScriptCord/internal/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	client *platform.MockClient
	res    *Resolver
	guild  *platform.Guild
	other  *platform.Guild
	alice  *platform.User
}

func newFixture(t *testing.T, declared map[string]any) *fixture {
	t.Helper()
	vars, err := variables.New(declared)
	require.NoError(t, err)

	c := platform.NewMockClient(nil)
	guild := &platform.Guild{ID: "100", Name: "Home"}
	other := &platform.Guild{ID: "200", Name: "Away"}
	c.AddGuild(guild)
	c.AddGuild(other)

	alice := &platform.User{ID: "11", Name: "alice", Nick: "Al", GuildID: "100"}
	c.AddUser(alice)
	c.AddUser(&platform.User{ID: "12", Name: "bob", GuildID: "100"})
	c.AddUser(&platform.User{ID: "11", Name: "alice", GuildID: "200"})

	c.AddRole(&platform.Role{ID: "500", GuildID: "100", Name: "Member"})
	c.AddRole(&platform.Role{ID: "600", GuildID: "200", Name: "Visitor"})

	c.AddChannel(&platform.Channel{ID: "900", GuildID: "100", Name: "general"})
	c.AddEmoji(&platform.Emoji{ID: "700", GuildID: "200", Name: "party"})

	eval := expression.NewEvaluator(expression.WithVariables(vars))
	return &fixture{client: c, res: New(c, eval), guild: guild, other: other, alice: alice}
}

func TestUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]any{"admin": "bob", "loop_a": "loop_b", "loop_b": "loop_a"})
	inGuild := Context{Path: "test", Guild: f.guild, User: f.alice}

	assert.Equal(t, f.alice, f.res.User(ctx, inGuild, "user"))
	assert.Equal(t, models.Snowflake("12"), f.res.User(ctx, inGuild, "@bob").ID)
	assert.Equal(t, models.Snowflake("11"), f.res.User(ctx, inGuild, "Al").ID)
	assert.Equal(t, models.Snowflake("12"), f.res.User(ctx, inGuild, 12).ID)
	assert.Equal(t, models.Snowflake("12"), f.res.User(ctx, inGuild, "admin").ID)
	assert.Nil(t, f.res.User(ctx, inGuild, "nobody"))
	assert.Nil(t, f.res.User(ctx, inGuild, "loop a"))
	assert.Nil(t, f.res.User(ctx, inGuild, nil))

	global := f.res.User(ctx, Context{Path: "test"}, 11)
	require.NotNil(t, global)
	assert.False(t, global.IsMember())
}

func TestRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]any{"member_role": 500})

	inGuild := Context{Path: "test", Guild: f.guild}
	assert.Equal(t, "Member", f.res.Role(ctx, inGuild, "@Member").Name)
	assert.Equal(t, "Member", f.res.Role(ctx, inGuild, "member role").Name)
	assert.Nil(t, f.res.Role(ctx, inGuild, "Visitor"))

	mutual := Context{Path: "test", User: f.alice}
	assert.Equal(t, "Visitor", f.res.Role(ctx, mutual, "Visitor").Name)
	assert.Nil(t, f.res.Role(ctx, Context{Path: "test"}, "Member"))
}

func TestChannelAndGuild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	rc := Context{Path: "test"}

	assert.Equal(t, models.Snowflake("900"), f.res.Channel(ctx, rc, "#general").ID)
	assert.Equal(t, models.Snowflake("900"), f.res.Channel(ctx, rc, 900).ID)
	assert.Nil(t, f.res.Channel(ctx, rc, "random"))

	assert.Equal(t, f.other, f.res.Guild(ctx, rc, "Away"))
	assert.Equal(t, f.guild, f.res.Guild(ctx, rc, "100"))
	assert.Nil(t, f.res.Guild(ctx, rc, 300))
}

func TestColour(t *testing.T) {
	f := newFixture(t, map[string]any{"brand": "#ff0000"})
	rc := Context{Path: "test"}

	c, ok := f.res.Colour(rc, 255)
	assert.True(t, ok)
	assert.Equal(t, 255, c)

	c, ok = f.res.Colour(rc, "0x00FF00")
	assert.True(t, ok)
	assert.Equal(t, 0x00ff00, c)

	c, ok = f.res.Colour(rc, "brand")
	assert.True(t, ok)
	assert.Equal(t, 0xff0000, c)

	_, ok = f.res.Colour(rc, "blue-ish")
	assert.False(t, ok)
}

func TestEmoji(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	rc := Context{Path: "test", Guild: f.guild}

	native := f.res.Emoji(ctx, rc, "🎉")
	require.NotNil(t, native)
	assert.True(t, native.IsUnicode())

	custom := f.res.Emoji(ctx, rc, ":party:")
	require.NotNil(t, custom)
	assert.Equal(t, models.Snowflake("700"), custom.ID)

	assert.Nil(t, f.res.Emoji(ctx, rc, "missing"))
}
