package flow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/ScriptCord/internal/expression"
	"github.com/BTreeMap/ScriptCord/internal/metrics"
	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
	"github.com/BTreeMap/ScriptCord/internal/store"
	"github.com/BTreeMap/ScriptCord/internal/variables"
)

type fixture struct {
	client  *platform.MockClient
	vars    *variables.Store
	state   *store.State
	engine  *Engine
	metrics *metrics.Metrics
	now     time.Time
	fatal   []error

	guild   *platform.Guild
	channel *platform.Channel
	member  *platform.User
}

func newFixture(t *testing.T, declared map[string]any, opts ...Option) *fixture {
	t.Helper()
	fs, err := store.NewFileStore(filepath.Join(t.TempDir(), store.DefaultStateFile))
	require.NoError(t, err)
	return newFixtureWithBackend(t, declared, fs, opts...)
}

func newFixtureWithBackend(t *testing.T, declared map[string]any, backend store.Backend, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		client:  platform.NewMockClient(nil),
		state:   store.NewState(backend),
		metrics: metrics.New(),
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		guild:   &platform.Guild{ID: "100", Name: "Guild"},
		channel: &platform.Channel{ID: "200", GuildID: "100", Name: "general"},
		member:  &platform.User{ID: "300", Name: "alice", GuildID: "100"},
	}
	t.Cleanup(func() { _ = f.state.Close() })

	vars, err := variables.New(declared)
	require.NoError(t, err)
	f.vars = vars

	f.client.AddGuild(f.guild)
	f.client.AddChannel(f.channel)
	f.client.AddUser(f.member)
	for _, name := range []string{"A", "B", "C"} {
		f.client.AddRole(&platform.Role{ID: models.Snowflake(fmt.Sprint(500 + int(name[0]-'A'))), GuildID: "100", Name: name})
	}

	base := []Option{
		WithClient(f.client),
		WithEvaluator(expression.NewEvaluator(expression.WithVariables(vars))),
		WithState(f.state),
		WithMetrics(f.metrics),
		WithClock(func() time.Time { return f.now }),
		WithFatalHandler(func(err error) { f.fatal = append(f.fatal, err) }),
	}
	f.engine = NewEngine(append(base, opts...)...)
	return f
}

func (f *fixture) invocation() *Invocation {
	return &Invocation{Channel: f.channel, User: f.member, Guild: f.guild}
}

func (f *fixture) run(t *testing.T, list ...any) {
	t.Helper()
	root := map[string]any{"on message": list}
	require.NoError(t, f.engine.RunList(context.Background(), "on message", root, f.invocation(), ""))
}

func (f *fixture) sent(t *testing.T) []platform.MessageSpec {
	t.Helper()
	var out []platform.MessageSpec
	for _, c := range f.client.Calls("SendMessage") {
		out = append(out, c.Args[1].(platform.MessageSpec))
	}
	return out
}

func act(name string, payload any) map[string]any {
	return map[string]any{name: payload}
}

func TestRunListSkipsUnknownActions(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t, act("explode", 1), act("send message", "hi"))

	sent := f.sent(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "hi", sent[0].Content)
}

func TestRunListAcceptsSingleMapping(t *testing.T) {
	f := newFixture(t, nil)
	root := map[string]any{"on_message": act("send message", "hi")}
	require.NoError(t, f.engine.RunList(context.Background(), "on message", root, f.invocation(), ""))
	assert.Len(t, f.sent(t), 1)
}

func TestRunListIgnoresMalformedList(t *testing.T) {
	f := newFixture(t, nil)
	root := map[string]any{"on message": "send message"}
	require.NoError(t, f.engine.RunList(context.Background(), "on message", root, f.invocation(), ""))
	assert.Empty(t, f.client.Calls(""))
}

func TestSendMessageContent(t *testing.T) {
	f := newFixture(t, map[string]any{"name": "world"})
	f.run(t,
		act("send message", "raw {{name}}"),
		act("send message", map[string]any{"content": "hello {name}"}),
		act("send message", map[string]any{
			"content": []any{
				act("text", "first"),
				act("text", "second {1 + 1}"),
				act("embed", map[string]any{
					"title":     "Hi {name}",
					"colour":    "#ff0000",
					"fields":    []any{map[string]any{"name": "n", "value": "{name}", "inline": true}},
					"footer":    "bye",
					"thumbnail": "https://cdn.example/{name}.png",
				}),
				act("embed", map[string]any{"title": "typed", "type": "{'link'}"}),
			},
			"tts": true,
		}),
	)

	sent := f.sent(t)
	require.Len(t, sent, 3)
	assert.Equal(t, "raw {{name}}", sent[0].Content)
	assert.Equal(t, "hello world", sent[1].Content)
	assert.Equal(t, "second 2", sent[2].Content)
	assert.True(t, sent[2].TTS)
	require.Len(t, sent[2].Embeds, 2)
	embed := sent[2].Embeds[0]
	assert.Equal(t, "Hi world", embed.Title)
	assert.Equal(t, "rich", embed.Type)
	assert.Equal(t, "https://cdn.example/{name}.png", embed.Thumbnail)
	assert.Equal(t, "link", sent[2].Embeds[1].Type)
	assert.Equal(t, 0xff0000, embed.Color)
	assert.Equal(t, []platform.EmbedField{{Name: "n", Value: "world", Inline: true}}, embed.Fields)
	require.NotNil(t, embed.Footer)
	assert.Equal(t, "bye", embed.Footer.Text)
}

func TestSendMessageToNamedChannel(t *testing.T) {
	f := newFixture(t, nil)
	f.client.AddChannel(&platform.Channel{ID: "201", GuildID: "100", Name: "logs"})
	f.run(t, act("send message", map[string]any{"channel": "#logs", "content": "x"}))

	calls := f.client.Calls("SendMessage")
	require.Len(t, calls, 1)
	assert.Equal(t, models.Snowflake("201"), calls[0].Args[0])
}

func TestUpdateMessageSkipsIdenticalContent(t *testing.T) {
	f := newFixture(t, map[string]any{"count": 0})
	list := []any{act("update message", map[string]any{"content": "count is {count}"})}

	f.run(t, list...)
	f.run(t, list...)
	assert.Len(t, f.client.Calls("SendMessage"), 1)
	assert.Empty(t, f.client.Calls("EditMessage"))

	require.NoError(t, f.vars.Set("count", 1))
	f.run(t, list...)
	assert.Len(t, f.client.Calls("SendMessage"), 1)
	edits := f.client.Calls("EditMessage")
	require.Len(t, edits, 1)
	assert.Equal(t, "count is 1", edits[0].Args[2].(platform.MessageSpec).Content)
}

func TestUpdateMessageResendsDeletedMessage(t *testing.T) {
	f := newFixture(t, nil)
	list := []any{act("update message", "status")}
	f.run(t, list...)

	msgs := f.client.Messages()
	require.Len(t, msgs, 1)
	require.NoError(t, f.client.DeleteMessage(context.Background(), msgs[0].ChannelID, msgs[0].ID))

	f.run(t, list...)
	assert.Len(t, f.client.Calls("SendMessage"), 2)
	assert.Len(t, f.client.Messages(), 1)
}

func TestUpdateRolesAppliesDelta(t *testing.T) {
	f := newFixture(t, nil)
	f.member.Roles = []models.Snowflake{"500", "501"}

	f.run(t, act("update roles", map[string]any{
		"add":    []any{"B", "C"},
		"remove": []any{"A", "B"},
	}))

	assert.ElementsMatch(t, []models.Snowflake{"501", "502"}, f.member.Roles)
	removes := f.client.Calls("RemoveRoles")
	require.Len(t, removes, 1)
	assert.Equal(t, []models.Snowflake{"500"}, removes[0].Args[2])
	adds := f.client.Calls("AddRoles")
	require.Len(t, adds, 1)
	assert.Equal(t, []models.Snowflake{"502"}, adds[0].Args[2])
}

func TestRoleDelta(t *testing.T) {
	toAdd, toRemove := RoleDelta([]models.Snowflake{"a", "b"}, []models.Snowflake{"b", "c"}, []models.Snowflake{"a", "b"})
	assert.Equal(t, []models.Snowflake{"c"}, toAdd)
	assert.Equal(t, []models.Snowflake{"a"}, toRemove)

	toAdd, toRemove = RoleDelta(nil, nil, []models.Snowflake{"x"})
	assert.Empty(t, toAdd)
	assert.Empty(t, toRemove)
}

func TestAddAndRemoveRoles(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t,
		act("add roles", "A"),
		act("add role", map[string]any{"roles": `["B", "C"]`, "reason": "test"}),
		act("remove roles", map[string]any{"target": "alice", "role": "B"}),
	)
	assert.ElementsMatch(t, []models.Snowflake{"500", "502"}, f.member.Roles)

	adds := f.client.Calls("AddRoles")
	require.Len(t, adds, 2)
	assert.Equal(t, []models.Snowflake{"501", "502"}, adds[1].Args[2])
	assert.Equal(t, "test", adds[1].Args[3])
}

func TestRolesWithoutMemberIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	inv := &Invocation{Channel: f.channel, User: &platform.User{ID: "999", Name: "ghost"}}
	root := map[string]any{"on message": []any{act("add roles", "A")}}
	require.NoError(t, f.engine.RunList(context.Background(), "on message", root, inv, ""))
	assert.Empty(t, f.client.Calls("AddRoles"))
}

func TestRolesFallBackToInvokerWhenTargetUnknown(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t, act("add roles", map[string]any{"target": "nobody_by_this_name", "roles": "A"}))

	adds := f.client.Calls("AddRoles")
	require.Len(t, adds, 1)
	assert.Equal(t, f.member.ID, adds[0].Args[1])
	assert.Equal(t, []models.Snowflake{"500"}, f.member.Roles)
}

func TestActionFieldsAreVisibleToExpressions(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t,
		act("add roles", map[string]any{"target": "alice", "roles": "target.name == 'alice' ? 'B' : 'C'"}),
		act("send message", map[string]any{"channel": "general", "silent": true, "content": "{target.name} silent={silent}"}),
	)

	adds := f.client.Calls("AddRoles")
	require.Len(t, adds, 1)
	assert.Equal(t, []models.Snowflake{"501"}, adds[0].Args[2])

	sent := f.sent(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "general silent=true", sent[0].Content)
}

func TestSendMessageToMissingChannelIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t,
		act("send message", map[string]any{"channel": "#nowhere", "content": "lost"}),
		act("update message", map[string]any{"channel": "#nowhere", "content": "lost"}),
		act("send message", "after"),
	)

	sent := f.sent(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "after", sent[0].Content)
	assert.Empty(t, f.fatal)
}

func TestSetVariable(t *testing.T) {
	f := newFixture(t, map[string]any{"count": 0, "label": ""})
	f.run(t,
		act("set variable", map[string]any{"count": "count + 1", "evaluate": true}),
		act("set variables", map[string]any{"label": "count + 1"}),
		act("set variable", map[string]any{"count": "nope +", "evaluate": true}),
		act("set variable", map[string]any{"missing": 1}),
	)

	count, _ := f.vars.Get("count")
	assert.Equal(t, 1, count)
	label, _ := f.vars.Get("label")
	assert.Equal(t, "count + 1", label)
	_, declared := f.vars.Get("missing")
	assert.False(t, declared)
}

func TestCondition(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t, act("condition", map[string]any{
		"if":   "1 == 2",
		"do":   []any{act("send message", "yes")},
		"else": []any{act("send message", "no")},
	}))
	sent := f.sent(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "no", sent[0].Content)

	f2 := newFixture(t, nil)
	f2.run(t, act("condition", map[string]any{
		"if": "1 == 2",
		"do": []any{act("send message", "yes")},
	}))
	assert.Empty(t, f2.sent(t))
}

func TestWaitSchedulesTimer(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.run(t, act("wait", map[string]any{
		"time": "10m",
		"do":   []any{act("send message", "later")},
	}))

	timers, err := f.state.Timers(ctx)
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.Equal(t, models.ExecutionPath("on message -> wait"), timers[0].Path)
	assert.Equal(t, models.Snowflake("200"), timers[0].ChannelID)
	assert.Equal(t, models.Snowflake("300"), timers[0].UserID)
	assert.Equal(t, models.Snowflake("100"), timers[0].GuildID)
	assert.True(t, timers[0].Due.Equal(f.now.Add(10*time.Minute)))

	n, err := f.engine.RunDueTimers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.sent(t))

	f.now = f.now.Add(10 * time.Minute)
	n, err = f.engine.RunDueTimers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	sent := f.sent(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "later", sent[0].Content)

	timers, err = f.state.Timers(ctx)
	require.NoError(t, err)
	assert.Empty(t, timers)

	n, err = f.engine.RunDueTimers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWaitRejectsInvalidTime(t *testing.T) {
	f := newFixture(t, map[string]any{"delay": "2 hours"})
	f.run(t,
		act("wait", map[string]any{"time": "soon", "do": []any{act("send message", "x")}}),
		act("wait", map[string]any{"time": 0, "do": []any{act("send message", "x")}}),
		act("wait", map[string]any{"time": "1m"}),
	)
	timers, err := f.state.Timers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, timers)

	f.run(t, act("wait", map[string]any{"time": "delay", "do": []any{act("send message", "x")}}))
	timers, err = f.state.Timers(context.Background())
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.True(t, timers[0].Due.Equal(f.now.Add(2*time.Hour)))
}

type failingBackend struct {
	store.Backend
}

func (failingBackend) SaveTimer(context.Context, *models.TimerRecord) error {
	return fmt.Errorf("save timer: %w", models.ErrPersistence)
}

func (failingBackend) Close() error { return nil }

func TestPersistenceFailureIsFatal(t *testing.T) {
	f := newFixtureWithBackend(t, nil, failingBackend{})
	root := map[string]any{"on message": []any{
		act("wait", map[string]any{"time": "1m", "do": []any{act("send message", "x")}}),
		act("send message", "after"),
	}}
	err := f.engine.RunList(context.Background(), "on message", root, f.invocation(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPersistence))
	assert.Len(t, f.fatal, 1)
	assert.Empty(t, f.sent(t))
}

func buttonID(t *testing.T, spec platform.MessageSpec) string {
	t.Helper()
	require.NotEmpty(t, spec.Buttons)
	return spec.Buttons[0].CustomID
}

func (f *fixture) interact(t *testing.T, customID string, values ...string) {
	t.Helper()
	i := &platform.Interaction{
		ID:        "i-" + customID,
		CustomID:  customID,
		Values:    values,
		ChannelID: f.channel.ID,
		GuildID:   f.guild.ID,
		User:      f.member,
	}
	if msgs := f.client.Messages(); len(msgs) > 0 {
		i.MessageID = msgs[0].ID
	}
	require.NoError(t, f.engine.HandleInteraction(context.Background(), i))
}

func TestButtonInteraction(t *testing.T) {
	f := newFixture(t, map[string]any{"clicked": false})
	f.run(t, act("send message", map[string]any{"content": []any{
		act("text", "press"),
		act("button", map[string]any{
			"label":          "Go",
			"style":          "green",
			"on interaction": []any{act("set variable", map[string]any{"clicked": true})},
		}),
		act("button", map[string]any{"label": "Docs", "url": "https://example.com"}),
	}}))

	sent := f.sent(t)
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Buttons, 2)
	assert.Equal(t, platform.ButtonSuccess, sent[0].Buttons[0].Style)
	assert.Equal(t, platform.ButtonLink, sent[0].Buttons[1].Style)
	assert.Empty(t, sent[0].Buttons[1].CustomID)
	assert.Equal(t, 1, f.engine.Registry().Len())

	f.interact(t, buttonID(t, sent[0]))
	clicked, _ := f.vars.Get("clicked")
	assert.Equal(t, true, clicked)

	responses := f.client.Calls("Respond")
	require.Len(t, responses, 1)
	ack := responses[0].Args[1].(platform.MessageSpec)
	assert.Equal(t, DefaultAcknowledgement, ack.Content)
	assert.True(t, ack.Ephemeral)
}

func TestButtonRequiresLabel(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t, act("send message", map[string]any{"content": []any{act("button", map[string]any{"style": "red"})}}))
	assert.Empty(t, f.sent(t))
	assert.Zero(t, f.engine.Registry().Len())
}

func TestInteractionResponse(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t, act("send message", map[string]any{"content": []any{
		act("button", map[string]any{
			"label":     "Hi",
			"custom id": "greet",
			"on interaction": []any{
				act("response", "hello {{custom_id}}"),
				act("response", map[string]any{"content": "again {label}", "ephemeral": false}),
			},
		}),
	}}))
	require.Equal(t, "greet", buttonID(t, f.sent(t)[0]))

	f.interact(t, "greet")
	responses := f.client.Calls("Respond")
	require.Len(t, responses, 1)
	first := responses[0].Args[1].(platform.MessageSpec)
	assert.Equal(t, "hello {{custom_id}}", first.Content)
	assert.True(t, first.Ephemeral)
	assert.Equal(t, DefaultResponseDeleteAfter, first.DeleteAfter)

	followUps := f.client.Calls("FollowUp")
	require.Len(t, followUps, 1)
	second := followUps[0].Args[1].(platform.MessageSpec)
	assert.Equal(t, "again Hi", second.Content)
	assert.False(t, second.Ephemeral)
}

func TestResponseOutsideInteractionIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t, act("response", "hello"))
	assert.Empty(t, f.client.Calls("Respond"))
	assert.Empty(t, f.client.Calls("FollowUp"))
}

func TestInteractionDefer(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t, act("send message", map[string]any{"content": []any{
		act("button", map[string]any{
			"label":          "Slow",
			"on interaction": []any{act("defer", nil), act("send message", "working")},
		}),
	}}))
	f.interact(t, buttonID(t, f.sent(t)[0]))

	assert.Len(t, f.client.Calls("Defer"), 1)
	assert.Empty(t, f.client.Calls("Respond"))
	assert.Len(t, f.sent(t), 2)
}

func TestConditionalMessageIsRebuilt(t *testing.T) {
	f := newFixture(t, map[string]any{"enabled": false})
	f.run(t, act("send message", map[string]any{"content": []any{
		act("condition", map[string]any{
			"if":   "enabled",
			"do":   act("text", "on"),
			"else": act("text", "off"),
		}),
		act("button", map[string]any{
			"label":          "Toggle",
			"on interaction": []any{act("set variable", map[string]any{"enabled": "!enabled", "evaluate": true})},
		}),
	}}))
	sent := f.sent(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "off", sent[0].Content)

	f.interact(t, buttonID(t, sent[0]))
	updates := f.client.Calls("UpdateMessage")
	require.Len(t, updates, 1)
	rebuilt := updates[0].Args[1].(platform.MessageSpec)
	assert.Equal(t, "on", rebuilt.Content)
	assert.Empty(t, f.client.Calls("Respond"))

	f.interact(t, buttonID(t, rebuilt))
	updates = f.client.Calls("UpdateMessage")
	require.Len(t, updates, 2)
	assert.Equal(t, "off", updates[1].Args[1].(platform.MessageSpec).Content)
}

func TestSelectInteraction(t *testing.T) {
	f := newFixture(t, map[string]any{"picked": ""})
	f.run(t, act("send message", map[string]any{"content": []any{
		act("select", map[string]any{
			"placeholder": "Pick",
			"max values":  5,
			"options": []any{
				"a",
				map[string]any{"label": "B", "value": "b", "default": "1 == 1"},
			},
			"on interaction": []any{act("set variable", map[string]any{"picked": "value", "evaluate": true})},
		}),
	}}))

	sent := f.sent(t)
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Selects, 1)
	menu := sent[0].Selects[0]
	assert.Equal(t, "Pick", menu.Placeholder)
	assert.Equal(t, 1, menu.MinValues)
	assert.Equal(t, 2, menu.MaxValues)
	require.Len(t, menu.Options, 2)
	assert.Equal(t, platform.SelectOption{Label: "a", Value: "a"}, menu.Options[0])
	assert.True(t, menu.Options[1].Default)

	f.interact(t, menu.CustomID, "b")
	picked, _ := f.vars.Get("picked")
	assert.Equal(t, "b", picked)
}

func TestUnboundInteractionRunsRootList(t *testing.T) {
	f := newFixture(t, nil, WithRoot(map[string]any{
		"on interaction": []any{act("send message", map[string]any{"content": "unknown {custom_id}"})},
	}))
	f.interact(t, "stale")

	sent := f.sent(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "unknown stale", sent[0].Content)
	assert.Len(t, f.client.Calls("Respond"), 1)
}

func TestExpiredInteractionIsNotAcknowledged(t *testing.T) {
	f := newFixture(t, nil)
	i := &platform.Interaction{
		ID:        "old",
		CustomID:  "stale",
		ChannelID: f.channel.ID,
		User:      f.member,
		CreatedAt: f.now.Add(-platform.InteractionTTL),
	}
	require.NoError(t, f.engine.HandleInteraction(context.Background(), i))
	assert.Empty(t, f.client.Calls("Respond"))
}

func TestClampValues(t *testing.T) {
	lo, hi := clampValues(nil, 0, 3)
	assert.Equal(t, 1, lo)
	assert.Equal(t, 1, hi)

	five := 5
	lo, hi = clampValues(&five, 10, 2)
	assert.Equal(t, 2, lo)
	assert.Equal(t, 2, hi)

	zero := 0
	lo, _ = clampValues(&zero, 2, 4)
	assert.Zero(t, lo)
}

func TestHasDefer(t *testing.T) {
	assert.True(t, hasDefer([]any{act("send message", "x"), act("Defer", nil)}))
	assert.True(t, hasDefer(act("defer", nil)))
	assert.False(t, hasDefer([]any{act("send message", "x")}))
	assert.False(t, hasDefer(nil))
}

func TestIsAction(t *testing.T) {
	assert.True(t, IsAction("Update Message"))
	assert.True(t, IsAction("set_variables"))
	assert.False(t, IsAction("explode"))
}
