package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "add_roles", NormalizeKey("Add Roles"))
	assert.Equal(t, "update_message", NormalizeKey("  update   message "))
	assert.Equal(t, "wait", NormalizeKey("WAIT"))
}

func TestDefinitionKey(t *testing.T) {
	name, payload, err := DefinitionKey(map[string]any{"send message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "send message", name)
	assert.Equal(t, "hi", payload)

	_, _, err = DefinitionKey(map[string]any{"a": 1, "b": 2})
	assert.Error(t, err)

	_, _, err = DefinitionKey("wait")
	assert.Error(t, err)
}

func TestExecutionPath(t *testing.T) {
	p := ExecutionPath("").Child("on message")
	assert.Equal(t, ExecutionPath("on message"), p)

	child := p.Child("send message")
	assert.Equal(t, "on message -> send message", child.String())
	assert.Equal(t, "on message -> send message 2", child.Occurrence(2).String())
	assert.Equal(t, child, child.Occurrence(1))

	counter := SiblingCounter{}
	assert.Equal(t, 1, counter.Next("wait"))
	assert.Equal(t, 2, counter.Next("wait"))
	assert.Equal(t, 1, counter.Next("condition"))
}

func TestSnowflakeJSON(t *testing.T) {
	rec := TimerRecord{
		ID:        "ignored",
		Path:      "loop -> wait",
		ChannelID: "123456789012345678",
		Due:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Do:        []any{map[string]any{"send message": "hi"}},
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"func":"loop -> wait","channel":123456789012345678,"user":null,"guild":null,"time":"2024-05-01T12:00:00Z","do":[{"send message":"hi"}]}`, string(data))

	var decoded TimerRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Snowflake("123456789012345678"), decoded.ChannelID)
	assert.Equal(t, Snowflake(""), decoded.UserID)
	assert.Empty(t, decoded.ID)
	assert.True(t, decoded.Due.Equal(rec.Due))
}

func TestSnowflakeOf(t *testing.T) {
	id, ok := SnowflakeOf(42)
	assert.True(t, ok)
	assert.Equal(t, Snowflake("42"), id)

	_, ok = SnowflakeOf("general")
	assert.False(t, ok)

	_, ok = SnowflakeOf(0)
	assert.False(t, ok)
}

func TestTimerRecordKeepsIntegers(t *testing.T) {
	var rec TimerRecord
	data := `{"func":"loop -> wait","channel":222,"user":null,"guild":"333","time":"2030-01-01T00:00:00Z",` +
		`"do":[{"add roles":{"roles":[123456789012345678],"reason":"late"}},{"wait":{"time":1.5}}]}`
	require.NoError(t, json.Unmarshal([]byte(data), &rec))

	assert.Equal(t, Snowflake("222"), rec.ChannelID)
	assert.Equal(t, Snowflake("333"), rec.GuildID)
	roles := rec.Do[0].(map[string]any)["add roles"].(map[string]any)["roles"].([]any)
	assert.Equal(t, 123456789012345678, roles[0])
	assert.Equal(t, 1.5, rec.Do[1].(map[string]any)["wait"].(map[string]any)["time"])

	do, err := DecodeActions([]byte(`[{"send message":{"channel":987654321098765432}}]`))
	require.NoError(t, err)
	id, ok := SnowflakeOf(do[0].(map[string]any)["send message"].(map[string]any)["channel"])
	require.True(t, ok)
	assert.Equal(t, Snowflake("987654321098765432"), id)

	id, ok = SnowflakeOf(json.Number("123456789012345678"))
	require.True(t, ok)
	assert.Equal(t, Snowflake("123456789012345678"), id)
}

func TestTimerIsDue(t *testing.T) {
	due := time.Now()
	rec := TimerRecord{Due: due}
	assert.False(t, rec.IsDue(due.Add(-time.Second)))
	assert.True(t, rec.IsDue(due))
	assert.True(t, rec.IsDue(due.Add(time.Second)))
}

func TestConfigurationError(t *testing.T) {
	err := Configf("on message -> wait", "time must have more than %d seconds", 0)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "Trace: on message -> wait")

	wrapped := errors.Join(errors.New("outer"), err)
	assert.True(t, IsConfigurationError(wrapped))
}
