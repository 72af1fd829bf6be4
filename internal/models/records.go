package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Snowflake is a platform id. It is kept as a decimal string and marshalled
// as a JSON number so state files stay compatible with integer ids.
type Snowflake string

// SnowflakeOf converts an integer or string id into a Snowflake.
func SnowflakeOf(v any) (Snowflake, bool) {
	switch id := v.(type) {
	case Snowflake:
		return id, id != ""
	case string:
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return "", false
		}
		return Snowflake(id), true
	case int:
		return Snowflake(strconv.Itoa(id)), id > 0
	case int64:
		return Snowflake(strconv.FormatInt(id, 10)), id > 0
	case uint64:
		return Snowflake(strconv.FormatUint(id, 10)), id > 0
	case json.Number:
		return SnowflakeOf(string(id))
	case float64:
		if id <= 0 || id != float64(uint64(id)) {
			return "", false
		}
		return Snowflake(strconv.FormatUint(uint64(id), 10)), true
	default:
		return "", false
	}
}

func (s Snowflake) String() string {
	return string(s)
}

// MarshalJSON writes the id as a number, or null when empty.
func (s Snowflake) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseUint(string(s), 10, 64); err != nil {
		return json.Marshal(string(s))
	}
	return []byte(s), nil
}

// UnmarshalJSON accepts a number, a string or null.
func (s *Snowflake) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Snowflake(str)
		return nil
	}
	if _, err := strconv.ParseUint(string(data), 10, 64); err != nil {
		return fmt.Errorf("invalid snowflake %s: %w", data, err)
	}
	*s = Snowflake(data)
	return nil
}

// MessageRecord locates a message previously sent by an update action.
type MessageRecord struct {
	ChannelID Snowflake `json:"channel"`
	MessageID Snowflake `json:"id"`
}

// TimerRecord is a pending batch of actions created by a wait action.
type TimerRecord struct {
	// ID identifies the record in memory and in keyed backends. It is not part
	// of the JSON state file.
	ID        string        `json:"-"`
	Path      ExecutionPath `json:"func"`
	ChannelID Snowflake     `json:"channel"`
	UserID    Snowflake     `json:"user"`
	GuildID   Snowflake     `json:"guild"`
	Due       time.Time     `json:"time"`
	Do        []any         `json:"do"`
}

// UnmarshalJSON decodes the record keeping integers in Do exact.
func (t *TimerRecord) UnmarshalJSON(data []byte) error {
	type plain TimerRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode((*plain)(t)); err != nil {
		return err
	}
	t.Do = normalizeList(t.Do)
	return nil
}

// DecodeActions decodes a persisted action list. Integers come back as int,
// as the YAML decoder produces them, so 64-bit ids survive the round trip.
func DecodeActions(data []byte) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var do []any
	if err := dec.Decode(&do); err != nil {
		return nil, err
	}
	return normalizeList(do), nil
}

func normalizeList(list []any) []any {
	for i, v := range list {
		list[i] = normalizeNumbers(v)
	}
	return list
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			if int64(int(i)) == i {
				return int(i)
			}
			return i
		}
		if u, err := strconv.ParseUint(string(x), 10, 64); err == nil {
			return u
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return string(x)
	case []any:
		return normalizeList(x)
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
		return x
	default:
		return v
	}
}

// IsDue reports whether the timer should run at now.
func (t TimerRecord) IsDue(now time.Time) bool {
	return !t.Due.After(now)
}
