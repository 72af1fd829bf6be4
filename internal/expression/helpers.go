package expression

import (
	"fmt"
	"time"

	"github.com/BTreeMap/ScriptCord/internal/util"
	"github.com/expr-lang/expr"
)

func helpers() []expr.Option {
	return []expr.Option{
		expr.Function("utcnow", func(params ...any) (any, error) {
			return time.Now().UTC(), nil
		}, new(func() time.Time)),
		expr.Function("timestamp", func(params ...any) (any, error) {
			if len(params) == 0 || len(params) > 2 {
				return nil, fmt.Errorf("timestamp expects 1 or 2 arguments, got %d", len(params))
			}
			t, err := toTime(params[0])
			if err != nil {
				return nil, err
			}
			mode := ""
			if len(params) == 2 {
				mode = fmt.Sprint(params[1])
			}
			return util.Timestamp(t, mode), nil
		}),
		expr.Function("format_duration", func(params ...any) (any, error) {
			if len(params) == 0 || len(params) > 2 {
				return nil, fmt.Errorf("format_duration expects 1 or 2 arguments, got %d", len(params))
			}
			d, err := toDuration(params[0])
			if err != nil {
				return nil, err
			}
			unit := "s"
			if len(params) == 2 {
				unit = fmt.Sprint(params[1])
			}
			return util.FormatDuration(d, unit), nil
		}),
		expr.Function("to_duration", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("to_duration expects 1 argument, got %d", len(params))
			}
			return util.ParseDuration(fmt.Sprint(params[0])), nil
		}, new(func(string) time.Duration)),
	}
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case int:
		return time.Unix(int64(t), 0), nil
	case int64:
		return time.Unix(t, 0), nil
	case float64:
		return time.Unix(int64(t), 0), nil
	default:
		return time.Time{}, fmt.Errorf("cannot use %T as a time", v)
	}
}

// toDuration accepts durations and plain seconds.
func toDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case int:
		return time.Duration(d) * time.Second, nil
	case int64:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	case string:
		return util.ParseDuration(d), nil
	default:
		return 0, fmt.Errorf("cannot use %T as a duration", v)
	}
}
