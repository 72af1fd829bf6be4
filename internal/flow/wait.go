package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/util"
	"github.com/BTreeMap/ScriptCord/internal/variables"
)

// waitAction schedules its do list to run after a delay. The list is stored as
// a timer record and picked up by the orchestrator's poll.
type waitAction struct {
	*base

	delay time.Duration
	do    []any
}

func (a *waitAction) gather(_ context.Context, e *Engine) error {
	m, err := a.fields()
	if err != nil {
		return err
	}

	timeRef, _ := models.Lookup(m, "time")
	a.delay = a.duration(e, timeRef)
	if a.delay <= 0 {
		return a.configf("time must have more than 0 seconds")
	}
	a.bind("delay", a.delay)

	do, _ := models.Lookup(m, "do")
	if src, ok := do.(string); ok {
		v, ok := e.eval.Evaluate(a.path, src, a.scope())
		if !ok {
			return a.configf("'do' expression could not be evaluated")
		}
		do = v
	}
	list, ok := models.AsList(do)
	if !ok {
		if single, isMap := models.AsMap(do); isMap {
			list = []any{single}
		}
	}
	if len(list) == 0 {
		return a.configf("wait needs a non-empty 'do' list")
	}
	a.do = list
	a.bind("do", a.do)
	return nil
}

// duration accepts a duration, a number of seconds, a duration string or the
// name of a variable holding one of those.
func (a *waitAction) duration(e *Engine, ref any) time.Duration {
	switch v := ref.(type) {
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case uint64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if vars := e.eval.Variables(); vars != nil && vars.Declared(variables.Normalize(v)) {
			val, ok := e.eval.Evaluate(a.path, variables.Normalize(v), a.scope())
			if !ok {
				return 0
			}
			if s, isString := val.(string); isString {
				return util.ParseDuration(s)
			}
			return a.duration(e, val)
		}
		return util.ParseDuration(v)
	default:
		return 0
	}
}

func (a *waitAction) perform(ctx context.Context, e *Engine) (bool, error) {
	rec := &models.TimerRecord{
		Path: a.path,
		Due:  e.now().Add(a.delay),
		Do:   a.do,
	}
	if a.channel != nil {
		rec.ChannelID = a.channel.ID
	}
	if a.user != nil {
		rec.UserID = a.user.ID
	}
	if a.guild != nil {
		rec.GuildID = a.guild.ID
	}
	if err := e.state.SaveTimer(ctx, rec); err != nil {
		return false, fmt.Errorf("save timer: %w", err)
	}
	slog.Info("waitAction.perform: timer scheduled", "path", a.path, "due", rec.Due, "delay", util.FormatDuration(a.delay, "s"))
	return true, nil
}
