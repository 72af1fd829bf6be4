package flow

import (
	"context"
	"fmt"
	"log/slog"
)

// RunDueTimers executes every timer due now and removes them in one batch.
// It returns the number of timers run.
func (e *Engine) RunDueTimers(ctx context.Context) (int, error) {
	due, err := e.state.DueTimers(ctx, e.now())
	if err != nil {
		err = fmt.Errorf("load due timers: %w", err)
		e.fatal(err)
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}
	slog.Debug("Engine.RunDueTimers: timers due", "count", len(due))

	for _, rec := range due {
		inv := e.Resolve(ctx, rec.ChannelID, rec.UserID, rec.GuildID)
		if err := e.runDefs(ctx, rec.Do, rec.Path.Child("do"), inv); err != nil {
			return 0, err
		}
	}

	if err := e.state.RemoveTimers(ctx, due); err != nil {
		err = fmt.Errorf("remove timers: %w", err)
		e.fatal(err)
		return 0, err
	}
	e.metrics.TimersFired(len(due))
	slog.Info("Engine.RunDueTimers: timers executed", "count", len(due))
	return len(due), nil
}
