package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
)

// Fetcher reads live messages back from the platform.
type Fetcher interface {
	Channel(ctx context.Context, id models.Snowflake) (*platform.Channel, error)
	FetchMessage(ctx context.Context, channelID, messageID models.Snowflake) (*platform.Message, error)
}

// State is the facade the interpreter uses over a Backend.
type State struct {
	backend Backend
}

// NewState wraps b.
func NewState(b Backend) *State {
	return &State{backend: b}
}

// GetMessage returns the live message stored for path. An unknown path, a
// channel that no longer resolves and a deleted message all yield nil without
// error.
func (s *State) GetMessage(ctx context.Context, path models.ExecutionPath, f Fetcher) (*platform.Message, error) {
	rec, ok, err := s.backend.LoadMessage(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Debug("State.GetMessage: no stored message", "path", path)
		return nil, nil
	}
	if _, err := f.Channel(ctx, rec.ChannelID); err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			slog.Warn("State.GetMessage: stored channel no longer exists", "path", path, "channel", rec.ChannelID)
			return nil, nil
		}
		return nil, fmt.Errorf("resolve channel %s: %w", rec.ChannelID, err)
	}
	msg, err := f.FetchMessage(ctx, rec.ChannelID, rec.MessageID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			slog.Warn("State.GetMessage: stored message was deleted", "path", path, "message", rec.MessageID)
			return nil, nil
		}
		return nil, fmt.Errorf("fetch message %s: %w", rec.MessageID, err)
	}
	return msg, nil
}

// SaveMessage records msg as the message owned by path.
func (s *State) SaveMessage(ctx context.Context, path models.ExecutionPath, msg *platform.Message) error {
	if msg == nil {
		return nil
	}
	return s.backend.SaveMessage(ctx, path, models.MessageRecord{ChannelID: msg.ChannelID, MessageID: msg.ID})
}

// SaveTimer persists a new timer.
func (s *State) SaveTimer(ctx context.Context, rec *models.TimerRecord) error {
	return s.backend.SaveTimer(ctx, rec)
}

// DueTimers returns the timers due at or before now.
func (s *State) DueTimers(ctx context.Context, now time.Time) ([]models.TimerRecord, error) {
	return s.backend.DueTimers(ctx, now)
}

// RemoveTimers deletes executed timers in one batch.
func (s *State) RemoveTimers(ctx context.Context, recs []models.TimerRecord) error {
	return s.backend.RemoveTimers(ctx, recs)
}

// Timers lists every pending timer.
func (s *State) Timers(ctx context.Context) ([]models.TimerRecord, error) {
	return s.backend.Timers(ctx)
}

// Close closes the backend.
func (s *State) Close() error {
	return s.backend.Close()
}
