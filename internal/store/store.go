// Package store persists the interpreter state: the identity of messages sent
// by update actions and the pending timers created by wait actions.
//
// Several backends implement Backend. FileStore keeps the JSON document used
// by earlier deployments and is the default; SQLite, Postgres and Redis serve
// larger installations. Every mutating call is durable before it returns.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/ScriptCord/internal/models"
)

// Backend types returned by DetectDSNType.
const (
	TypeFile     = "file"
	TypeSQLite   = "sqlite3"
	TypePostgres = "postgres"
	TypeRedis    = "redis"
)

// DefaultStateFile is the state file name inside the state directory.
const DefaultStateFile = "data.json"

// Backend is a persistence backend.
type Backend interface {
	// LoadMessage returns the record stored for path.
	LoadMessage(ctx context.Context, path models.ExecutionPath) (models.MessageRecord, bool, error)
	// SaveMessage upserts the record for path.
	SaveMessage(ctx context.Context, path models.ExecutionPath, rec models.MessageRecord) error
	// SaveTimer appends a timer. An empty ID is filled in.
	SaveTimer(ctx context.Context, rec *models.TimerRecord) error
	// DueTimers returns the timers whose due time is at or before now.
	DueTimers(ctx context.Context, now time.Time) ([]models.TimerRecord, error)
	// RemoveTimers deletes the given timers by ID.
	RemoveTimers(ctx context.Context, recs []models.TimerRecord) error
	// Timers returns every pending timer.
	Timers(ctx context.Context) ([]models.TimerRecord, error)
	Close() error
}

// Opts holds configuration for opening a backend.
type Opts struct {
	DSN         string
	RedisPrefix string
}

// Option is a functional option for configuring a backend.
type Option func(*Opts)

// WithDSN sets the backend DSN. A path ending in .json selects FileStore.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithStateDir selects the default state file inside dir.
func WithStateDir(dir string) Option {
	return func(o *Opts) {
		o.DSN = filepath.Join(dir, DefaultStateFile)
	}
}

// WithRedisPrefix sets the key prefix used by RedisStore.
func WithRedisPrefix(prefix string) Option {
	return func(o *Opts) {
		o.RedisPrefix = prefix
	}
}

// DetectDSNType returns the backend type for dsn.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"),
		strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return TypePostgres
	case strings.HasPrefix(lower, "redis://"), strings.HasPrefix(lower, "rediss://"):
		return TypeRedis
	case strings.HasPrefix(lower, "file:"), strings.HasSuffix(lower, ".db"),
		strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return TypeSQLite
	default:
		return TypeFile
	}
}

// Open creates the backend selected by the configured DSN.
func Open(opts ...Option) (Backend, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		cfg.DSN = DefaultStateFile
	}

	kind := DetectDSNType(cfg.DSN)
	slog.Debug("store.Open: opening state backend", "type", kind)
	var (
		b   Backend
		err error
	)
	switch kind {
	case TypePostgres:
		b, err = NewPostgresStore(opts...)
	case TypeSQLite:
		b, err = NewSQLiteStore(opts...)
	case TypeRedis:
		b, err = NewRedisStore(opts...)
	default:
		b, err = NewFileStore(cfg.DSN)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s state backend: %w", kind, err)
	}
	return b, nil
}

// persistence wraps err so callers can detect durability failures.
func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrPersistence, err)
}
