package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore keeps the state in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Backend = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) LoadMessage(ctx context.Context, path models.ExecutionPath) (models.MessageRecord, bool, error) {
	var rec models.MessageRecord
	err := s.db.QueryRowContext(ctx, `SELECT channel_id, message_id FROM messages WHERE path = $1`, string(path)).
		Scan(&rec.ChannelID, &rec.MessageID)
	if err == sql.ErrNoRows {
		return rec, false, nil
	}
	if err != nil {
		slog.Error("PostgresStore.LoadMessage failed", "error", err, "path", path)
		return rec, false, fmt.Errorf("load message %q: %w", path, err)
	}
	return rec, true, nil
}

func (s *PostgresStore) SaveMessage(ctx context.Context, path models.ExecutionPath, rec models.MessageRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (path, channel_id, message_id, updated_at) VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (path) DO UPDATE SET channel_id = EXCLUDED.channel_id, message_id = EXCLUDED.message_id, updated_at = NOW()`,
		string(path), string(rec.ChannelID), string(rec.MessageID))
	if err != nil {
		slog.Error("PostgresStore.SaveMessage failed", "error", err, "path", path)
		return persistence("save message", err)
	}
	slog.Debug("PostgresStore.SaveMessage succeeded", "path", path)
	return nil
}

func (s *PostgresStore) SaveTimer(ctx context.Context, rec *models.TimerRecord) error {
	ensureTimerID(rec)
	actions, err := marshalActions(rec.Do)
	if err != nil {
		return persistence("save timer", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO timers (id, path, channel_id, user_id, guild_id, due_at, actions_json) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, string(rec.Path), nilIfEmpty(rec.ChannelID), nilIfEmpty(rec.UserID), nilIfEmpty(rec.GuildID), rec.Due.UnixNano(), actions)
	if err != nil {
		slog.Error("PostgresStore.SaveTimer failed", "error", err, "path", rec.Path)
		return persistence("save timer", err)
	}
	slog.Debug("PostgresStore.SaveTimer succeeded", "id", rec.ID, "path", rec.Path, "due", rec.Due)
	return nil
}

func (s *PostgresStore) DueTimers(ctx context.Context, now time.Time) ([]models.TimerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, channel_id, user_id, guild_id, due_at, actions_json FROM timers WHERE due_at <= $1 ORDER BY seq`,
		now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query due timers: %w", err)
	}
	return scanTimers(rows)
}

func (s *PostgresStore) RemoveTimers(ctx context.Context, recs []models.TimerRecord) error {
	ids := timerIDs(recs)
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM timers WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		slog.Error("PostgresStore.RemoveTimers failed", "error", err)
		return persistence("remove timers", err)
	}
	slog.Debug("PostgresStore.RemoveTimers succeeded", "count", len(ids))
	return nil
}

func (s *PostgresStore) Timers(ctx context.Context) ([]models.TimerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, channel_id, user_id, guild_id, due_at, actions_json FROM timers ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query timers: %w", err)
	}
	return scanTimers(rows)
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
