package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/BTreeMap/ScriptCord/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore keeps the state in an SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Backend = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	if path := strings.TrimPrefix(dsn, "file:"); !strings.HasPrefix(path, ":memory:") {
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// One writer at a time keeps flush-per-write semantics simple.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadMessage(ctx context.Context, path models.ExecutionPath) (models.MessageRecord, bool, error) {
	var rec models.MessageRecord
	err := s.db.QueryRowContext(ctx, `SELECT channel_id, message_id FROM messages WHERE path = ?`, string(path)).
		Scan(&rec.ChannelID, &rec.MessageID)
	if err == sql.ErrNoRows {
		return rec, false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.LoadMessage failed", "error", err, "path", path)
		return rec, false, fmt.Errorf("load message %q: %w", path, err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, path models.ExecutionPath, rec models.MessageRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (path, channel_id, message_id, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET channel_id = excluded.channel_id, message_id = excluded.message_id, updated_at = excluded.updated_at`,
		string(path), string(rec.ChannelID), string(rec.MessageID), time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore.SaveMessage failed", "error", err, "path", path)
		return persistence("save message", err)
	}
	slog.Debug("SQLiteStore.SaveMessage succeeded", "path", path)
	return nil
}

func (s *SQLiteStore) SaveTimer(ctx context.Context, rec *models.TimerRecord) error {
	ensureTimerID(rec)
	actions, err := marshalActions(rec.Do)
	if err != nil {
		return persistence("save timer", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO timers (id, path, channel_id, user_id, guild_id, due_at, actions_json) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Path), nilIfEmpty(rec.ChannelID), nilIfEmpty(rec.UserID), nilIfEmpty(rec.GuildID), rec.Due.UnixNano(), actions)
	if err != nil {
		slog.Error("SQLiteStore.SaveTimer failed", "error", err, "path", rec.Path)
		return persistence("save timer", err)
	}
	slog.Debug("SQLiteStore.SaveTimer succeeded", "id", rec.ID, "path", rec.Path, "due", rec.Due)
	return nil
}

func (s *SQLiteStore) DueTimers(ctx context.Context, now time.Time) ([]models.TimerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, channel_id, user_id, guild_id, due_at, actions_json FROM timers WHERE due_at <= ? ORDER BY seq`,
		now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query due timers: %w", err)
	}
	return scanTimers(rows)
}

func (s *SQLiteStore) RemoveTimers(ctx context.Context, recs []models.TimerRecord) error {
	ids := timerIDs(recs)
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence("remove timers", err)
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM timers WHERE id = ?`, id); err != nil {
			return persistence("remove timers", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return persistence("remove timers", err)
	}
	slog.Debug("SQLiteStore.RemoveTimers succeeded", "count", len(ids))
	return nil
}

func (s *SQLiteStore) Timers(ctx context.Context) ([]models.TimerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, channel_id, user_id, guild_id, due_at, actions_json FROM timers ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query timers: %w", err)
	}
	return scanTimers(rows)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
