package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/google/uuid"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s models.Snowflake) interface{} {
	if s == "" {
		return nil
	}
	return string(s)
}

func ensureTimerID(rec *models.TimerRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
}

func marshalActions(do []any) (string, error) {
	data, err := json.Marshal(do)
	if err != nil {
		return "", fmt.Errorf("marshal timer actions: %w", err)
	}
	return string(data), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTimer scans id, path, channel, user, guild, due (unix nanos), actions.
func scanTimer(row rowScanner) (models.TimerRecord, error) {
	var rec models.TimerRecord
	var channel, user, guild sql.NullString
	var due int64
	var actions string
	if err := row.Scan(&rec.ID, &rec.Path, &channel, &user, &guild, &due, &actions); err != nil {
		return rec, fmt.Errorf("scan timer failed: %w", err)
	}
	rec.ChannelID = models.Snowflake(channel.String)
	rec.UserID = models.Snowflake(user.String)
	rec.GuildID = models.Snowflake(guild.String)
	rec.Due = time.Unix(0, due).UTC()
	do, err := models.DecodeActions([]byte(actions))
	if err != nil {
		return rec, fmt.Errorf("decode actions of timer %s: %w", rec.ID, err)
	}
	rec.Do = do
	return rec, nil
}

func scanTimers(rows *sql.Rows) ([]models.TimerRecord, error) {
	defer rows.Close()
	var out []models.TimerRecord
	for rows.Next() {
		rec, err := scanTimer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timer rows: %w", err)
	}
	return out, nil
}

func timerIDs(recs []models.TimerRecord) []string {
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
