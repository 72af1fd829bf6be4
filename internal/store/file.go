package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/BTreeMap/ScriptCord/internal/models"
)

// DefaultDirPermissions defines the default permissions for state directories.
const DefaultDirPermissions = 0755

type document struct {
	Messages map[models.ExecutionPath]models.MessageRecord `json:"messages"`
	Timers   []models.TimerRecord                          `json:"timers"`
}

// FileStore keeps the whole state in one JSON document that is rewritten
// atomically after every mutation.
type FileStore struct {
	mu   sync.Mutex
	path string
	doc  document
}

var _ Backend = (*FileStore)(nil)

// NewFileStore loads path. A missing or unparsable file is re-initialised and
// written immediately.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return nil, persistence("create state directory", err)
	}

	s := &FileStore{path: path}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.doc); err != nil {
			slog.Warn("FileStore: state file is not valid JSON, re-initialising", "path", path, "error", err)
			s.doc = document{}
		}
	case os.IsNotExist(err):
		slog.Info("FileStore: state file not found, creating", "path", path)
	default:
		slog.Warn("FileStore: state file unreadable, re-initialising", "path", path, "error", err)
	}

	if s.doc.Messages == nil {
		s.doc.Messages = make(map[models.ExecutionPath]models.MessageRecord)
	}
	if s.doc.Timers == nil {
		s.doc.Timers = []models.TimerRecord{}
	}
	for i := range s.doc.Timers {
		ensureTimerID(&s.doc.Timers[i])
	}
	if err := s.flush(); err != nil {
		return nil, err
	}
	slog.Debug("FileStore: loaded state", "path", path, "messages", len(s.doc.Messages), "timers", len(s.doc.Timers))
	return s, nil
}

// flush writes the document to a temp file, syncs it and renames it over the
// state file. Callers hold s.mu.
func (s *FileStore) flush() error {
	data, err := json.MarshalIndent(s.doc, "", "    ")
	if err != nil {
		return persistence("marshal state", err)
	}

	dir := filepath.Dir(s.path)
	tmpFile, err := os.CreateTemp(dir, "tmp-"+filepath.Base(s.path)+"-*")
	if err != nil {
		return persistence("create temp state file", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return persistence("write temp state file", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return persistence("fsync temp state file", err)
	}
	if err := tmpFile.Close(); err != nil {
		return persistence("close temp state file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return persistence("replace state file", err)
	}
	return nil
}

func (s *FileStore) LoadMessage(_ context.Context, path models.ExecutionPath) (models.MessageRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.doc.Messages[path]
	return rec, ok, nil
}

func (s *FileStore) SaveMessage(_ context.Context, path models.ExecutionPath, rec models.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.doc.Messages[path]
	s.doc.Messages[path] = rec
	if err := s.flush(); err != nil {
		if had {
			s.doc.Messages[path] = prev
		} else {
			delete(s.doc.Messages, path)
		}
		return err
	}
	slog.Debug("FileStore.SaveMessage: saved", "path", path)
	return nil
}

func (s *FileStore) SaveTimer(_ context.Context, rec *models.TimerRecord) error {
	ensureTimerID(rec)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Timers = append(s.doc.Timers, *rec)
	if err := s.flush(); err != nil {
		s.doc.Timers = s.doc.Timers[:len(s.doc.Timers)-1]
		return err
	}
	slog.Debug("FileStore.SaveTimer: saved", "path", rec.Path, "id", rec.ID, "due", rec.Due)
	return nil
}

func (s *FileStore) DueTimers(_ context.Context, now time.Time) ([]models.TimerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.TimerRecord
	for _, t := range s.doc.Timers {
		if t.IsDue(now) {
			due = append(due, t)
		}
	}
	return due, nil
}

func (s *FileStore) RemoveTimers(_ context.Context, recs []models.TimerRecord) error {
	if len(recs) == 0 {
		return nil
	}
	ids := timerIDs(recs)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := slices.Clone(s.doc.Timers)
	s.doc.Timers = slices.DeleteFunc(s.doc.Timers, func(t models.TimerRecord) bool {
		return slices.Contains(ids, t.ID)
	})
	if err := s.flush(); err != nil {
		s.doc.Timers = prev
		return err
	}
	slog.Debug("FileStore.RemoveTimers: removed", "count", len(prev)-len(s.doc.Timers))
	return nil
}

func (s *FileStore) Timers(_ context.Context) ([]models.TimerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.doc.Timers), nil
}

// Close is a no-op; every mutation is already on disk.
func (s *FileStore) Close() error {
	return nil
}
