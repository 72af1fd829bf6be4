package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "scriptcord:"

// RedisStore keeps messages in a hash, timers in a hash keyed by timer id and
// due times in a sorted set scored by unix milliseconds.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Backend = (*RedisStore)(nil)

// NewRedisStore connects to the redis:// DSN in the options.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("redis DSN not set")
	}
	redisOpts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse redis DSN: %w", err)
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStoreFromClient(client, opts...), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, opts ...Option) *RedisStore {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	prefix := cfg.RedisPrefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) messagesKey() string { return s.prefix + "messages" }
func (s *RedisStore) timersKey() string   { return s.prefix + "timers" }
func (s *RedisStore) dueKey() string      { return s.prefix + "timers:due" }

func (s *RedisStore) LoadMessage(ctx context.Context, path models.ExecutionPath) (models.MessageRecord, bool, error) {
	var rec models.MessageRecord
	val, err := s.client.HGet(ctx, s.messagesKey(), string(path)).Result()
	if err == redis.Nil {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("load message %q: %w", path, err)
	}
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		slog.Warn("RedisStore.LoadMessage: corrupt record, ignoring", "path", path, "error", err)
		return rec, false, nil
	}
	return rec, true, nil
}

func (s *RedisStore) SaveMessage(ctx context.Context, path models.ExecutionPath, rec models.MessageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return persistence("marshal message", err)
	}
	if err := s.client.HSet(ctx, s.messagesKey(), string(path), data).Err(); err != nil {
		slog.Error("RedisStore.SaveMessage failed", "error", err, "path", path)
		return persistence("save message", err)
	}
	slog.Debug("RedisStore.SaveMessage succeeded", "path", path)
	return nil
}

func (s *RedisStore) SaveTimer(ctx context.Context, rec *models.TimerRecord) error {
	ensureTimerID(rec)
	data, err := json.Marshal(rec)
	if err != nil {
		return persistence("marshal timer", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.timersKey(), rec.ID, data)
		pipe.ZAdd(ctx, s.dueKey(), redis.Z{Score: float64(rec.Due.UnixMilli()), Member: rec.ID})
		return nil
	})
	if err != nil {
		slog.Error("RedisStore.SaveTimer failed", "error", err, "path", rec.Path)
		return persistence("save timer", err)
	}
	slog.Debug("RedisStore.SaveTimer succeeded", "id", rec.ID, "path", rec.Path, "due", rec.Due)
	return nil
}

func (s *RedisStore) DueTimers(ctx context.Context, now time.Time) ([]models.TimerRecord, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.dueKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query due timers: %w", err)
	}
	recs, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	due := recs[:0]
	for _, r := range recs {
		if r.IsDue(now) {
			due = append(due, r)
		}
	}
	return due, nil
}

func (s *RedisStore) load(ctx context.Context, ids []string) ([]models.TimerRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	vals, err := s.client.HMGet(ctx, s.timersKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load timers: %w", err)
	}
	out := make([]models.TimerRecord, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec models.TimerRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			slog.Warn("RedisStore: corrupt timer, skipping", "id", ids[i], "error", err)
			continue
		}
		rec.ID = ids[i]
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) RemoveTimers(ctx context.Context, recs []models.TimerRecord) error {
	ids := timerIDs(recs)
	if len(ids) == 0 {
		return nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.timersKey(), ids...)
		pipe.ZRem(ctx, s.dueKey(), members...)
		return nil
	})
	if err != nil {
		slog.Error("RedisStore.RemoveTimers failed", "error", err)
		return persistence("remove timers", err)
	}
	slog.Debug("RedisStore.RemoveTimers succeeded", "count", len(ids))
	return nil
}

func (s *RedisStore) Timers(ctx context.Context) ([]models.TimerRecord, error) {
	ids, err := s.client.ZRange(ctx, s.dueKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list timers: %w", err)
	}
	recs, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Due.Before(recs[j].Due) })
	return recs, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
