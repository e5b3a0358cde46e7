package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/plansets/internal/common"
)

// RedisStore keeps the latest snapshot under one key, a history key per snapshot,
// and a journal list per session.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "plansets"
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger, now: time.Now}
}

func (s *RedisStore) latestKey() string {
	return s.prefix + ":checkpoint:latest"
}

func (s *RedisStore) journalKey(sessionID string) string {
	return s.prefix + ":journal:" + sessionID
}

func (s *RedisStore) Load(ctx context.Context) (*Checkpoint, error) {
	var cp *Checkpoint
	b, err := s.client.Get(ctx, s.latestKey()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("redis get checkpoint: %w", err)
	default:
		cp = &Checkpoint{}
		if err := json.Unmarshal(b, cp); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", common.ErrCheckpointCorrupt, s.latestKey(), err)
		}
	}

	journal, err := s.journals(ctx)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return fromJournal(journal), nil
	}
	if n := cp.Replay(journal); n > 0 {
		s.logger.Warn("checkpoint.journal.replayed", "session_id", cp.SessionID, "outcomes", n)
	}
	return cp, nil
}

func (s *RedisStore) journals(ctx context.Context) ([]Outcome, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.journalKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan journals: %w", err)
	}
	sort.Strings(keys)

	var out []Outcome
	for _, k := range keys {
		list, err := s.journalAt(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

func (s *RedisStore) Append(ctx context.Context, o Outcome) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.journalKey(o.SessionID), b).Err()
}

// AtomicWrite stores the snapshot in a MULTI/EXEC block so readers see either the
// previous or the new snapshot.
func (s *RedisStore) AtomicWrite(ctx context.Context, cp *Checkpoint) (string, error) {
	now := s.now().UTC()
	cp.CreatedAt = now
	b, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}
	historyKey := fmt.Sprintf("%s:checkpoint:%s:%s", s.prefix, cp.SessionID, now.Format(stampLayout))

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, historyKey, b, 0)
		pipe.Set(ctx, s.latestKey(), b, 0)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("redis write checkpoint: %w", err)
	}
	s.logger.Debug("checkpoint.write.ok", "key", historyKey, "outcomes", len(cp.Outcomes))
	return historyKey, nil
}

// Journal returns the journaled outcomes of a session.
func (s *RedisStore) Journal(ctx context.Context, sessionID string) ([]Outcome, error) {
	return s.journalAt(ctx, s.journalKey(sessionID))
}

func (s *RedisStore) journalAt(ctx context.Context, key string) ([]Outcome, error) {
	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Outcome, 0, len(vals))
	for _, v := range vals {
		var o Outcome
		if err := json.Unmarshal([]byte(v), &o); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", common.ErrCheckpointCorrupt, key, err)
		}
		out = append(out, o)
	}
	return out, nil
}
