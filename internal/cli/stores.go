package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/plansets/internal/checkpoint"
	"github.com/joseph-ayodele/plansets/internal/repository"
)

// openCheckpointStore returns the configured store and a cleanup func.
func (a *app) openCheckpointStore(ctx context.Context) (checkpoint.Store, func(), error) {
	s := a.cfg.Store
	switch s.CheckpointBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", s.RedisAddr, err)
		}
		a.logger.Info("checkpoint.store.redis", "addr", s.RedisAddr, "prefix", s.RedisKeyPrefix)
		return checkpoint.NewRedisStore(client, s.RedisKeyPrefix, a.logger), func() { _ = client.Close() }, nil
	default:
		a.logger.Info("checkpoint.store.file", "dir", s.CheckpointDir)
		return checkpoint.NewFileStore(s.CheckpointDir, a.logger), func() {}, nil
	}
}

// openResponses returns the raw response repository: SQL when a DSN is configured, files otherwise.
func (a *app) openResponses(ctx context.Context) (repository.ResponseRepository, func(), error) {
	s := a.cfg.Store
	if s.ResponsesDSN == "" {
		return repository.NewFileResponseRepository(s.ResponsesDir, a.logger), func() {}, nil
	}

	db, err := repository.Open(ctx, repository.Config{
		DSN:             s.ResponsesDSN,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		DialTimeout:     3 * time.Second,
	}, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open responses database: %w", err)
	}
	if err := db.HealthCheck(ctx, 5*time.Second, a.logger); err != nil {
		db.Close(a.logger)
		return nil, nil, fmt.Errorf("ping responses database: %w", err)
	}
	if err := repository.Migrate(ctx, db); err != nil {
		db.Close(a.logger)
		return nil, nil, fmt.Errorf("migrate responses database: %w", err)
	}
	return repository.NewSQLResponseRepository(db, a.logger), func() { db.Close(a.logger) }, nil
}
