package payments

import (
	"context"
	"fmt"
	"payment-stats/internal/config"
	"payment-stats/internal/payments/repository"

	"github.com/redis/go-redis/v9"
)

// NewStore opens the payment store selected by cfg.Store. The returned
// close function releases it. rdb is only used by the redis store.
func NewStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (repository.Payment, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		return NewInMemoryPaymentDB(), func() {}, nil

	case config.StorePostgres:
		repo, err := NewPaymentPostgresRepository(ctx, cfg.ConnString)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, nil, err
		}
		return repo, repo.Close, nil

	case config.StoreSQLite:
		repo, err := NewSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store %s: %w", cfg.SQLitePath, err)
		}
		return repo, func() { repo.Close() }, nil

	case config.StoreRedis:
		if rdb == nil {
			return nil, nil, fmt.Errorf("redis store selected without a redis client")
		}
		return NewPaymentRedisRepository(rdb), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unknown payment store %q", cfg.Store)
}
