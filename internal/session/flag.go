package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	"go.uber.org/zap"
)

const flagKey = "inventory:authenticated"

// FlagStore persists the "authenticated" flag set by the gate after a
// successful challenge.
type FlagStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewFlagStore(rdb *redis.Client, logger *zap.Logger) *FlagStore {
	return &FlagStore{rdb: rdb, logger: logger}
}

// SetAuthenticated stores the flag. A zero ttl keeps it until Clear.
func (f *FlagStore) SetAuthenticated(ctx context.Context, ttl time.Duration) error {
	if err := f.rdb.Set(ctx, flagKey, "true", ttl).Err(); err != nil {
		mylogger.Error(ctx, f.logger, "Error saving authenticated flag", zap.Error(err))
		return fmt.Errorf("error saving authenticated flag: %w", err)
	}

	return nil
}

func (f *FlagStore) Authenticated(ctx context.Context) (bool, error) {
	val, err := f.rdb.Get(ctx, flagKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}

		mylogger.Error(ctx, f.logger, "Error reading authenticated flag", zap.Error(err))
		return false, fmt.Errorf("error reading authenticated flag: %w", err)
	}

	return val == "true", nil
}

func (f *FlagStore) Clear(ctx context.Context) error {
	if err := f.rdb.Del(ctx, flagKey).Err(); err != nil {
		return fmt.Errorf("error clearing authenticated flag: %w", err)
	}

	return nil
}
