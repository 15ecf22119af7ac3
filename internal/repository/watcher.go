package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	"go.uber.org/zap"
)

const changedSuffix = "_changed"

// Change is one notification from the collection change feed.
type Change struct {
	Collection domain.Collection
	Op         string
}

// Watcher turns Postgres notifications fired by the collection triggers
// into Change callbacks.
type Watcher struct {
	pool        *pgxpool.Pool
	logger      *zap.Logger
	collections []domain.Collection
}

func NewWatcher(pool *pgxpool.Pool, logger *zap.Logger) *Watcher {
	return &Watcher{
		pool:        pool,
		logger:      logger,
		collections: []domain.Collection{domain.CollectionProducts, domain.CollectionSales},
	}
}

// Watch holds one connection listening on every collection channel and
// calls fn for each notification. ready, if set, runs once every LISTEN has
// been issued. It returns nil once ctx is done, after unlistening and
// releasing the connection.
func (w *Watcher) Watch(ctx context.Context, ready func(), fn func(Change)) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("error acquiring listen connection: %w", err)
	}

	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		if _, err := conn.Exec(cleanupCtx, "UNLISTEN *"); err != nil {
			mylogger.Debug(cleanupCtx, w.logger, "Unlisten failed, dropping connection", zap.Error(err))
			conn.Conn().Close(cleanupCtx)
		}
		conn.Release()
	}()

	for _, c := range w.collections {
		if _, err := conn.Exec(ctx, "LISTEN "+string(c)+changedSuffix); err != nil {
			return fmt.Errorf("error listening on %s: %w", c, err)
		}
	}

	mylogger.Info(ctx, w.logger, "Watching collections")
	if ready != nil {
		ready()
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}

			return fmt.Errorf("error waiting for notification: %w", err)
		}

		fn(Change{
			Collection: domain.Collection(strings.TrimSuffix(n.Channel, changedSuffix)),
			Op:         n.Payload,
		})
	}
}
