package projection

import (
	"context"
	"time"

	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/internal/repository"
	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	"go.uber.org/zap"
)

const defaultReconnectDelay = time.Second

// Feed reports which collection changed. Watch calls ready once it is
// receiving changes, then blocks until ctx is done or the feed breaks, and
// must stop delivering once it returns.
type Feed interface {
	Watch(ctx context.Context, ready func(), notify func(domain.Collection)) error
}

type FeedFunc func(ctx context.Context, ready func(), notify func(domain.Collection)) error

func (f FeedFunc) Watch(ctx context.Context, ready func(), notify func(domain.Collection)) error {
	return f(ctx, ready, notify)
}

// PostgresFeed adapts the collection watcher.
func PostgresFeed(w *repository.Watcher) Feed {
	return FeedFunc(func(ctx context.Context, ready func(), notify func(domain.Collection)) error {
		return w.Watch(ctx, ready, func(c repository.Change) {
			notify(c.Collection)
		})
	})
}

// Loader reads full collections.
type Loader interface {
	Products(ctx context.Context) ([]domain.Product, error)
	Sales(ctx context.Context) ([]domain.Sale, error)
}

// Live keeps Products and Sales in step with the store.
type Live struct {
	Products *View[domain.Product]
	Sales    *View[domain.Sale]

	feed           Feed
	loader         Loader
	logger         *zap.Logger
	reconnectDelay time.Duration
}

func NewLive(feed Feed, loader Loader, logger *zap.Logger) *Live {
	return &Live{
		Products:       NewView[domain.Product](),
		Sales:          NewView[domain.Sale](),
		feed:           feed,
		loader:         loader,
		logger:         logger,
		reconnectDelay: defaultReconnectDelay,
	}
}

// Run loads both collections, then reloads a collection each time the feed
// names it. It returns once ctx is done and the feed has been released.
// Both collections are reloaded again whenever the feed reports ready, so
// writes committed before it was listening are not lost. A broken feed is
// restarted after a delay.
func (l *Live) Run(ctx context.Context) error {
	products := make(chan struct{}, 1)
	sales := make(chan struct{}, 1)

	notify := func(c domain.Collection) {
		switch c {
		case domain.CollectionProducts:
			signal(products)
		case domain.CollectionSales:
			signal(sales)
		}
	}

	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		l.runFeed(ctx, notify, func() {
			signal(products)
			signal(sales)
		})
	}()

	l.reloadProducts(ctx)
	l.reloadSales(ctx)

	for {
		select {
		case <-ctx.Done():
			<-feedDone
			mylogger.Info(context.WithoutCancel(ctx), l.logger, "Live projection stopped")
			return nil
		case <-products:
			l.reloadProducts(ctx)
		case <-sales:
			l.reloadSales(ctx)
		}
	}
}

func (l *Live) runFeed(ctx context.Context, notify func(domain.Collection), resync func()) {
	for {
		err := l.feed.Watch(ctx, resync, notify)
		if ctx.Err() != nil {
			return
		}

		mylogger.Warn(ctx, l.logger, "Change feed stopped, reconnecting", zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *Live) reloadProducts(ctx context.Context) {
	items, err := l.loader.Products(ctx)
	if err != nil {
		if ctx.Err() == nil {
			mylogger.Error(ctx, l.logger, "Failed to reload products", zap.Error(err))
		}
		return
	}

	l.Products.Set(items)
}

func (l *Live) reloadSales(ctx context.Context) {
	items, err := l.loader.Sales(ctx)
	if err != nil {
		if ctx.Err() == nil {
			mylogger.Error(ctx, l.logger, "Failed to reload sales", zap.Error(err))
		}
		return
	}

	domain.SortSalesNewestFirst(items)
	l.Sales.Set(items)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
