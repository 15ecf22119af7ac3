package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sakashimaa/vani-inventory/internal/confirm"
	"github.com/sakashimaa/vani-inventory/internal/gate"
	"github.com/sakashimaa/vani-inventory/internal/metrics"
	"github.com/sakashimaa/vani-inventory/internal/session"
	grpcTransport "github.com/sakashimaa/vani-inventory/internal/transport/grpc"
	httpTransport "github.com/sakashimaa/vani-inventory/internal/transport/http"
	"github.com/sakashimaa/vani-inventory/internal/workflow"
	"github.com/sakashimaa/vani-inventory/migrations"
	"github.com/sakashimaa/vani-inventory/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	googleGrpc "google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the outbox relay and the gRPC health server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	st, err := newStack(ctx, "inventory-api")
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		st.close(closeCtx)
	}()

	cfg, logger := st.cfg, st.logger

	if err := db.Migrate(cfg.Postgres.URL, migrations.FS); err != nil {
		return err
	}

	tokens, err := session.NewTokens(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("error creating token issuer: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	stopOutbox, err := st.startOutbox(runCtx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		if err := st.live.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Live projection stopped", zap.Error(err))
		}
	})

	redisPing := grpcTransport.PingFunc(func(ctx context.Context) error {
		return st.rdb.Ping(ctx).Err()
	})
	health := grpcTransport.NewHealthChecker(map[string]grpcTransport.Pinger{
		"postgres": st.pool,
		"redis":    redisPing,
	}, 5*time.Second, logger)
	wg.Go(func() { health.Run(runCtx) })

	grpcServer := health.NewServer()
	shutdown := make(chan struct{})

	m := metrics.New()
	wg.Go(func() { m.Track(runCtx, st.live) })

	authHandler := httpTransport.NewAuthHandler(
		authenticatorFactory(st),
		st.flag,
		cfg.Auth.SessionTTL,
		tokens,
		cfg.Auth.ChallengeTimeout,
		logger,
	)
	inventoryHandler := httpTransport.NewInventoryHandler(
		workflow.New(st.service, nil, cfg.Currency, logger),
		st.live,
		confirm.NewStore(st.rdb, cfg.Confirm.TTL, logger),
		cfg.HTTP.Timeout,
		shutdown,
		logger,
	)

	app := httpTransport.NewApp(
		httpTransport.AppConfig{
			RateLimit:  cfg.HTTP.RateLimit,
			RateWindow: cfg.HTTP.RateWindow,
			Metrics:    m,
		},
		&httpTransport.Handlers{Auth: authHandler, Inventory: inventoryHandler},
		tokens,
	)

	errCh := make(chan error, 2)
	if err := serveGRPC(grpcServer, cfg.GRPC.Port, logger, errCh); err != nil {
		cancelRun()
		wg.Wait()
		stopOutbox()
		return err
	}

	metricsServer := &http.Server{
		Addr:              cfg.Metrics.Port,
		Handler:           m.Handler(),
		ReadHeaderTimeout: cfg.HTTP.Timeout,
	}
	go func() {
		logger.Info("Metrics server listening", zap.String("port", cfg.Metrics.Port))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics serving failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("HTTP server listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			errCh <- fmt.Errorf("error listening HTTP on port %s: %w", cfg.HTTP.Port, err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		logger.Error("Server stopped", zap.Error(serveErr))
	}

	logger.Info("Shutting down gracefully...")

	close(shutdown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("Error shutting down HTTP server", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error shutting down metrics server", zap.Error(err))
	}

	grpcServer.GracefulStop()

	cancelRun()
	wg.Wait()
	stopOutbox()

	logger.Info("Stopped")
	return serveErr
}

func serveGRPC(s *googleGrpc.Server, port string, logger *zap.Logger, errCh chan<- error) error {
	lis, err := net.Listen("tcp", port)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", port, err)
	}

	go func() {
		logger.Info("gRPC health server listening", zap.String("port", port))
		if err := s.Serve(lis); err != nil && !errors.Is(err, googleGrpc.ErrServerStopped) {
			errCh <- fmt.Errorf("error serving gRPC: %w", err)
		}
	}()

	return nil
}

// authenticatorFactory builds the per-request device for /auth/challenge.
// The remote bridge is shared so its breaker sees every call.
func authenticatorFactory(st *stack) httpTransport.AuthenticatorFactory {
	if st.cfg.Auth.Mode == authRemote {
		remote := st.authenticator(nil)
		return func(string) gate.Authenticator { return remote }
	}

	return func(passcode string) gate.Authenticator {
		return st.authenticator(gate.StaticPasscode(passcode))
	}
}
