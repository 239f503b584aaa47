package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/colinxr/notion-graph-view-sub001/internal/config"
	"github.com/colinxr/notion-graph-view-sub001/internal/di"
	"github.com/colinxr/notion-graph-view-sub001/internal/logging"
)

const cacheCleanupInterval = time.Minute

func newServeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt)
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	cfg, logger := rt.cfg, rt.logger

	container, cleanup, err := di.InitializeContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", zap.Error(err))
		return err
	}
	defer cleanup()

	// The background publisher outlives ctx so Shutdown can drain it.
	container.Background.Start(context.Background())

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      container.HTTPHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server",
			zap.String("address", srv.Addr),
			zap.String("environment", string(cfg.Environment)),
			zap.String("store", cfg.Store.Driver),
			zap.Strings("config_sources", cfg.LoadedFrom))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return container.MemoryStore.RunCleanup(gctx, cacheCleanupInterval)
	})

	if rt.loader.Path() != "" {
		watcher, err := config.NewWatcher(rt.loader, cfg, logger)
		if err != nil {
			logger.Warn("config hot reload disabled", zap.Error(err))
		} else {
			watcher.OnChange(func(next *config.Config) {
				if logging.SetLevel(rt.level, next.Logging.Level) {
					logger.Info("log level updated", zap.String("level", next.Logging.Level))
				}
			})
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		if err := container.Background.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("background publisher shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("graphsync stopped with error", zap.Error(err))
		return err
	}
	logger.Info("graphsync stopped")
	return nil
}
