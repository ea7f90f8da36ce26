package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reconquest/internal"
	"reconquest/internal/config"
	"reconquest/internal/engine"
	"reconquest/internal/httpapi"
	"reconquest/internal/logging"
	"reconquest/internal/snapshotter"
	"reconquest/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := storage.OpenFromConfig(ctx, cfg)
	must(err)
	defer store.Close()

	e, err := engine.New(cfg, engine.Deps{Store: store, Logger: logger})
	must(err)
	res, err := e.Init(ctx)
	must(err)
	logger.Info("invoices loaded",
		zap.String("source", string(res.Source)),
		zap.Int("loaded", res.Loaded),
		zap.Int("skipped", res.Skipped),
		zap.String("backend", store.Backend()),
	)

	e.SubscribePlans(func(_ context.Context, req internal.PlanRequest) error {
		logger.Info("plan requested",
			zap.String("subject_id", req.SubjectID),
			zap.String("subject", req.SubjectLabel),
			zap.String("kind", string(req.Plan.Kind)),
		)
		return nil
	})

	snaps := snapshotter.NewService(e, store, cfg, logger)
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		if err := snaps.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("snapshotter stopped", zap.Error(err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(e, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
		cancel()
	}
	logger.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	<-snapDone
	if err := e.Teardown(shutdownCtx); err != nil {
		logger.Error("final flush failed", zap.Error(err))
	}
	logger.Info("server exited")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
