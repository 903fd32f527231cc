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

	"github.com/daniacca/graphitecore/internal/config"
	"github.com/daniacca/graphitecore/internal/logging"
	"github.com/daniacca/graphitecore/internal/store/sqlite"
	"github.com/daniacca/graphitecore/internal/telemetry"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "reactord:", err)
		os.Exit(1)
	}
}

func run() error {
	srvCfg, err := loadServerConfig(os.Args[1:])
	if err != nil {
		return err
	}

	logger, err := logging.New(srvCfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Default()
	if srvCfg.ConfigFile != "" {
		if cfg, err = config.Load(srvCfg.ConfigFile); err != nil {
			return err
		}
		logger.Infof("Plant config loaded: path=%s reactors=%d", srvCfg.ConfigFile, len(cfg.Reactors))
	}
	if srvCfg.TickInterval > 0 {
		cfg.Scheduler.TickInterval = srvCfg.TickInterval
	}
	if srvCfg.TelemetryPath != "" {
		cfg.Telemetry.Path = srvCfg.TelemetryPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *sqlite.Store
	if srvCfg.SnapshotDB != "" {
		if store, err = sqlite.Open(ctx, srvCfg.SnapshotDB); err != nil {
			return err
		}
		defer store.Close()
		logger.Infof("Snapshot store opened: path=%s every=%d keep=%d", srvCfg.SnapshotDB, srvCfg.SnapshotEveryTicks, srvCfg.SnapshotKeep)
	}

	recorder, err := telemetry.Create(cfg.Telemetry.Path, cfg.Telemetry.Every)
	if err != nil {
		return err
	}

	srv, err := NewServer(ServerOptions{
		Config:             cfg,
		Logger:             logger,
		Store:              store,
		Recorder:           recorder,
		SnapshotEveryTicks: srvCfg.SnapshotEveryTicks,
		SnapshotKeep:       srvCfg.SnapshotKeep,
	})
	if err != nil {
		_ = recorder.Close()
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warnf("Shutdown incomplete: error=%v", err)
		}
	}()

	if err := srv.Bootstrap(ctx, srvCfg.Restore); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.Zap()),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("reactord listening: addr=%s tick_interval=%s", srvCfg.Addr, cfg.Scheduler.TickInterval)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Infof("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
