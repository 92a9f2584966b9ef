package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goldprice/internal/app"
	"goldprice/internal/config"
	"goldprice/internal/logging"
	"goldprice/internal/metrics"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a JSON or YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.Refresh.Enabled {
		_ = a.Scheduler.Start(ctx)
	}

	h := &handlers{
		prices:    a.Pricing,
		refresher: a.Refresher,
		hours:     a.Hours,
		log:       logger,
		now:       time.Now,
	}

	root := http.NewServeMux()
	if cfg.Metrics.Enabled {
		metrics.Init()
		// promhttp negotiates its own compression
		root.Handle("GET /metrics", metrics.Handler())
	}
	root.Handle("/", withJSONHeaders(withGzip(recoverPanic(logger, limitBody(cfg.Server.MaxBodyBytes, h.routes())))))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withMetrics(logger, root),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.RequestTimeoutSec)*time.Second + time.Duration(cfg.Refresh.AdapterTimeoutMs)*time.Millisecond,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if cfg.Refresh.Enabled {
		if err := a.Scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("scheduler did not stop in time", "error", err)
		}
	}
	logger.Info("server stopped")
}
