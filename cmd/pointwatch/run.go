package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pointwatch/pointwatch/internal/config"
	"github.com/pointwatch/pointwatch/internal/connection"
	"github.com/pointwatch/pointwatch/internal/history"
	"github.com/pointwatch/pointwatch/internal/metrics"
	"github.com/pointwatch/pointwatch/internal/reward"
	"github.com/pointwatch/pointwatch/internal/state"
	"github.com/pointwatch/pointwatch/internal/version"
)

// tokenEnvVar overrides the config token when set.
const tokenEnvVar = "POINTWATCH_TOKEN"

var (
	configPath string
	debugLog   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pointwatch daemon",
	RunE:  runDaemon,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "configs/pointwatch.yaml", "path to config file")
	runCmd.Flags().BoolVar(&debugLog, "debug", false, "enable debug logging")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if debugLog {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting pointwatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	store := state.Open(config.ExpandHome(cfg.Store.Path), cfg.Store.FlushInterval, logger)
	defer store.Close()

	// Token resolution order: config, environment, state store. A missing
	// token is the one fatal startup condition.
	token := cfg.Service.Token
	if token == "" {
		token = os.Getenv(tokenEnvVar)
	}
	if token == "" {
		token = store.AccessToken()
	}
	if token == "" {
		return errors.New("no access token: set service.token, " + tokenEnvVar + ", or access_token in the state store")
	}

	proxies, err := cfg.ProxyList()
	if err != nil {
		return fmt.Errorf("load proxies: %w", err)
	}

	metrics.Register()

	poolCfg := connection.PoolConfig{
		ServiceURL:         cfg.Service.URL,
		ProtocolVersion:    cfg.Service.Version,
		Token:              token,
		Proxies:            proxies,
		PingInterval:       cfg.Connections.PingInterval,
		HandshakeTimeout:   cfg.Connections.HandshakeTimeout,
		ReconnectBaseDelay: cfg.Connections.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Connections.ReconnectMaxDelay,
		SweepInterval:      cfg.Connections.SweepInterval,
		BufferSize:         cfg.Connections.BufferSize,
	}
	pool := connection.NewPool(poolCfg, store, logger)

	estimator := reward.New(reward.Config{Interval: cfg.Estimator.Interval}, store, logger)
	if err := estimator.Start(ctx); err != nil {
		return fmt.Errorf("start estimator: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		estimator.Stop(stopCtx)
	}()

	// Optional history archive; without it the update stream is drained
	// so the pool never backs up.
	var archiver *history.Writer
	if cfg.History.DSN != "" {
		db, err := history.Connect(ctx, cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("connect history database: %w", err)
		}
		defer db.Close()

		archiver = history.NewWriter(history.Config{
			BatchSize:     cfg.History.BatchSize,
			FlushInterval: cfg.History.FlushInterval,
		}, db, pool.Updates(), logger)
		if err := archiver.Start(ctx); err != nil {
			return fmt.Errorf("start history writer: %w", err)
		}
	} else {
		go func() {
			for range pool.Updates() {
			}
		}()
	}

	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start connection pool: %w", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: newHealthHandler(cfg.Metrics.Path, pool, store),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("pointwatch running",
		"slots", max(len(proxies), 1),
		"health_url", fmt.Sprintf("http://localhost:%d/healthz", cfg.Metrics.Port),
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Pool first so the update stream closes, then the archiver drains it.
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Error("pool shutdown failed", "error", err)
	}
	if archiver != nil {
		if err := archiver.Stop(shutdownCtx); err != nil {
			logger.Error("history writer shutdown failed", "error", err)
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error("metrics server error", "error", err)
	}

	logger.Info("pointwatch stopped")
	return nil
}

// newHealthHandler serves the metrics endpoint and a JSON health summary.
func newHealthHandler(metricsPath string, pool connection.Pool, store *state.Store) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, metrics.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		slots := pool.SlotStats()
		total, today := pool.Totals()

		open := 0
		for _, s := range slots {
			if s.Connected {
				open++
			}
		}

		status := "healthy"
		if open == 0 {
			status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":           status,
			"slots":            slots,
			"points_total":     total,
			"points_today":     today,
			"potential_points": store.Float(state.KeyPotentialPoints),
			"countdown":        store.String(state.KeyCountdown),
		})
	})

	return mux
}
