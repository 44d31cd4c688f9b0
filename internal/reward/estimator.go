package reward

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pointwatch/pointwatch/internal/metrics"
	"github.com/pointwatch/pointwatch/internal/state"
)

// Config holds estimator configuration.
type Config struct {
	Interval time.Duration // Tick interval (default: 60s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Interval: 60 * time.Second}
}

// Estimator periodically recomputes the derived reward fields in the store.
type Estimator struct {
	cfg    Config
	store  *state.Store
	logger *slog.Logger

	// Injectable for deterministic tests.
	now func() time.Time
	rng Rand

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Estimator.
func New(cfg Config, store *state.Store, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Estimator{
		cfg:    cfg,
		store:  store,
		logger: logger,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins the estimation loop with one immediate run.
func (e *Estimator) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go e.run()

	e.logger.Info("reward estimator started", "interval", e.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the estimator.
func (e *Estimator) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("estimator shutdown timeout")
	}

	e.logger.Info("reward estimator stopped")
	return nil
}

func (e *Estimator) run() {
	defer e.wg.Done()

	e.tick()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick recomputes the derived fields and merges them back into the store.
func (e *Estimator) tick() {
	lastUpdated, hasUpdate := e.store.Time(state.KeyLastUpdated)
	res := Compute(e.now(), lastUpdated, hasUpdate, e.rng)

	e.store.Merge(map[string]any{
		state.KeyCountdown:       res.Countdown,
		state.KeyPotentialPoints: res.PotentialPoints,
	})

	metrics.PotentialPoints.Set(res.PotentialPoints)

	e.logger.Debug("reward estimate updated",
		"countdown", res.Countdown,
		"potential_points", res.PotentialPoints,
	)
}
