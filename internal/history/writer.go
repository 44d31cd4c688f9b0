package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pointwatch/pointwatch/internal/connection"
	"github.com/pointwatch/pointwatch/internal/metrics"
)

const insertSQL = `
INSERT INTO point_updates (id, slot_id, points_total, points_today, received_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`

// DB is the subset of pgxpool.Pool the writer needs.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds batch writer settings.
type Config struct {
	BatchSize     int           // Rows to accumulate before flushing
	FlushInterval time.Duration // Maximum time between flushes
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
	}
}

// Writer batches point updates and archives them to Postgres.
type Writer struct {
	cfg     Config
	db      DB
	updates <-chan connection.PointUpdate
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a new history writer.
func NewWriter(cfg Config, db DB, updates <-chan connection.PointUpdate, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}

	return &Writer{
		cfg:     cfg,
		db:      db,
		updates: updates,
		logger:  logger,
	}
}

// Start begins the batching loop.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("history writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop flushes pending rows and shuts down.
func (w *Writer) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("history writer shutdown timeout")
	}

	w.logger.Info("history writer stopped")
	return nil
}

func (w *Writer) run() {
	defer w.wg.Done()

	buf := make([]connection.PointUpdate, 0, w.cfg.BatchSize)

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.flush(buf)
			return

		case update, ok := <-w.updates:
			if !ok {
				w.flush(buf)
				return
			}
			buf = append(buf, update)
			if len(buf) >= w.cfg.BatchSize {
				w.flush(buf)
				buf = buf[:0]
			}

		case <-ticker.C:
			w.flush(buf)
			buf = buf[:0]
		}
	}
}

// flush inserts the buffered rows in one batch. Failures drop the batch;
// the archive is best-effort.
func (w *Writer) flush(rows []connection.PointUpdate) {
	if len(rows) == 0 {
		return
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertSQL, row.ID, row.SlotID, row.Total, row.Today, row.ReceivedAt)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results := w.db.SendBatch(ctx, batch)
	var firstErr error
	for range rows {
		if _, err := results.Exec(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := results.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	if firstErr != nil {
		metrics.HistoryDroppedTotal.Add(float64(len(rows)))
		w.logger.Warn("history batch insert failed", "rows", len(rows), "error", firstErr)
		return
	}

	metrics.HistoryRowsTotal.Add(float64(len(rows)))
	w.logger.Debug("history batch flushed", "rows", len(rows))
}
