package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pointwatch/pointwatch/internal/connection"
)

// fakeResults satisfies pgx.BatchResults for the happy path.
type fakeResults struct{}

func (fakeResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, nil }
func (fakeResults) Query() (pgx.Rows, error)         { return nil, nil }
func (fakeResults) QueryRow() pgx.Row                { return nil }
func (fakeResults) Close() error                     { return nil }

// fakeDB records the size of each batch it receives.
type fakeDB struct {
	mu      sync.Mutex
	batches []int
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	f.batches = append(f.batches, b.Len())
	f.mu.Unlock()
	return fakeResults{}
}

func (f *fakeDB) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.batches))
	copy(out, f.batches)
	return out
}

func testUpdate() connection.PointUpdate {
	return connection.PointUpdate{
		ID:         uuid.New(),
		SlotID:     uuid.NewString(),
		Total:      100,
		Today:      10,
		ReceivedAt: time.Now(),
	}
}

func TestWriterFlushesOnBatchSize(t *testing.T) {
	db := &fakeDB{}
	updates := make(chan connection.PointUpdate, 16)

	w := NewWriter(Config{BatchSize: 3, FlushInterval: time.Hour}, db, updates, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 3; i++ {
		updates <- testUpdate()
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if sizes := db.batchSizes(); len(sizes) == 1 && sizes[0] == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("batch never flushed, got %v", db.batchSizes())
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(ctx)
}

func TestWriterFlushesOnInterval(t *testing.T) {
	db := &fakeDB{}
	updates := make(chan connection.PointUpdate, 16)

	w := NewWriter(Config{BatchSize: 100, FlushInterval: 50 * time.Millisecond}, db, updates, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	updates <- testUpdate()
	updates <- testUpdate()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if sizes := db.batchSizes(); len(sizes) >= 1 {
			if sizes[0] != 2 {
				t.Fatalf("first batch size = %d, want 2", sizes[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("interval flush never happened")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(ctx)
}

func TestWriterFlushesOnChannelClose(t *testing.T) {
	db := &fakeDB{}
	updates := make(chan connection.PointUpdate, 16)

	w := NewWriter(Config{BatchSize: 100, FlushInterval: time.Hour}, db, updates, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	updates <- testUpdate()
	close(updates)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if sizes := db.batchSizes(); len(sizes) == 1 && sizes[0] == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("final flush never happened, got %v", db.batchSizes())
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(ctx)
}

func TestWriterEmptyFlushSkipped(t *testing.T) {
	db := &fakeDB{}
	updates := make(chan connection.PointUpdate)

	w := NewWriter(Config{BatchSize: 10, FlushInterval: 20 * time.Millisecond}, db, updates, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if sizes := db.batchSizes(); len(sizes) != 0 {
		t.Errorf("empty flushes should be skipped, got %v", sizes)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(ctx)
}
