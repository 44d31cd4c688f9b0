package reward

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pointwatch/pointwatch/internal/state"
)

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	return state.Open(filepath.Join(t.TempDir(), "state.json"), 0, nil)
}

func TestTickWritesDerivedFields(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	fixedNow := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.Merge(map[string]any{
		state.KeyLastUpdated: state.ISOTime(fixedNow.Add(-7*time.Minute - 30*time.Second)),
	})

	e := New(Config{Interval: time.Hour}, store, nil)
	e.now = func() time.Time { return fixedNow }
	e.rng = fixedRand{v: 0.99}

	e.tick()

	if got := store.String(state.KeyCountdown); got != "7m 30s" {
		t.Errorf("countdown = %q, want %q", got, "7m 30s")
	}
	if got := store.Float(state.KeyPotentialPoints); got != 12.5 {
		t.Errorf("potentialPoints = %v, want 12.5", got)
	}
}

func TestTickEmptyStore(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	e := New(Config{Interval: time.Hour}, store, nil)
	e.rng = fixedRand{v: 0.99}

	e.tick()

	if got := store.String(state.KeyCountdown); got != CountdownStale {
		t.Errorf("countdown = %q, want %q", got, CountdownStale)
	}
	if got := store.Float(state.KeyPotentialPoints); got != 0 {
		t.Errorf("potentialPoints = %v, want 0", got)
	}
}

func TestStartRunsImmediately(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	e := New(Config{Interval: time.Hour}, store, nil)
	e.rng = fixedRand{v: 0.99}

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		e.Stop(stopCtx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if store.String(state.KeyCountdown) != "" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("immediate tick never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
