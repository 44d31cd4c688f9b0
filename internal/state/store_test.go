package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func tempStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "state.json")
}

func TestOpenMissingFile(t *testing.T) {
	s := Open(tempStorePath(t), 0, nil)
	defer s.Close()

	if _, ok := s.Get(KeyPointsTotal); ok {
		t.Error("expected empty document for missing file")
	}
}

func TestOpenCorruptFile(t *testing.T) {
	path := tempStorePath(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := Open(path, 0, nil)
	defer s.Close()

	// Corrupt file is treated as empty and the store stays usable.
	s.Merge(map[string]any{KeyPointsTotal: 10.0})
	if got := s.Float(KeyPointsTotal); got != 10.0 {
		t.Errorf("Float(pointsTotal) = %v, want 10", got)
	}
}

func TestMergePreservesDisjointKeys(t *testing.T) {
	s := Open(tempStorePath(t), 0, nil)
	defer s.Close()

	s.Merge(map[string]any{"a": 1.0})
	s.Merge(map[string]any{"b": 2.0})

	if got := s.Float("a"); got != 1.0 {
		t.Errorf("Float(a) = %v, want 1", got)
	}
	if got := s.Float("b"); got != 2.0 {
		t.Errorf("Float(b) = %v, want 2", got)
	}
}

func TestMergeRoundTrip(t *testing.T) {
	path := tempStorePath(t)

	s := Open(path, 0, nil)
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	s.Merge(map[string]any{
		KeyPointsTotal: 1234.5,
		KeyPointsToday: 56.0,
		KeyLastUpdated: ISOTime(now),
	})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := Open(path, 0, nil)
	defer reopened.Close()

	if got := reopened.Float(KeyPointsTotal); got != 1234.5 {
		t.Errorf("pointsTotal = %v, want 1234.5", got)
	}
	ts, ok := reopened.Time(KeyLastUpdated)
	if !ok {
		t.Fatal("lastUpdated missing after reload")
	}
	if !ts.Equal(now) {
		t.Errorf("lastUpdated = %v, want %v", ts, now)
	}
}

func TestCoalescedFlush(t *testing.T) {
	path := tempStorePath(t)
	s := Open(path, 50*time.Millisecond, nil)
	defer s.Close()

	s.Merge(map[string]any{"a": 1.0})
	s.Merge(map[string]any{"b": 2.0})
	s.Merge(map[string]any{"c": 3.0})

	// Within the flush window nothing is on disk yet.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected no state file before flush window elapsed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("state file never flushed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("flushed file is not valid JSON: %v", err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if _, ok := doc[k]; !ok {
			t.Errorf("flushed document missing key %q", k)
		}
	}
}

func TestConcurrentMergers(t *testing.T) {
	s := Open(tempStorePath(t), 0, nil)
	defer s.Close()

	var wg sync.WaitGroup
	keys := []string{"w1", "w2", "w3", "w4"}
	for _, k := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Merge(map[string]any{key: float64(i)})
			}
		}(k)
	}
	wg.Wait()

	for _, k := range keys {
		if got := s.Float(k); got != 49.0 {
			t.Errorf("Float(%s) = %v, want 49", k, got)
		}
	}
}

func TestAccessTokenReadOnly(t *testing.T) {
	path := tempStorePath(t)
	seed := map[string]any{KeyAccessToken: "tok-abc"}
	data, _ := json.Marshal(seed)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	s := Open(path, 0, nil)
	if got := s.AccessToken(); got != "tok-abc" {
		t.Errorf("AccessToken() = %q, want %q", got, "tok-abc")
	}

	// Merging unrelated fields must not disturb the token.
	s.Merge(map[string]any{KeyPointsTotal: 5.0})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened := Open(path, 0, nil)
	defer reopened.Close()
	if got := reopened.AccessToken(); got != "tok-abc" {
		t.Errorf("AccessToken() after merge = %q, want %q", got, "tok-abc")
	}
}

func TestMergeAfterCloseIgnored(t *testing.T) {
	path := tempStorePath(t)
	s := Open(path, 0, nil)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s.Merge(map[string]any{"a": 1.0})
	if _, ok := s.Get("a"); ok {
		t.Error("merge after close should be ignored")
	}
}
