package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// beginTestRun inserts a run so calls can reference it.
func beginTestRun(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.BeginRun(context.Background(), Run{
		ID:        id,
		Scenario:  "crud",
		BaseURL:   "http://localhost:8000",
		StartedAt: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
}

// createTestCall creates a call record with minimal required fields.
func createTestCall(runID, step string, vu, iter, status int) CallRecord {
	return CallRecord{
		RunID:    runID,
		VU:       vu,
		Iter:     iter,
		Step:     step,
		Method:   "GET",
		URL:      "http://localhost:8000/entries/",
		Status:   status,
		Expected: []int{200},
		OK:       status == 200,
		Duration: 12 * time.Millisecond,
	}
}
