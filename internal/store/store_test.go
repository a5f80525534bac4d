package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"runs", "calls"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("Open() with invalid path should fail")
	}
}

func TestOpen_ResumesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	beginTestRun(t, s1, "run-1")
	for i := 0; i < 3; i++ {
		if _, err := s1.WriteCall(ctx, createTestCall("run-1", "list", 1, i, 200)); err != nil {
			t.Fatalf("WriteCall() failed: %v", err)
		}
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	seq, err := s2.WriteCall(ctx, createTestCall("run-1", "list", 1, 3, 200))
	if err != nil {
		t.Fatalf("WriteCall() after reopen failed: %v", err)
	}
	if seq != 4 {
		t.Errorf("seq after reopen = %d, want 4", seq)
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should return nil, got %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(ctx, tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSchema_CallsIndex(t *testing.T) {
	s := createTestStore(t)

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_calls_run_seq'",
	).Scan(&name)
	if err != nil {
		t.Errorf("index idx_calls_run_seq not found: %v", err)
	}
}

func TestConstraint_CallRequiresRun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.WriteCall(context.Background(), createTestCall("missing-run", "create", 1, 0, 201))
	if err == nil {
		t.Error("WriteCall() for unknown run should violate the foreign key")
	}
}
