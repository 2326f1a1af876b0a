package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"feedbackloop/pkg/feedback"
)

// setupTestStore opens an in-memory store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), MemoryPath)
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func intPtr(v int) *int { return &v }

func TestStore_ObserveAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := feedback.Record{
		InvocationID:     "inv-1",
		ProjectDirectory: "/p",
		Prompt:           "Review this",
		Outcome:          feedback.OutcomeFeedback,
		Strategy:         feedback.StrategyWhole,
		Feedback:         "Looks good",
		ExitCode:         intPtr(0),
		Duration:         1500 * time.Millisecond,
		Timestamp:        ts,
	}
	if err := store.Observe(ctx, rec); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	entry, err := store.Get(ctx, "inv-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry.Feedback != "Looks good" || entry.Outcome != feedback.OutcomeFeedback || entry.Strategy != feedback.StrategyWhole {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.ExitCode == nil || *entry.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", entry.ExitCode)
	}
	if entry.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", entry.Duration)
	}
	if !entry.CreatedAt.Equal(ts) {
		t.Errorf("CreatedAt = %v, want %v", entry.CreatedAt, ts)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ObserveAssignsIDToRejectedRequests(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rec := feedback.Record{Outcome: feedback.OutcomeInvalidArguments, Message: "invalid arguments"}
		if err := store.Observe(ctx, rec); err != nil {
			t.Fatalf("Observe() error = %v", err)
		}
	}

	entries, err := store.ListRecent(ctx, 0)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID == "" || entries[0].ID == entries[1].ID {
		t.Errorf("expected two entries with distinct IDs, got %+v", entries)
	}
	if entries[0].ExitCode != nil {
		t.Errorf("ExitCode should be nil for rejected requests")
	}
}

func TestStore_ListRecentOrderAndLimit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		rec := feedback.Record{InvocationID: id, Outcome: feedback.OutcomeCancelled, Timestamp: base.Add(time.Duration(i) * time.Hour)}
		if err := store.Observe(ctx, rec); err != nil {
			t.Fatalf("Observe(%s) error = %v", id, err)
		}
	}

	entries, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "c" || entries[1].ID != "b" {
		t.Errorf("ListRecent(2) = %+v, want c, b", entries)
	}
}

func TestStore_StatsAndPrune(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	records := []feedback.Record{
		{InvocationID: "1", Outcome: feedback.OutcomeFeedback, Timestamp: old},
		{InvocationID: "2", Outcome: feedback.OutcomeFeedback, Timestamp: recent},
		{InvocationID: "3", Outcome: feedback.OutcomeCancelled, Timestamp: recent},
	}
	for _, rec := range records {
		if err := store.Observe(ctx, rec); err != nil {
			t.Fatalf("Observe() error = %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if len(stats) != 2 || stats[0].Outcome != feedback.OutcomeCancelled || stats[0].Count != 1 || stats[1].Count != 2 {
		t.Errorf("Stats() = %+v", stats)
	}

	n, err := store.Prune(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() removed %d, want 1", n)
	}
	if _, err := store.Get(ctx, "1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("pruned entry still present: %v", err)
	}
}

func TestOpen_FileDatabaseReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.Observe(ctx, feedback.Record{InvocationID: "keep", Outcome: feedback.OutcomeFeedback}); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close() //nolint:errcheck

	if _, err := reopened.Get(ctx, "keep"); err != nil {
		t.Errorf("entry lost across reopen: %v", err)
	}
	version, err := GetSchemaVersion(ctx, reopened.db)
	if err != nil || version != CurrentSchemaVersion {
		t.Errorf("schema version = %d (%v), want %d", version, err, CurrentSchemaVersion)
	}
}
