package store

import (
	"context"
	"testing"
)

func TestInMemoryStore_NamespaceRoundTrip(t *testing.T) {
	st := NewInMemoryStore()
	ctx := context.Background()

	if err := st.SaveNamespaces(ctx, "proj1", map[string]int{"checkout": 3, "auth": 1}); err != nil {
		t.Fatalf("SaveNamespaces() error = %v", err)
	}

	got, err := st.LoadNamespaces(ctx, "proj1")
	if err != nil {
		t.Fatalf("LoadNamespaces() error = %v", err)
	}
	if got["checkout"] != 3 || got["auth"] != 1 {
		t.Errorf("LoadNamespaces() = %v, want checkout=3 auth=1", got)
	}

	if err := st.ClearNamespaces(ctx, "proj1"); err != nil {
		t.Fatalf("ClearNamespaces() error = %v", err)
	}
	got, err = st.LoadNamespaces(ctx, "proj1")
	if err != nil {
		t.Fatalf("LoadNamespaces() after clear error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("LoadNamespaces() after clear = %v, want empty", got)
	}
}

func TestInMemoryStore_LoadNamespacesUnknownProjectIsEmpty(t *testing.T) {
	st := NewInMemoryStore()
	got, err := st.LoadNamespaces(context.Background(), "never-saved")
	if err != nil {
		t.Fatalf("LoadNamespaces() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("LoadNamespaces() for unknown project = %v, want empty map", got)
	}
}

func TestInMemoryStore_RetrainingCounterAccumulates(t *testing.T) {
	st := NewInMemoryStore()
	ctx := context.Background()

	total, err := st.IncrementRetrainingCount(ctx, "proj1", 0, 5)
	if err != nil {
		t.Fatalf("IncrementRetrainingCount() error = %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}

	total, err = st.IncrementRetrainingCount(ctx, "proj1", 0, 3)
	if err != nil {
		t.Fatalf("IncrementRetrainingCount() error = %v", err)
	}
	if total != 8 {
		t.Errorf("total = %d, want 8", total)
	}

	// A different model type under the same project has its own counter.
	total, err = st.IncrementRetrainingCount(ctx, "proj1", 1, 2)
	if err != nil {
		t.Fatalf("IncrementRetrainingCount() error = %v", err)
	}
	if total != 2 {
		t.Errorf("model type 1 total = %d, want 2 (independent of model type 0)", total)
	}
}

func TestInMemoryStore_ClearRetrainingCount(t *testing.T) {
	st := NewInMemoryStore()
	ctx := context.Background()

	if _, err := st.IncrementRetrainingCount(ctx, "proj1", 0, 10); err != nil {
		t.Fatalf("IncrementRetrainingCount() error = %v", err)
	}
	if err := st.ClearRetrainingCount(ctx, "proj1", 0); err != nil {
		t.Fatalf("ClearRetrainingCount() error = %v", err)
	}

	total, err := st.IncrementRetrainingCount(ctx, "proj1", 0, 1)
	if err != nil {
		t.Fatalf("IncrementRetrainingCount() error = %v", err)
	}
	if total != 1 {
		t.Errorf("total after clear+1 = %d, want 1", total)
	}
}

func TestInMemoryStore_Close(t *testing.T) {
	st := NewInMemoryStore()
	if err := st.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
