package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// storeUnderTest lets the memory and SQLite backends share one conformance
// suite. MySQL needs a live server and is covered separately.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemStore(),
		"sqlite": sqlite,
	}
}

func sampleRecord(id, sessionID string, at time.Time) Record {
	return Record{
		ID:           id,
		SessionID:    sessionID,
		DocumentType: "soap",
		Fields: map[string]string{
			"subjective": "persistent cough",
			"plan":       "rest and fluids",
		},
		CreatedAt: at,
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	for name, st := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := sampleRecord("r1", "s1", time.Now().UTC().Truncate(time.Millisecond))

			if err := st.Save(ctx, rec); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := st.Get(ctx, "r1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.SessionID != "s1" || got.DocumentType != "soap" {
				t.Errorf("unexpected record %+v", got)
			}
			if got.Fields["subjective"] != "persistent cough" {
				t.Errorf("unexpected fields %v", got.Fields)
			}
			if !got.CreatedAt.Equal(rec.CreatedAt) {
				t.Errorf("expected created_at %v, got %v", rec.CreatedAt, got.CreatedAt)
			}
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, st := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Get(context.Background(), "ghost")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_SaveReplacesByID(t *testing.T) {
	for name, st := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC().Truncate(time.Millisecond)

			rec := sampleRecord("r1", "s1", base)
			if err := st.Save(ctx, rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
			rec.Fields["plan"] = "updated plan"
			if err := st.Save(ctx, rec); err != nil {
				t.Fatalf("Save replace: %v", err)
			}

			got, err := st.Get(ctx, "r1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Fields["plan"] != "updated plan" {
				t.Errorf("expected replaced fields, got %v", got.Fields)
			}

			records, err := st.BySession(ctx, "s1")
			if err != nil {
				t.Fatalf("BySession: %v", err)
			}
			if len(records) != 1 {
				t.Errorf("expected 1 record after replace, got %d", len(records))
			}
		})
	}
}

func TestStore_BySessionOrdering(t *testing.T) {
	for name, st := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC().Truncate(time.Millisecond)

			for i, id := range []string{"r2", "r1", "r3"} {
				rec := sampleRecord(id, "s1", base.Add(time.Duration(i)*time.Second))
				if err := st.Save(ctx, rec); err != nil {
					t.Fatalf("Save %s: %v", id, err)
				}
			}
			if err := st.Save(ctx, sampleRecord("other", "s2", base)); err != nil {
				t.Fatalf("Save other: %v", err)
			}

			records, err := st.BySession(ctx, "s1")
			if err != nil {
				t.Fatalf("BySession: %v", err)
			}
			if len(records) != 3 {
				t.Fatalf("expected 3 records, got %d", len(records))
			}
			want := []string{"r2", "r1", "r3"}
			for i := range want {
				if records[i].ID != want[i] {
					t.Errorf("position %d: expected %q, got %q", i, want[i], records[i].ID)
				}
			}
		})
	}
}

func TestStore_BySessionEmpty(t *testing.T) {
	for name, st := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			records, err := st.BySession(context.Background(), "never-seen")
			if err != nil {
				t.Fatalf("BySession: %v", err)
			}
			if len(records) != 0 {
				t.Errorf("expected no records, got %d", len(records))
			}
		})
	}
}

func TestMemStore_CallerCannotMutateStored(t *testing.T) {
	st := NewMemStore()
	ctx := context.Background()

	rec := sampleRecord("r1", "s1", time.Now())
	if err := st.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec.Fields["plan"] = "mutated after save"

	got, err := st.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Fields["plan"] != "rest and fluids" {
		t.Error("stored record was mutated through the caller's map")
	}
	got.Fields["plan"] = "mutated after get"

	again, _ := st.Get(ctx, "r1")
	if again.Fields["plan"] != "rest and fluids" {
		t.Error("stored record was mutated through a returned copy")
	}
}

func TestSQLiteStore_ClosedGuard(t *testing.T) {
	st, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("double Close must be a no-op: %v", err)
	}
	if err := st.Save(context.Background(), sampleRecord("r1", "s1", time.Now())); err == nil {
		t.Fatal("expected error on closed store")
	}
}
