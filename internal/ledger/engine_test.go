package ledger

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"registro/internal/core"
)

// fakeStore is an in-memory RecordStore that records every mutation so
// tests can assert on what the engine persisted.
type fakeStore struct {
	records []core.LedgerRecord
	nextID  int64

	inserts int
	updates int

	failList   error
	failInsert error
	failUpdate error
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1}
}

func (s *fakeStore) RecordsInRange(_ context.Context, startMs, endMs int64, master bool) ([]core.LedgerRecord, error) {
	if s.failList != nil {
		return nil, s.failList
	}
	var out []core.LedgerRecord
	for _, rec := range s.records {
		if rec.Master == master && rec.RecordDateMs >= startMs && rec.RecordDateMs <= endMs {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertRecord(_ context.Context, rec core.LedgerRecord) (int64, error) {
	if s.failInsert != nil {
		return 0, s.failInsert
	}
	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, rec)
	s.inserts++
	return rec.ID, nil
}

func (s *fakeStore) UpdateRecord(_ context.Context, rec core.LedgerRecord) error {
	if s.failUpdate != nil {
		return s.failUpdate
	}
	for i := range s.records {
		if s.records[i].ID == rec.ID {
			s.records[i] = rec
			s.updates++
			return nil
		}
	}
	return core.ErrRecordNotFound
}

func (s *fakeStore) masters() []core.LedgerRecord {
	var out []core.LedgerRecord
	for _, rec := range s.records {
		if rec.Master {
			out = append(out, rec)
		}
	}
	return out
}

func (s *fakeStore) regulars() []core.LedgerRecord {
	var out []core.LedgerRecord
	for _, rec := range s.records {
		if !rec.Master {
			out = append(out, rec)
		}
	}
	return out
}

func testEngine(s RecordStore) *Engine {
	return NewEngine(s, slog.Default())
}

var testDay = time.Date(2024, 6, 8, 10, 30, 0, 0, time.UTC)

func TestEngine_Reconcile_EmptyInputIsNoOp(t *testing.T) {
	store := newFakeStore()
	engine := testEngine(store)

	res, err := engine.Reconcile(context.Background(), testDay, nil)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if res.RegularCreated || res.MasterChanged {
		t.Errorf("empty input should change nothing, got %+v", res)
	}
	if store.inserts != 0 {
		t.Errorf("no record should be inserted, got %d inserts", store.inserts)
	}
}

func TestEngine_Reconcile_FirstSaveCreatesRegularAndMaster(t *testing.T) {
	store := newFakeStore()
	engine := testEngine(store)

	entries := []core.Entry{
		{ID: 1, Description: "Rice", Price: "50", Checked: true},
		{ID: 2, Description: "Tea", Price: "20"},
		{ID: 3, Description: "Note", Price: "n/a"},
	}

	res, err := engine.Reconcile(context.Background(), testDay, entries)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if !res.RegularCreated || !res.MasterChanged {
		t.Fatalf("first save should create both records, got %+v", res)
	}

	masters := store.masters()
	if len(masters) != 1 {
		t.Fatalf("got %d master records, want 1", len(masters))
	}
	master := masters[0]
	if len(master.Items) != 3 {
		t.Errorf("master items = %d, want 3", len(master.Items))
	}
	// Non-numeric price counts as zero.
	if master.TotalCents != 7000 {
		t.Errorf("master total = %d cents, want 7000", master.TotalCents)
	}
	if master.CheckedCount != 1 || master.CheckedCents != 5000 {
		t.Errorf("checked totals = (%d, %d), want (1, 5000)", master.CheckedCount, master.CheckedCents)
	}

	wantDate := time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC).UnixMilli()
	if master.RecordDateMs != wantDate {
		t.Errorf("master date = %d, want local midnight %d", master.RecordDateMs, wantDate)
	}

	regulars := store.regulars()
	if len(regulars) != 1 {
		t.Fatalf("got %d regular records, want 1", len(regulars))
	}
	if regulars[0].TotalCents != 7000 {
		t.Errorf("regular total = %d cents, want 7000", regulars[0].TotalCents)
	}
}

func TestEngine_Reconcile_IdempotentRegularSave(t *testing.T) {
	store := newFakeStore()
	engine := testEngine(store)

	entries := []core.Entry{
		{ID: 1, Description: "Rice", Price: "50"},
		{ID: 2, Description: "Tea", Price: "20"},
	}

	if _, err := engine.Reconcile(context.Background(), testDay, entries); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	res, err := engine.Reconcile(context.Background(), testDay, entries)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}

	if res.RegularCreated {
		t.Error("second identical save must not create a regular record")
	}
	if got := len(store.regulars()); got != 1 {
		t.Errorf("got %d regular records, want exactly 1", got)
	}
}

func TestEngine_Reconcile_NoOpMergeSkipsUpdate(t *testing.T) {
	store := newFakeStore()
	engine := testEngine(store)

	entries := []core.Entry{
		{ID: 1, Description: "Rice", Price: "50"},
	}

	if _, err := engine.Reconcile(context.Background(), testDay, entries); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	res, err := engine.Reconcile(context.Background(), testDay, entries)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}

	if res.MasterChanged {
		t.Error("master should be unchanged when items already match")
	}
	if store.updates != 0 {
		t.Errorf("update must not be invoked on a no-op merge, got %d updates", store.updates)
	}
}

func TestEngine_Reconcile_MergesIntoMaster(t *testing.T) {
	store := newFakeStore()
	engine := testEngine(store)
	ctx := context.Background()

	if _, err := engine.Reconcile(ctx, testDay, []core.Entry{
		{ID: 1, Description: "Rice", Price: "50"},
	}); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}

	res, err := engine.Reconcile(ctx, testDay, []core.Entry{
		{ID: 1, Description: "Rice", Price: "55"},
		{ID: 2, Description: "Tea", Price: "20"},
	})
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if !res.MasterChanged {
		t.Fatal("master should change when items differ")
	}

	masters := store.masters()
	if len(masters) != 1 {
		t.Fatalf("got %d master records, want 1 (merge, not append)", len(masters))
	}
	master := masters[0]
	if len(master.Items) != 2 {
		t.Fatalf("master items = %d, want 2", len(master.Items))
	}
	if master.Items[0].Description != "Rice" || master.Items[0].Price != "55" {
		t.Errorf("Rice slot should carry the new price, got %+v", master.Items[0])
	}
	if master.Items[1].Description != "Tea" {
		t.Errorf("Tea should append as new, got %+v", master.Items[1])
	}
	if master.TotalCents != 7500 {
		t.Errorf("master total = %d cents, want 7500", master.TotalCents)
	}
	if store.updates != 1 {
		t.Errorf("got %d updates, want 1", store.updates)
	}
}

func TestEngine_Reconcile_RefreshesMasterTimestamp(t *testing.T) {
	store := newFakeStore()
	engine := testEngine(store)
	ctx := context.Background()

	t0 := time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return t0 }
	if _, err := engine.Reconcile(ctx, testDay, []core.Entry{{ID: 1, Description: "Rice", Price: "50"}}); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}

	t1 := t0.Add(2 * time.Hour)
	engine.now = func() time.Time { return t1 }
	if _, err := engine.Reconcile(ctx, testDay, []core.Entry{{ID: 1, Description: "Rice", Price: "55"}}); err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}

	master := store.masters()[0]
	if master.UpdatedAtMs != t1.UnixMilli() {
		t.Errorf("master UpdatedAtMs = %d, want refreshed %d", master.UpdatedAtMs, t1.UnixMilli())
	}
}

func TestEngine_Reconcile_DifferentDaysAreIndependent(t *testing.T) {
	store := newFakeStore()
	engine := testEngine(store)
	ctx := context.Background()

	entries := []core.Entry{{ID: 1, Description: "Rice", Price: "50"}}

	if _, err := engine.Reconcile(ctx, testDay, entries); err != nil {
		t.Fatalf("day one: %v", err)
	}
	res, err := engine.Reconcile(ctx, testDay.AddDate(0, 0, 1), entries)
	if err != nil {
		t.Fatalf("day two: %v", err)
	}

	if !res.RegularCreated || !res.MasterChanged {
		t.Errorf("same items on another day are not duplicates, got %+v", res)
	}
	if got := len(store.masters()); got != 2 {
		t.Errorf("got %d master records, want one per day", got)
	}
}

func TestEngine_Reconcile_MultipleMastersFirstWins(t *testing.T) {
	store := newFakeStore()
	dayStart := core.DayStartMs(testDay)
	store.records = append(store.records,
		core.LedgerRecord{ID: 1, Master: true, RecordDateMs: dayStart, Items: []core.LineItem{{Description: "Rice", Price: "50", SourceID: idp(1)}}},
		core.LedgerRecord{ID: 2, Master: true, RecordDateMs: dayStart, Items: []core.LineItem{{Description: "Soap", Price: "15"}}},
	)
	store.nextID = 3
	engine := testEngine(store)

	res, err := engine.Reconcile(context.Background(), testDay, []core.Entry{
		{ID: 1, Description: "Rice", Price: "55"},
	})
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if !res.MasterChanged {
		t.Fatal("first master should have been updated")
	}

	masters := store.masters()
	if masters[0].Items[0].Price != "55" {
		t.Errorf("first master should take the merge, got %+v", masters[0].Items)
	}
	if len(masters[1].Items) != 1 || masters[1].Items[0].Description != "Soap" {
		t.Errorf("second master must be left untouched, got %+v", masters[1].Items)
	}
}

func TestEngine_Reconcile_StorageErrorsPropagate(t *testing.T) {
	boom := errors.New("disk on fire")

	t.Run("list failure", func(t *testing.T) {
		store := newFakeStore()
		store.failList = boom
		engine := testEngine(store)

		_, err := engine.Reconcile(context.Background(), testDay, []core.Entry{{ID: 1, Description: "Rice", Price: "50"}})
		if !errors.Is(err, boom) {
			t.Errorf("want wrapped storage error, got %v", err)
		}
	})

	t.Run("master failure leaves partial state", func(t *testing.T) {
		store := newFakeStore()
		engine := testEngine(store)
		ctx := context.Background()

		// Seed a regular record so the duplicate check passes but the
		// master insert fails.
		if _, err := engine.Reconcile(ctx, testDay, []core.Entry{{ID: 1, Description: "Rice", Price: "50"}}); err != nil {
			t.Fatalf("seed: %v", err)
		}
		store.failUpdate = boom

		res, err := engine.Reconcile(ctx, testDay, []core.Entry{{ID: 1, Description: "Rice", Price: "55"}})
		if !errors.Is(err, boom) {
			t.Fatalf("want wrapped storage error, got %v", err)
		}
		// The regular record from this pass stays; there is no
		// cross-operation transaction.
		if !res.RegularCreated {
			t.Error("regular insert preceding the failed master step should be reported")
		}
		if got := len(store.regulars()); got != 2 {
			t.Errorf("got %d regular records, want 2", got)
		}
	})
}

func TestEngine_Reconcile_ConcurrentSameDaySerialized(t *testing.T) {
	store := newFakeStore()
	engine := testEngine(store)
	ctx := context.Background()

	entries := []core.Entry{{ID: 1, Description: "Rice", Price: "50"}}

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := engine.Reconcile(ctx, testDay, entries)
			done <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Reconcile returned error: %v", err)
		}
	}

	if got := len(store.masters()); got != 1 {
		t.Errorf("got %d master records, want 1 even under concurrency", got)
	}
	if got := len(store.regulars()); got != 1 {
		t.Errorf("got %d regular records, want 1 even under concurrency", got)
	}
}
