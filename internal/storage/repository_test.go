package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"registro/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestEntryCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	entry := core.Entry{
		DateMs:      1717804800000,
		Description: "Rice",
		Price:       "50,00",
		Quantity:    "2",
		Categories:  []string{"food", "staples"},
		ImageRefs:   []string{"img-2", "img-1"},
	}

	id, err := repo.CreateEntry(ctx, entry)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if id == 0 {
		t.Fatal("CreateEntry should assign an id")
	}

	got, err := repo.GetEntry(ctx, id)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Description != "Rice" || got.Price != "50,00" {
		t.Errorf("got %+v, want original fields back", got)
	}
	if len(got.Categories) != 2 || got.Categories[0] != "food" {
		t.Errorf("categories = %v, want order preserved", got.Categories)
	}
	if len(got.ImageRefs) != 2 || got.ImageRefs[0] != "img-2" {
		t.Errorf("image refs = %v, want stored order preserved", got.ImageRefs)
	}

	got.Description = "Rice 1kg"
	got.Checked = true
	if err := repo.UpdateEntry(ctx, got); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	updated, err := repo.GetEntry(ctx, id)
	if err != nil {
		t.Fatalf("GetEntry after update: %v", err)
	}
	if updated.Description != "Rice 1kg" || !updated.Checked {
		t.Errorf("update not persisted, got %+v", updated)
	}

	if err := repo.DeleteEntry(ctx, id); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if _, err := repo.GetEntry(ctx, id); !errors.Is(err, core.ErrEntryNotFound) {
		t.Errorf("GetEntry after delete = %v, want ErrEntryNotFound", err)
	}
}

func TestEntryNotFoundErrors(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetEntry(ctx, 42); !errors.Is(err, core.ErrEntryNotFound) {
		t.Errorf("GetEntry = %v, want ErrEntryNotFound", err)
	}
	if err := repo.UpdateEntry(ctx, core.Entry{ID: 42, DateMs: 1, Description: "x"}); !errors.Is(err, core.ErrEntryNotFound) {
		t.Errorf("UpdateEntry = %v, want ErrEntryNotFound", err)
	}
	if err := repo.DeleteEntry(ctx, 42); !errors.Is(err, core.ErrEntryNotFound) {
		t.Errorf("DeleteEntry = %v, want ErrEntryNotFound", err)
	}
}

func TestEntriesInRange(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	inDay := core.Entry{DateMs: 1000, Description: "in range"}
	outside := core.Entry{DateMs: 5000, Description: "outside"}
	if _, err := repo.CreateEntry(ctx, inDay); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if _, err := repo.CreateEntry(ctx, outside); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	entries, err := repo.EntriesInRange(ctx, 0, 2000)
	if err != nil {
		t.Fatalf("EntriesInRange: %v", err)
	}
	if len(entries) != 1 || entries[0].Description != "in range" {
		t.Errorf("got %+v, want only the in-range entry", entries)
	}
}

func TestLedgerRecordRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	src := int64(7)
	rec := core.LedgerRecord{
		Items: []core.LineItem{
			{Description: "Rice", Price: "50,00", Quantity: "2", Categories: []string{"food"}, SourceID: &src},
			{Description: "Tea", Price: "20,00", Checked: true},
		},
		TotalCents:   7000,
		CheckedCount: 1,
		CheckedCents: 2000,
		RecordDateMs: 1717804800000,
		Master:       true,
		UpdatedAtMs:  1717808400000,
	}

	id, err := repo.InsertRecord(ctx, rec)
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	got, err := repo.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(got.Items))
	}
	if got.Items[0].SourceID == nil || *got.Items[0].SourceID != 7 {
		t.Errorf("source id = %v, want 7", got.Items[0].SourceID)
	}
	if got.Items[1].SourceID != nil {
		t.Errorf("second item source id = %v, want nil", got.Items[1].SourceID)
	}
	if !got.Master || got.TotalCents != 7000 || got.CheckedCents != 2000 {
		t.Errorf("got %+v, want stored fields back", got)
	}

	got.Items = got.Items[:1]
	got.TotalCents = 5000
	if err := repo.UpdateRecord(ctx, got); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	updated, err := repo.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("GetRecord after update: %v", err)
	}
	if len(updated.Items) != 1 || updated.TotalCents != 5000 {
		t.Errorf("update not persisted, got %+v", updated)
	}
}

func TestRecordsInRange_MasterFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	regular := core.LedgerRecord{RecordDateMs: 1000, Master: false}
	master := core.LedgerRecord{RecordDateMs: 1000, Master: true}
	if _, err := repo.InsertRecord(ctx, regular); err != nil {
		t.Fatalf("InsertRecord regular: %v", err)
	}
	if _, err := repo.InsertRecord(ctx, master); err != nil {
		t.Fatalf("InsertRecord master: %v", err)
	}

	masters, err := repo.RecordsInRange(ctx, 0, 2000, true)
	if err != nil {
		t.Fatalf("RecordsInRange: %v", err)
	}
	if len(masters) != 1 || !masters[0].Master {
		t.Errorf("got %+v, want only the master", masters)
	}

	regulars, err := repo.RecordsInRange(ctx, 0, 2000, false)
	if err != nil {
		t.Fatalf("RecordsInRange: %v", err)
	}
	if len(regulars) != 1 || regulars[0].Master {
		t.Errorf("got %+v, want only the regular record", regulars)
	}
}

func TestOneMasterPerDay(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.InsertRecord(ctx, core.LedgerRecord{RecordDateMs: 1000, Master: true}); err != nil {
		t.Fatalf("first master: %v", err)
	}
	if _, err := repo.InsertRecord(ctx, core.LedgerRecord{RecordDateMs: 1000, Master: true}); err == nil {
		t.Error("second master for the same day should violate the unique index")
	}

	// Regular records for the same day are unrestricted.
	if _, err := repo.InsertRecord(ctx, core.LedgerRecord{RecordDateMs: 1000, Master: false}); err != nil {
		t.Errorf("regular record should insert: %v", err)
	}
	if _, err := repo.InsertRecord(ctx, core.LedgerRecord{RecordDateMs: 1000, Master: false}); err != nil {
		t.Errorf("second regular record should insert: %v", err)
	}
}

func TestMasterForDay(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.MasterForDay(ctx, 0, 2000); !errors.Is(err, core.ErrRecordNotFound) {
		t.Errorf("MasterForDay = %v, want ErrRecordNotFound", err)
	}

	id, err := repo.InsertRecord(ctx, core.LedgerRecord{RecordDateMs: 1000, Master: true})
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	got, err := repo.MasterForDay(ctx, 0, 2000)
	if err != nil {
		t.Fatalf("MasterForDay: %v", err)
	}
	if got.ID != id {
		t.Errorf("got id %d, want %d", got.ID, id)
	}
}
