package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"registro/internal/core"
	"registro/internal/ledger"
)

// Store is the persistence surface the service needs: the engine's record
// store plus entry CRUD.
type Store interface {
	ledger.RecordStore

	CreateEntry(ctx context.Context, e core.Entry) (int64, error)
	GetEntry(ctx context.Context, id int64) (core.Entry, error)
	UpdateEntry(ctx context.Context, e core.Entry) error
	DeleteEntry(ctx context.Context, id int64) error
	EntriesInRange(ctx context.Context, startMs, endMs int64) ([]core.Entry, error)
	MasterForDay(ctx context.Context, startMs, endMs int64) (core.LedgerRecord, error)
}

// ExportPublisher queues a changed master record for the export worker.
type ExportPublisher interface {
	PublishMasterExport(ctx context.Context, recordID int64, day string) error
}

// LedgerService orchestrates entry CRUD, day reconciliation, and export
// publication. The publisher is optional; without one, saves still work and
// exports are skipped.
type LedgerService struct {
	store     Store
	engine    *ledger.Engine
	publisher ExportPublisher
	loc       *time.Location
}

func NewLedgerService(store Store, engine *ledger.Engine, publisher ExportPublisher, loc *time.Location) *LedgerService {
	if loc == nil {
		loc = time.Local
	}
	return &LedgerService{
		store:     store,
		engine:    engine,
		publisher: publisher,
		loc:       loc,
	}
}

// CreateEntry stores a raw entry, normalizing its date to the owning day's
// local midnight.
func (s *LedgerService) CreateEntry(ctx context.Context, e core.Entry) (int64, error) {
	e.DateMs = core.DayStartMs(time.UnixMilli(e.DateMs).In(s.loc))
	id, err := s.store.CreateEntry(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("create entry: %w", err)
	}
	return id, nil
}

func (s *LedgerService) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	return s.store.GetEntry(ctx, id)
}

func (s *LedgerService) UpdateEntry(ctx context.Context, e core.Entry) error {
	e.DateMs = core.DayStartMs(time.UnixMilli(e.DateMs).In(s.loc))
	if err := s.store.UpdateEntry(ctx, e); err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return nil
}

func (s *LedgerService) DeleteEntry(ctx context.Context, id int64) error {
	if err := s.store.DeleteEntry(ctx, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// EntriesForDay lists the raw entries for the given day.
func (s *LedgerService) EntriesForDay(ctx context.Context, day time.Time) ([]core.Entry, error) {
	startMs, endMs := core.DayBounds(day.In(s.loc))
	entries, err := s.store.EntriesInRange(ctx, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("list entries for day: %w", err)
	}
	return entries, nil
}

// SaveDay reconciles the day's entries into the ledger and, when the master
// record changed, queues it for export. A publish failure does not fail the
// save; the record is already persisted locally.
func (s *LedgerService) SaveDay(ctx context.Context, day time.Time) (ledger.Result, error) {
	day = day.In(s.loc)

	entries, err := s.EntriesForDay(ctx, day)
	if err != nil {
		return ledger.Result{}, err
	}

	res, err := s.engine.Reconcile(ctx, day, entries)
	if err != nil {
		return res, fmt.Errorf("reconcile day: %w", err)
	}

	if res.MasterChanged {
		s.publishExport(ctx, day)
	}

	return res, nil
}

// RecordsForDay lists the day's ledger records of one kind.
func (s *LedgerService) RecordsForDay(ctx context.Context, day time.Time, master bool) ([]core.LedgerRecord, error) {
	startMs, endMs := core.DayBounds(day.In(s.loc))
	records, err := s.store.RecordsInRange(ctx, startMs, endMs, master)
	if err != nil {
		return nil, fmt.Errorf("list records for day: %w", err)
	}
	return records, nil
}

// MasterForDay returns the day's master record.
func (s *LedgerService) MasterForDay(ctx context.Context, day time.Time) (core.LedgerRecord, error) {
	startMs, endMs := core.DayBounds(day.In(s.loc))
	return s.store.MasterForDay(ctx, startMs, endMs)
}

func (s *LedgerService) publishExport(ctx context.Context, day time.Time) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No export publisher configured, skipping export")
		return
	}

	startMs, endMs := core.DayBounds(day)
	master, err := s.store.MasterForDay(ctx, startMs, endMs)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load master for export",
			"day", day.Format("2006-01-02"), "error", err)
		return
	}

	if err := s.publisher.PublishMasterExport(ctx, master.ID, day.Format("2006-01-02")); err != nil {
		slog.ErrorContext(ctx, "Failed to publish master export",
			"record_id", master.ID, "error", err)
		// Don't fail the save - the ledger write already succeeded
	}
}

// Close closes the underlying store and publisher when they support it.
func (s *LedgerService) Close() error {
	var errs []error

	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}
