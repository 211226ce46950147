package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"registro/internal/core"
)

// Result reports what a reconciliation pass changed.
type Result struct {
	// RegularCreated is true when a new regular record was inserted, false
	// when the incoming item set duplicated an existing regular record.
	RegularCreated bool

	// MasterChanged is true when the day's master record was created or
	// updated by the merge.
	MasterChanged bool
}

// Engine reconciles a day's entries into ledger records. All writes for a
// given calendar day are serialized through a per-date lock, so concurrent
// Reconcile calls for the same day cannot interleave their read-modify-write
// of the master record. Calls for different days run independently.
type Engine struct {
	store  RecordStore
	logger *slog.Logger
	locks  *dateLocks
	now    func() time.Time
}

// NewEngine creates a reconciliation engine over the given store. The
// logger is the engine's diagnostic sink; pass slog.Default() when no
// component-scoped logger is at hand.
func NewEngine(store RecordStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		logger: logger,
		locks:  newDateLocks(),
		now:    time.Now,
	}
}

// Reconcile saves the day's entries as a regular record unless an identical
// one already exists, then merges them into the day's master record,
// creating it on first save. An empty entry set is a no-op. Storage errors
// propagate immediately; a failed master step does not roll back an already
// inserted regular record.
func (e *Engine) Reconcile(ctx context.Context, day time.Time, entries []core.Entry) (Result, error) {
	items := core.LineItemsFromEntries(entries)
	if len(items) == 0 {
		return Result{}, nil
	}

	startMs, endMs := core.DayBounds(day)

	unlock := e.locks.lock(startMs)
	defer unlock()

	totalCents, checkedCount, checkedCents := core.Totals(items)
	incomingSigs := core.SignatureList(items)

	regularCreated, err := e.saveRegular(ctx, items, incomingSigs, totalCents, checkedCount, checkedCents, startMs, endMs)
	if err != nil {
		return Result{}, err
	}

	masterChanged, err := e.mergeMaster(ctx, items, totalCents, checkedCount, checkedCents, startMs, endMs)
	if err != nil {
		return Result{RegularCreated: regularCreated}, err
	}

	return Result{RegularCreated: regularCreated, MasterChanged: masterChanged}, nil
}

// saveRegular inserts a frozen snapshot record unless one with identical
// content already exists for the day.
func (e *Engine) saveRegular(ctx context.Context, items []core.LineItem, incomingSigs []string, totalCents int64, checkedCount int, checkedCents, startMs, endMs int64) (bool, error) {
	regulars, err := e.store.RecordsInRange(ctx, startMs, endMs, false)
	if err != nil {
		return false, fmt.Errorf("list regular records: %w", err)
	}

	for _, rec := range regulars {
		if core.SignaturesEqual(core.SignatureList(rec.Items), incomingSigs) {
			e.logger.DebugContext(ctx, "Duplicate save suppressed",
				"record_date_ms", startMs,
				"record_id", rec.ID,
				"items", len(items))
			return false, nil
		}
	}

	rec := core.LedgerRecord{
		Items:        items,
		TotalCents:   totalCents,
		CheckedCount: checkedCount,
		CheckedCents: checkedCents,
		RecordDateMs: startMs,
		Master:       false,
		UpdatedAtMs:  e.now().UnixMilli(),
	}
	id, err := e.store.InsertRecord(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("insert regular record: %w", err)
	}

	e.logger.InfoContext(ctx, "Regular record saved",
		"record_id", id,
		"record_date_ms", startMs,
		"items", len(items),
		"total_cents", totalCents)

	return true, nil
}

// mergeMaster creates the day's master record on first save, otherwise
// merges the incoming items into it and persists only on content change.
func (e *Engine) mergeMaster(ctx context.Context, items []core.LineItem, totalCents int64, checkedCount int, checkedCents, startMs, endMs int64) (bool, error) {
	masters, err := e.store.RecordsInRange(ctx, startMs, endMs, true)
	if err != nil {
		return false, fmt.Errorf("list master records: %w", err)
	}

	if len(masters) == 0 {
		rec := core.LedgerRecord{
			Items:        items,
			TotalCents:   totalCents,
			CheckedCount: checkedCount,
			CheckedCents: checkedCents,
			RecordDateMs: startMs,
			Master:       true,
			UpdatedAtMs:  e.now().UnixMilli(),
		}
		id, err := e.store.InsertRecord(ctx, rec)
		if err != nil {
			return false, fmt.Errorf("insert master record: %w", err)
		}
		e.logger.InfoContext(ctx, "Master record created",
			"record_id", id,
			"record_date_ms", startMs,
			"items", len(items),
			"total_cents", totalCents)
		return true, nil
	}

	if len(masters) > 1 {
		// The storage schema keeps one master per day; seeing more means the
		// data predates that constraint or was written around it.
		e.logger.WarnContext(ctx, "Multiple master records for one day, using first",
			"record_date_ms", startMs,
			"count", len(masters))
	}
	master := masters[0]

	merged := Merge(master.Items, items)
	if core.SameItems(master.Items, merged) {
		e.logger.DebugContext(ctx, "Master record unchanged",
			"record_id", master.ID,
			"record_date_ms", startMs)
		return false, nil
	}

	mergedTotal, mergedChecked, mergedCheckedCents := core.Totals(merged)
	master.Items = merged
	master.TotalCents = mergedTotal
	master.CheckedCount = mergedChecked
	master.CheckedCents = mergedCheckedCents
	master.UpdatedAtMs = e.now().UnixMilli()

	if err := e.store.UpdateRecord(ctx, master); err != nil {
		return false, fmt.Errorf("update master record: %w", err)
	}

	e.logger.InfoContext(ctx, "Master record merged",
		"record_id", master.ID,
		"record_date_ms", startMs,
		"items", len(merged),
		"total_cents", mergedTotal)

	return true, nil
}
