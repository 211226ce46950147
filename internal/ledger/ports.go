// Package ledger implements the master-record reconciliation engine: given a
// day's expense entries it decides whether to create a regular ledger record
// (with idempotent duplicate suppression) and merges the items into the
// day's single master record using three matching strategies.
package ledger

import (
	"context"

	"registro/internal/core"
)

// RecordStore is the storage port the engine depends on. Implementations
// must serialize writes at the record level; the engine adds its own
// per-date serialization on top (see Engine.Reconcile).
type RecordStore interface {
	// RecordsInRange lists ledger records whose RecordDateMs falls inside
	// [startMs, endMs], filtered by the master flag, ordered by id.
	RecordsInRange(ctx context.Context, startMs, endMs int64, master bool) ([]core.LedgerRecord, error)

	// InsertRecord persists a new record and returns its assigned id.
	InsertRecord(ctx context.Context, rec core.LedgerRecord) (int64, error)

	// UpdateRecord replaces the stored fields of an existing record by id.
	UpdateRecord(ctx context.Context, rec core.LedgerRecord) error
}
