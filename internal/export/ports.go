package export

import (
	"context"

	"registro/internal/core"
)

// MasterWriter is the outbound port for backing up a day's master record.
// Implementations replace any previously exported rows for the same day, so
// re-exports after a merge are idempotent.
type MasterWriter interface {
	// ExportMaster writes the master record for the given day (YYYY-MM-DD)
	// and returns a backend-specific reference for the written data.
	ExportMaster(ctx context.Context, day string, rec core.LedgerRecord) (ref string, err error)
}
