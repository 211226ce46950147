package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"registro/internal/amqp"
	"registro/internal/core"
	"registro/internal/export"
	"registro/internal/ledger"
)

// DaySaver reconciles days and reads their master records.
type DaySaver interface {
	SaveDay(ctx context.Context, day time.Time) (ledger.Result, error)
	MasterForDay(ctx context.Context, day time.Time) (core.LedgerRecord, error)
}

// RecordGetter loads a single ledger record by id.
type RecordGetter interface {
	GetRecord(ctx context.Context, id int64) (core.LedgerRecord, error)
}

// LedgerWorker consumes queued day saves and master exports. The export
// writer is optional; without one, export messages are acknowledged and
// skipped.
type LedgerWorker struct {
	saver   DaySaver
	records RecordGetter
	writer  export.MasterWriter
	loc     *time.Location
}

func NewLedgerWorker(saver DaySaver, records RecordGetter, writer export.MasterWriter, loc *time.Location) *LedgerWorker {
	if loc == nil {
		loc = time.Local
	}
	return &LedgerWorker{
		saver:   saver,
		records: records,
		writer:  writer,
		loc:     loc,
	}
}

// HandleDaySave reconciles the day named by a queued save message.
func (w *LedgerWorker) HandleDaySave(ctx context.Context, msg *amqp.DaySaveMessage) error {
	slog.InfoContext(ctx, "Processing day save message", "day", msg.Day)

	day, err := core.ParseDay(msg.Day, w.loc)
	if err != nil {
		return fmt.Errorf("parse day %q: %w", msg.Day, err)
	}

	res, err := w.saver.SaveDay(ctx, day)
	if err != nil {
		return fmt.Errorf("save day %s: %w", msg.Day, err)
	}

	slog.InfoContext(ctx, "Day save processed",
		"day", msg.Day,
		"regular_created", res.RegularCreated,
		"master_changed", res.MasterChanged)
	return nil
}

// HandleMasterExport writes the referenced master record to the export
// backend. A record that disappeared since the message was queued is treated
// as done rather than requeued forever.
func (w *LedgerWorker) HandleMasterExport(ctx context.Context, msg *amqp.MasterExportMessage) error {
	slog.InfoContext(ctx, "Processing master export message",
		"record_id", msg.RecordID,
		"day", msg.Day)

	if w.writer == nil {
		slog.WarnContext(ctx, "No export writer configured, skipping export",
			"record_id", msg.RecordID)
		return nil
	}

	rec, err := w.records.GetRecord(ctx, msg.RecordID)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			slog.WarnContext(ctx, "Master record no longer exists, skipping export",
				"record_id", msg.RecordID, "day", msg.Day)
			return nil
		}
		return fmt.Errorf("get record %d: %w", msg.RecordID, err)
	}

	ref, err := w.writer.ExportMaster(ctx, msg.Day, rec)
	if err != nil {
		return fmt.Errorf("export master %d: %w", msg.RecordID, err)
	}

	slog.InfoContext(ctx, "Master record exported",
		"record_id", msg.RecordID,
		"day", msg.Day,
		"export_ref", ref)
	return nil
}

// SaveCurrentDay reconciles today. Called periodically as a backup in case
// queued save messages are lost.
func (w *LedgerWorker) SaveCurrentDay(ctx context.Context) error {
	day := time.Now().In(w.loc)

	res, err := w.saver.SaveDay(ctx, day)
	if err != nil {
		return fmt.Errorf("save current day: %w", err)
	}

	if res.RegularCreated || res.MasterChanged {
		slog.InfoContext(ctx, "Periodic save changed the ledger",
			"day", day.Format("2006-01-02"),
			"regular_created", res.RegularCreated,
			"master_changed", res.MasterChanged)
	}
	return nil
}

// ExportRecentMasters re-exports the masters of the last days, newest first.
// A backup in case queued export messages are lost; days without a master
// are skipped.
func (w *LedgerWorker) ExportRecentMasters(ctx context.Context, days int) error {
	if w.writer == nil || days < 1 {
		return nil
	}

	now := time.Now().In(w.loc)
	exported := 0
	for i := 0; i < days; i++ {
		day := now.AddDate(0, 0, -i)
		dayStr := day.Format("2006-01-02")

		rec, err := w.saver.MasterForDay(ctx, day)
		if err != nil {
			if errors.Is(err, core.ErrRecordNotFound) {
				continue
			}
			return fmt.Errorf("get master for %s: %w", dayStr, err)
		}

		if _, err := w.writer.ExportMaster(ctx, dayStr, rec); err != nil {
			slog.ErrorContext(ctx, "Failed to re-export master",
				"day", dayStr, "record_id", rec.ID, "error", err)
			continue
		}
		exported++
	}

	if exported > 0 {
		slog.InfoContext(ctx, "Re-exported recent masters",
			"days_checked", days, "exported", exported)
	}
	return nil
}
