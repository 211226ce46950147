package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"registro/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists raw entries and ledger records. It implements
// ledger.RecordStore plus the entry CRUD the HTTP API needs.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- Entries ---

// CreateEntry inserts a raw entry and returns its assigned id.
func (r *SQLiteRepository) CreateEntry(ctx context.Context, e core.Entry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	cats, imgs, err := encodeLists(e.Categories, e.ImageRefs)
	if err != nil {
		return 0, err
	}
	now := time.Now().UnixMilli()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO entries (date_ms, description, price, quantity, categories, image_refs, checked, created_at_ms, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.DateMs, e.Description, e.Price, e.Quantity, cats, imgs, boolToInt(e.Checked), now, now)
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("entry insert id: %w", err)
	}

	slog.InfoContext(ctx, "Entry saved",
		"entry_id", id,
		"day", e.DateMs,
		"description", e.Description)

	return id, nil
}

// GetEntry fetches a single entry by id.
func (r *SQLiteRepository) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, date_ms, description, price, quantity, categories, image_refs, checked
		 FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, core.ErrEntryNotFound
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// UpdateEntry replaces the editable fields of an entry.
func (r *SQLiteRepository) UpdateEntry(ctx context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	cats, imgs, err := encodeLists(e.Categories, e.ImageRefs)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE entries SET date_ms = ?, description = ?, price = ?, quantity = ?,
		 categories = ?, image_refs = ?, checked = ?, updated_at_ms = ?
		 WHERE id = ?`,
		e.DateMs, e.Description, e.Price, e.Quantity, cats, imgs, boolToInt(e.Checked),
		time.Now().UnixMilli(), e.ID)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry rows: %w", err)
	}
	if n == 0 {
		return core.ErrEntryNotFound
	}
	return nil
}

// DeleteEntry removes an entry by id.
func (r *SQLiteRepository) DeleteEntry(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry rows: %w", err)
	}
	if n == 0 {
		return core.ErrEntryNotFound
	}

	slog.InfoContext(ctx, "Entry deleted", "entry_id", id)
	return nil
}

// EntriesInRange lists entries whose day falls inside [startMs, endMs], in
// insertion order.
func (r *SQLiteRepository) EntriesInRange(ctx context.Context, startMs, endMs int64) ([]core.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, date_ms, description, price, quantity, categories, image_refs, checked
		 FROM entries WHERE date_ms >= ? AND date_ms <= ? ORDER BY id`, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []core.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// --- Ledger records ---

// RecordsInRange implements ledger.RecordStore.
func (r *SQLiteRepository) RecordsInRange(ctx context.Context, startMs, endMs int64, master bool) ([]core.LedgerRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, items, total_cents, checked_count, checked_cents, record_date_ms, is_master, updated_at_ms
		 FROM ledger_records
		 WHERE record_date_ms >= ? AND record_date_ms <= ? AND is_master = ?
		 ORDER BY id`, startMs, endMs, boolToInt(master))
	if err != nil {
		return nil, fmt.Errorf("list ledger records: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger records: %w", err)
	}
	return out, nil
}

// InsertRecord implements ledger.RecordStore.
func (r *SQLiteRepository) InsertRecord(ctx context.Context, rec core.LedgerRecord) (int64, error) {
	items, err := json.Marshal(itemsToRows(rec.Items))
	if err != nil {
		return 0, fmt.Errorf("encode items: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO ledger_records (items, total_cents, checked_count, checked_cents, record_date_ms, is_master, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(items), rec.TotalCents, rec.CheckedCount, rec.CheckedCents,
		rec.RecordDateMs, boolToInt(rec.Master), rec.UpdatedAtMs)
	if err != nil {
		return 0, fmt.Errorf("insert ledger record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger record insert id: %w", err)
	}
	return id, nil
}

// UpdateRecord implements ledger.RecordStore with a full field replace.
func (r *SQLiteRepository) UpdateRecord(ctx context.Context, rec core.LedgerRecord) error {
	items, err := json.Marshal(itemsToRows(rec.Items))
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE ledger_records SET items = ?, total_cents = ?, checked_count = ?, checked_cents = ?,
		 record_date_ms = ?, is_master = ?, updated_at_ms = ?
		 WHERE id = ?`,
		string(items), rec.TotalCents, rec.CheckedCount, rec.CheckedCents,
		rec.RecordDateMs, boolToInt(rec.Master), rec.UpdatedAtMs, rec.ID)
	if err != nil {
		return fmt.Errorf("update ledger record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ledger record rows: %w", err)
	}
	if n == 0 {
		return core.ErrRecordNotFound
	}
	return nil
}

// GetRecord fetches a single ledger record by id.
func (r *SQLiteRepository) GetRecord(ctx context.Context, id int64) (core.LedgerRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, items, total_cents, checked_count, checked_cents, record_date_ms, is_master, updated_at_ms
		 FROM ledger_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.LedgerRecord{}, core.ErrRecordNotFound
	}
	if err != nil {
		return core.LedgerRecord{}, fmt.Errorf("get ledger record: %w", err)
	}
	return rec, nil
}

// MasterForDay returns the day's master record, or core.ErrRecordNotFound.
func (r *SQLiteRepository) MasterForDay(ctx context.Context, startMs, endMs int64) (core.LedgerRecord, error) {
	masters, err := r.RecordsInRange(ctx, startMs, endMs, true)
	if err != nil {
		return core.LedgerRecord{}, err
	}
	if len(masters) == 0 {
		return core.LedgerRecord{}, core.ErrRecordNotFound
	}
	return masters[0], nil
}

// --- Row mapping ---

// itemRow is the JSON shape of a line item inside the items column.
type itemRow struct {
	Description string   `json:"description"`
	Price       string   `json:"price"`
	Quantity    string   `json:"quantity,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	ImageRefs   []string `json:"image_refs,omitempty"`
	Checked     bool     `json:"checked,omitempty"`
	SourceID    *int64   `json:"source_id,omitempty"`
}

func itemsToRows(items []core.LineItem) []itemRow {
	rows := make([]itemRow, len(items))
	for i, it := range items {
		rows[i] = itemRow(it)
	}
	return rows
}

func rowsToItems(rows []itemRow) []core.LineItem {
	items := make([]core.LineItem, len(rows))
	for i, row := range rows {
		items[i] = core.LineItem(row)
	}
	return items
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (core.Entry, error) {
	var (
		e       core.Entry
		cats    string
		imgs    string
		checked int64
	)
	if err := row.Scan(&e.ID, &e.DateMs, &e.Description, &e.Price, &e.Quantity, &cats, &imgs, &checked); err != nil {
		return core.Entry{}, err
	}
	if err := json.Unmarshal([]byte(cats), &e.Categories); err != nil {
		return core.Entry{}, fmt.Errorf("decode categories: %w", err)
	}
	if err := json.Unmarshal([]byte(imgs), &e.ImageRefs); err != nil {
		return core.Entry{}, fmt.Errorf("decode image refs: %w", err)
	}
	e.Checked = checked != 0
	return e, nil
}

func scanRecord(row rowScanner) (core.LedgerRecord, error) {
	var (
		rec    core.LedgerRecord
		items  string
		master int64
	)
	if err := row.Scan(&rec.ID, &items, &rec.TotalCents, &rec.CheckedCount, &rec.CheckedCents, &rec.RecordDateMs, &master, &rec.UpdatedAtMs); err != nil {
		return core.LedgerRecord{}, err
	}
	var rows []itemRow
	if err := json.Unmarshal([]byte(items), &rows); err != nil {
		return core.LedgerRecord{}, fmt.Errorf("decode items: %w", err)
	}
	rec.Items = rowsToItems(rows)
	rec.Master = master != 0
	return rec, nil
}

func encodeLists(categories, imageRefs []string) (string, string, error) {
	if categories == nil {
		categories = []string{}
	}
	if imageRefs == nil {
		imageRefs = []string{}
	}
	cats, err := json.Marshal(categories)
	if err != nil {
		return "", "", fmt.Errorf("encode categories: %w", err)
	}
	imgs, err := json.Marshal(imageRefs)
	if err != nil {
		return "", "", fmt.Errorf("encode image refs: %w", err)
	}
	return string(cats), string(imgs), nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
