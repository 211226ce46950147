package core

import (
	"errors"
	"strings"
	"time"
)

type (
	// Entry is a raw daily expense line as captured by one of the entry
	// points (list UI, widget, overlay). Entries are the unit of editing;
	// ledger records are built from them.
	Entry struct {
		ID          int64
		DateMs      int64 // local-zone midnight of the owning day, epoch millis
		Description string
		Price       string // decimal text, parsed lazily
		Quantity    string
		Categories  []string
		ImageRefs   []string
		Checked     bool
	}

	// LineItem is the merge input unit derived from an Entry. SourceID links
	// back to the originating entry; nil means the item cannot be matched by
	// identity.
	LineItem struct {
		Description string
		Price       string
		Quantity    string
		Categories  []string
		ImageRefs   []string
		Checked     bool
		SourceID    *int64
	}

	// LedgerRecord is a saved item set for one day. Regular records
	// (Master == false) are frozen snapshots; the single master record per
	// day is the running deduplicated aggregate.
	LedgerRecord struct {
		ID           int64
		Items        []LineItem
		TotalCents   int64
		CheckedCount int
		CheckedCents int64
		RecordDateMs int64
		Master       bool
		UpdatedAtMs  int64
	}
)

var (
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidDate      = errors.New("invalid date")
	ErrRecordNotFound   = errors.New("ledger record not found")
	ErrEntryNotFound    = errors.New("entry not found")
)

// LineItemFromEntry maps a raw entry to a merge input item, carrying the
// entry id as the item's stable identity.
func LineItemFromEntry(e Entry) LineItem {
	id := e.ID
	return LineItem{
		Description: e.Description,
		Price:       e.Price,
		Quantity:    e.Quantity,
		Categories:  e.Categories,
		ImageRefs:   e.ImageRefs,
		Checked:     e.Checked,
		SourceID:    &id,
	}
}

// LineItemsFromEntries maps a day's entries in order.
func LineItemsFromEntries(entries []Entry) []LineItem {
	items := make([]LineItem, len(entries))
	for i, e := range entries {
		items[i] = LineItemFromEntry(e)
	}
	return items
}

// NormalizedName returns the item's description trimmed and lowercased, the
// key used for name-based matching.
func (it LineItem) NormalizedName() string {
	return strings.ToLower(strings.TrimSpace(it.Description))
}

// PriceCents parses the item's price text, coercing unparseable text to 0.
func (it LineItem) PriceCents() int64 {
	return PriceCents(it.Price)
}

// Totals aggregates a set of items: total of all prices, count of checked
// items, and total of checked prices. Non-numeric prices count as zero.
func Totals(items []LineItem) (totalCents int64, checkedCount int, checkedCents int64) {
	for _, it := range items {
		cents := it.PriceCents()
		totalCents += cents
		if it.Checked {
			checkedCount++
			checkedCents += cents
		}
	}
	return totalCents, checkedCount, checkedCents
}

func (e Entry) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if e.DateMs <= 0 {
		return ErrInvalidDate
	}
	return nil
}

// DayBounds returns the millisecond range covering the calendar day that
// contains t, in t's location. The end bound is the next day's start minus
// one millisecond, so the range is inclusive on both sides.
func DayBounds(t time.Time) (startMs, endMs int64) {
	year, month, day := t.Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start.UnixMilli(), end.UnixMilli()
}

// DayStartMs returns the epoch millis of local midnight for t's day.
func DayStartMs(t time.Time) int64 {
	start, _ := DayBounds(t)
	return start
}

// ParseDay parses a YYYY-MM-DD day string in the given location.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}
