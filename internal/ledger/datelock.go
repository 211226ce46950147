package ledger

import "sync"

// dateLocks hands out one mutex per day-start millisecond. Reconciliation
// is a read-modify-write of the day's master record, so two passes for the
// same day must not interleave.
type dateLocks struct {
	mu    sync.Mutex
	locks map[int64]*dateLock
}

type dateLock struct {
	mu   sync.Mutex
	refs int
}

func newDateLocks() *dateLocks {
	return &dateLocks{locks: make(map[int64]*dateLock)}
}

// lock acquires the mutex for the given day and returns its release
// function. The per-day entry is dropped once no caller holds or waits on
// it, so the map does not grow with the number of distinct days seen.
func (d *dateLocks) lock(dayMs int64) (unlock func()) {
	d.mu.Lock()
	l, ok := d.locks[dayMs]
	if !ok {
		l = &dateLock{}
		d.locks[dayMs] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, dayMs)
		}
		d.mu.Unlock()
	}
}
