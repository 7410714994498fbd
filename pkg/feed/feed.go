package feed

import (
	"context"
	"sync"
)

// Handler receives records in channel order.
type Handler func(Record)

// Channel is the Result Feed's inbound boundary: a long-lived subscription
// that calls h for every delivered record until ctx is done.
type Channel interface {
	Run(ctx context.Context, h Handler) error
}

// Feed is an ordered, append-only table of rows. Rows are numbered from 1
// in the order OnRecord is called; numbers are never reused.
type Feed struct {
	mu   sync.RWMutex
	seq  int
	rows []Row

	onAppend func(Row)
}

// New creates an empty feed.
func New() *Feed {
	return &Feed{}
}

// OnAppend sets the callback invoked after each append, in append order.
func (f *Feed) OnAppend(callback func(Row)) {
	f.mu.Lock()
	f.onAppend = callback
	f.mu.Unlock()
}

// OnRecord appends rec as the next row. There is no deduplication,
// reordering or cap.
func (f *Feed) OnRecord(rec Record) Row {
	f.mu.Lock()
	f.seq++
	row := NewRow(f.seq, rec)
	f.rows = append(f.rows, row)
	cb := f.onAppend
	f.mu.Unlock()

	if cb != nil {
		cb(row)
	}
	return row
}

// Rows returns a copy of every row.
func (f *Feed) Rows() []Row {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Row(nil), f.rows...)
}

// Since returns the rows with sequence numbers greater than seq.
func (f *Feed) Since(seq int) []Row {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if seq < 0 {
		seq = 0
	}
	if seq >= len(f.rows) {
		return nil
	}
	// rows[i].Seq == i+1
	return append([]Row(nil), f.rows[seq:]...)
}

// Len returns the number of rows.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rows)
}

// Attach runs ch into the feed until ctx is done.
func (f *Feed) Attach(ctx context.Context, ch Channel) error {
	return ch.Run(ctx, func(rec Record) { f.OnRecord(rec) })
}
