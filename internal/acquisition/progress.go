package acquisition

import (
	"math"
	"sync"
)

// Tracker computes aggregate progress over a sequential upload queue as
// (completedFiles + currentFileFraction) / totalFiles. Reported values never decrease and reach 100
// only once every file has completed.
type Tracker struct {
	mu        sync.Mutex
	total     int
	completed int
	percent   int
	emit      ProgressFunc
}

// NewTracker creates a Tracker for total files.
func NewTracker(total int, emit ProgressFunc) *Tracker {
	return &Tracker{total: total, emit: emit}
}

// Transfer records an incremental byte-transfer event for the current file.
func (t *Tracker) Transfer(bytesTransferred, totalBytes int64) {
	fraction := 1.0
	if totalBytes > 0 {
		fraction = math.Min(float64(bytesTransferred)/float64(totalBytes), 1)
	}

	t.mu.Lock()
	pct := 0
	if t.total > 0 {
		pct = int(math.Floor((float64(t.completed) + fraction) / float64(t.total) * 100))
	}
	if pct > 99 {
		pct = 99
	}
	current := t.raise(pct)
	t.mu.Unlock()

	emit(t.emit, current)
}

// Complete records the terminal success of the current file.
func (t *Tracker) Complete() {
	t.mu.Lock()
	if t.completed < t.total {
		t.completed++
	}
	pct := 100
	if t.completed < t.total {
		pct = int(math.Floor(float64(t.completed) / float64(t.total) * 100))
	}
	current := t.raise(pct)
	t.mu.Unlock()

	emit(t.emit, current)
}

// Percent returns the last reported percentage.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}

func (t *Tracker) raise(pct int) int {
	if pct > t.percent {
		t.percent = pct
	}
	return t.percent
}
