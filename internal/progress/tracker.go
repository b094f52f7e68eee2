// Package progress tracks bulk-send progress for polling callers. The
// tracker is advisory only: entries expire on their own, absence reports as
// idle, and nothing in the dispatch pipeline depends on it.
package progress

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Send progress states.
const (
	StatusIdle      = "idle"
	StatusSending   = "sending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Snapshot is the transient state reported for one send operation.
type Snapshot struct {
	Total        int       `json:"total"`
	Sent         int       `json:"sent"`
	CurrentBatch int       `json:"currentBatch"`
	Status       string    `json:"status"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// Tracker is a fixed-capacity key/value store with per-entry expiry. Losing
// an entry (eviction, restart) is safe; the caller just sees idle.
type Tracker struct {
	cache *expirable.LRU[string, Snapshot]
}

// NewTracker creates a tracker holding at most capacity entries, each
// expiring after ttl regardless of completion.
func NewTracker(capacity int, ttl time.Duration) *Tracker {
	return &Tracker{
		cache: expirable.NewLRU[string, Snapshot](capacity, nil, ttl),
	}
}

// Begin records the start of a send operation for key.
func (t *Tracker) Begin(key string, total int) {
	t.cache.Add(key, Snapshot{
		Total:     total,
		Status:    StatusSending,
		UpdatedAt: time.Now(),
	})
}

// Advance updates the sent counter and current batch for key.
func (t *Tracker) Advance(key string, sent, currentBatch int) {
	snap, ok := t.cache.Get(key)
	if !ok {
		snap = Snapshot{Status: StatusSending}
	}
	snap.Sent = sent
	snap.CurrentBatch = currentBatch
	snap.UpdatedAt = time.Now()
	t.cache.Add(key, snap)
}

// Complete marks the operation for key as finished.
func (t *Tracker) Complete(key string) {
	t.finish(key, StatusCompleted)
}

// Fail marks the operation for key as failed.
func (t *Tracker) Fail(key string) {
	t.finish(key, StatusFailed)
}

func (t *Tracker) finish(key, status string) {
	snap, ok := t.cache.Get(key)
	if !ok {
		snap = Snapshot{}
	}
	snap.Status = status
	snap.UpdatedAt = time.Now()
	t.cache.Add(key, snap)
}

// Get returns the snapshot for key. A missing or expired entry reports as an
// idle zero state, never an error.
func (t *Tracker) Get(key string) Snapshot {
	if snap, ok := t.cache.Get(key); ok {
		return snap
	}
	return Snapshot{Status: StatusIdle}
}
