// Package progress provides a shared in-memory registry of in-flight
// backtest runs, with snapshot reads for status polling and non-blocking
// pub/sub for push updates.
package progress

import (
	"context"
	"sync"
	"time"

	"vela/internal/domain"
)

// Snapshot is a point-in-time view of one run's progress.
type Snapshot struct {
	ID         string           `json:"id"`
	Strategy   string           `json:"strategy"`
	Status     domain.RunStatus `json:"status"`
	CurrentBar int              `json:"current_bar"`
	TotalBars  int              `json:"total_bars"`
	Equity     float64          `json:"equity"`
	StartedAt  time.Time        `json:"started_at"`
}

// Event is emitted to subscribers whenever a run's snapshot changes.
type Event struct {
	Snapshot
}

type runState struct {
	snap   Snapshot
	cancel context.CancelFunc
}

// Tracker holds the live state of every registered run. Reads take a shared
// lock so pollers never block the simulator; updates publish to subscribers
// with a non-blocking send, dropping events for slow consumers.
type Tracker struct {
	mu   sync.RWMutex
	runs map[string]*runState

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Event
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		runs: make(map[string]*runState),
		subs: make(map[int]chan Event),
	}
}

// Register adds a pending run with its cancel function and total bar count.
func (t *Tracker) Register(id, strategyName string, totalBars int, cancel context.CancelFunc) {
	t.mu.Lock()
	t.runs[id] = &runState{
		snap: Snapshot{
			ID:        id,
			Strategy:  strategyName,
			Status:    domain.StatusPending,
			TotalBars: totalBars,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	snap := t.runs[id].snap
	t.mu.Unlock()
	t.publish(snap)
}

// SetStatus transitions a run's lifecycle state.
func (t *Tracker) SetStatus(id string, status domain.RunStatus) {
	t.mu.Lock()
	rs, ok := t.runs[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	rs.snap.Status = status
	snap := rs.snap
	t.mu.Unlock()
	t.publish(snap)
}

// SetTotalBars records the timeline length once prefetch has determined it.
func (t *Tracker) SetTotalBars(id string, totalBars int) {
	t.mu.Lock()
	if rs, ok := t.runs[id]; ok {
		rs.snap.TotalBars = totalBars
	}
	t.mu.Unlock()
}

// UpdateBar records per-bar progress. It is called from inside the bar loop
// and must stay cheap; subscribers are notified without blocking.
func (t *Tracker) UpdateBar(id string, bar int, equity float64) {
	t.mu.Lock()
	rs, ok := t.runs[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	rs.snap.CurrentBar = bar
	rs.snap.Equity = equity
	snap := rs.snap
	t.mu.Unlock()
	t.publish(snap)
}

// Get returns the current snapshot for a run.
func (t *Tracker) Get(id string) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rs, ok := t.runs[id]
	if !ok {
		return Snapshot{}, false
	}
	return rs.snap, true
}

// List returns snapshots of all registered runs.
func (t *Tracker) List() []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Snapshot, 0, len(t.runs))
	for _, rs := range t.runs {
		out = append(out, rs.snap)
	}
	return out
}

// Cancel invokes a run's cancel function. The run itself observes the
// cancellation at its next bar boundary. Returns false for unknown runs.
func (t *Tracker) Cancel(id string) bool {
	t.mu.RLock()
	rs, ok := t.runs[id]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	rs.cancel()
	return true
}

// Remove drops a finished run from the tracker. Callers persist the result
// before removing so pollers never see a gap.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	delete(t.runs, id)
	t.mu.Unlock()
}

// Subscribe registers an event channel. The returned id is passed to
// Unsubscribe. Events are dropped rather than blocking when the channel's
// buffer is full.
func (t *Tracker) Subscribe(buffer int) (int, <-chan Event) {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	id := t.nextSubID
	t.nextSubID++
	ch := make(chan Event, buffer)
	t.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (t *Tracker) Unsubscribe(id int) {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	if ch, ok := t.subs[id]; ok {
		delete(t.subs, id)
		close(ch)
	}
}

func (t *Tracker) publish(snap Snapshot) {
	t.subsMu.Lock()
	for _, ch := range t.subs {
		select {
		case ch <- Event{Snapshot: snap}:
		default:
			// Slow subscriber, drop event.
		}
	}
	t.subsMu.Unlock()
}
