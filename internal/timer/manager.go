// Package timer implements the Timer Manager (spec.md §4.8): process-wide
// monotonic timer IDs, repeat/count/one-shot delivery, and drift
// coalescing so a stage whose worker falls behind receives one
// TimerTick carrying a missed-tick count instead of a backlog of
// identical ticks.
//
// Delivery is decoupled from the Stage Registry by model.MailboxPoster:
// a Stage registers itself as the poster for its own stage_id: and the
// manager knows nothing else about what a stage is.
package timer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/webitel/stagehub/internal/domain/model"
)

type kind int

const (
	kindRepeat kind = iota
	kindCount
	kindOnce
)

type record struct {
	id      int64
	stageID int64
	kind    kind
	period  time.Duration
	cb      func(missed int64)

	pending   atomic.Bool
	missed    atomic.Int64
	remaining atomic.Int64 // count timers only
	cancelled atomic.Bool
	stop      chan struct{}
}

// Manager drives every armed timer on its own goroutine and hands ticks
// off to the owning stage's mailbox via model.MailboxPoster.
type Manager struct {
	mu       sync.Mutex
	posters  map[int64]model.MailboxPoster
	records  map[int64]*record
	idSeq    atomic.Int64
}

// NewManager builds an empty Timer Manager.
func NewManager() *Manager {
	return &Manager{
		posters: make(map[int64]model.MailboxPoster),
		records: make(map[int64]*record),
	}
}

// Register associates stageID with the MailboxPoster timers fire into.
// A Stage calls this once at construction.
func (m *Manager) Register(stageID int64, poster model.MailboxPoster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posters[stageID] = poster
}

// Unregister removes a stage's poster and cancels every timer still
// armed for it, called when a stage reaches Closed.
func (m *Manager) Unregister(stageID int64) {
	m.mu.Lock()
	var toCancel []*record
	for id, r := range m.records {
		if r.stageID == stageID {
			toCancel = append(toCancel, r)
			delete(m.records, id)
		}
	}
	delete(m.posters, stageID)
	m.mu.Unlock()

	for _, r := range toCancel {
		r.cancelled.Store(true)
		close(r.stop)
	}
}

func (m *Manager) lookupPoster(stageID int64) (model.MailboxPoster, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posters[stageID]
	return p, ok
}

func (m *Manager) newRecord(stageID int64, k kind, period time.Duration, count int64, cb func(int64)) *record {
	r := &record{
		id:      m.idSeq.Add(1),
		stageID: stageID,
		kind:    k,
		period:  period,
		cb:      cb,
		stop:    make(chan struct{}),
	}
	if k == kindCount {
		r.remaining.Store(count)
	}
	m.mu.Lock()
	m.records[r.id] = r
	m.mu.Unlock()
	return r
}

// AddRepeat arms a timer that fires every period starting after initial,
// indefinitely until Cancel or Unregister.
func (m *Manager) AddRepeat(stageID int64, initial, period time.Duration, cb func(missed int64)) int64 {
	r := m.newRecord(stageID, kindRepeat, period, 0, cb)
	go m.run(r, initial)
	return r.id
}

// AddCount arms a timer that fires up to count times, each separated by
// period, the first after initial.
func (m *Manager) AddCount(stageID int64, initial, period time.Duration, count int64, cb func(missed int64)) int64 {
	r := m.newRecord(stageID, kindCount, period, count, cb)
	go m.run(r, initial)
	return r.id
}

// AddOnce arms a one-shot timer firing once after delay.
func (m *Manager) AddOnce(stageID int64, delay time.Duration, cb func(missed int64)) int64 {
	r := m.newRecord(stageID, kindOnce, 0, 0, cb)
	go m.run(r, delay)
	return r.id
}

// Cancel disarms a timer. It is a no-op if the timer already fired (once)
// or was already cancelled.
func (m *Manager) Cancel(id int64) {
	m.mu.Lock()
	r, ok := m.records[id]
	if ok {
		delete(m.records, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	r.cancelled.Store(true)
	close(r.stop)
}

// Has reports whether id is still armed.
func (m *Manager) Has(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[id]
	return ok
}

func (m *Manager) forget(id int64) {
	m.mu.Lock()
	delete(m.records, id)
	m.mu.Unlock()
}

func (m *Manager) run(r *record, initial time.Duration) {
	t := time.NewTimer(initial)
	defer t.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-t.C:
			if r.cancelled.Load() {
				// Cancelled by deliver() once a count timer ran out.
				m.forget(r.id)
				return
			}
			m.fire(r)
			if r.kind == kindOnce {
				m.forget(r.id)
				return
			}
			if r.kind == kindCount && r.remaining.Load() <= 0 {
				m.forget(r.id)
				return
			}
			t.Reset(r.period)
		}
	}
}

// fire posts a TimerTick if one for this record isn't already sitting
// unprocessed in the target mailbox; otherwise it folds into missed
// (spec.md §4.8, "drift coalescing").
func (m *Manager) fire(r *record) {
	if !r.pending.CompareAndSwap(false, true) {
		r.missed.Add(1)
		return
	}
	poster, ok := m.lookupPoster(r.stageID)
	if !ok {
		r.pending.Store(false)
		return
	}
	tick := model.TimerTick{
		TimerID: r.id,
		Callback: func(int64) {
			m.deliver(r)
		},
	}
	if !poster.Post(tick) {
		r.pending.Store(false)
	}
}

// deliver runs on the target stage's mailbox worker, invoked via the
// TimerTick's Callback once the stage actually processes the tick.
func (m *Manager) deliver(r *record) {
	missed := r.missed.Swap(0)
	r.pending.Store(false)
	if r.kind == kindCount {
		dec := missed + 1
		if r.remaining.Add(-dec) <= 0 {
			r.cancelled.Store(true)
		}
	}
	r.cb(missed)
}
