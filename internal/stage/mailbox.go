// Package stage implements the per-stage event loop: a lock-free mailbox
// with a lazily-spawned worker that guarantees FIFO, single-threaded
// execution of user handlers per stage (spec.md §4.5), the actor registry
// and busy-flag that restores per-actor FIFO across suspending handlers
// (spec.md §4.6), the Stage Runtime that maps mailbox entries onto user
// callbacks (spec.md §4.7), and the Async-Block escape hatch for blocking
// work (spec.md §4.11).
//
// The mailbox/worker shape is adapted from the teacher's
// domain/registry.Cell: a buffered channel plus an atomic "running" gate
// with the same double-check-on-drain structure, generalized from a
// per-user event queue to a per-stage entry queue carrying the full
// model.MailboxEntry tagged union instead of a single event type.
package stage

import (
	"sync/atomic"

	"github.com/webitel/stagehub/internal/domain/model"
)

// DefaultDrainLimit is the default number of entries a worker drains
// before yielding back to the scheduler via a self-posted continuation
// (spec.md §4.5, "Fairness").
const DefaultDrainLimit = 256

// DefaultMailboxSize is the default mailbox channel capacity.
const DefaultMailboxSize = 1024

// DefaultHighWatermark is the default backpressure threshold
// (spec.md §5, "Backpressure").
const DefaultHighWatermark = 10000

// yieldEntry is a private sentinel the worker posts to itself when it has
// drained DefaultDrainLimit entries in one pass, so other stages sharing
// the runtime's goroutine pool get a chance to run.
type yieldEntry struct{}

func (yieldEntry) mailboxEntry() {}

// mailbox is the lock-free MPSC queue plus the single atomic "running"
// flag described in spec.md §4.5. It holds no knowledge of what an entry
// means; that's the Runtime's job.
type mailbox struct {
	q             chan model.MailboxEntry
	running       atomic.Bool
	closed        atomic.Bool
	highWatermark int
	drainLimit    int

	process func(model.MailboxEntry)
	spawn   func(run func())
}

func newMailbox(size, highWatermark, drainLimit int, process func(model.MailboxEntry), spawn func(func())) *mailbox {
	if size <= 0 {
		size = DefaultMailboxSize
	}
	if highWatermark <= 0 {
		highWatermark = DefaultHighWatermark
	}
	if drainLimit <= 0 {
		drainLimit = DefaultDrainLimit
	}
	return &mailbox{
		q:             make(chan model.MailboxEntry, size),
		highWatermark: highWatermark,
		drainLimit:    drainLimit,
		process:       process,
		spawn:         spawn,
	}
}

// Depth reports the number of entries currently queued (approximate).
func (m *mailbox) Depth() int { return len(m.q) }

// Overloaded reports whether the mailbox is at or above its high
// watermark (spec.md §5, "Backpressure").
func (m *mailbox) Overloaded() bool { return len(m.q) >= m.highWatermark }

// Drained reports whether the mailbox has fallen back below its low
// watermark (half the high watermark), the point at which a session
// throttled by Overloaded is allowed to resume reading (spec.md §5).
func (m *mailbox) Drained() bool { return len(m.q) < m.highWatermark/2 }

// Running reports whether a worker is currently alive for this mailbox
// (spec.md §8 invariant 6).
func (m *mailbox) Running() bool { return m.running.Load() }

// post enqueues entry and spawns a worker if none is currently running.
// System packets and timer ticks bypass Overloaded (spec.md §5): callers
// decide what to gate on Overloaded before calling post for ClientPacket
// entries.
func (m *mailbox) post(entry model.MailboxEntry) bool {
	if m.closed.Load() {
		return false
	}
	select {
	case m.q <- entry:
	default:
		return false
	}

	if m.running.CompareAndSwap(false, true) {
		m.spawn(m.worker)
	}
	return true
}

// closeForDrain stops accepting new entries but lets an already-running
// worker finish draining what's queued (used by Stage.Close).
func (m *mailbox) closeForDrain() { m.closed.Store(true) }

// worker is the cooperative loop described in spec.md §4.5.
func (m *mailbox) worker() {
	for {
		drained := 0
	drain:
		for {
			select {
			case entry := <-m.q:
				if _, isYield := entry.(yieldEntry); isYield {
					break drain
				}
				m.process(entry)
				drained++
				if drained >= m.drainLimit {
					// Re-enter via a self-posted continuation so a hot
					// stage cannot starve other stages on the same pool.
					select {
					case m.q <- yieldEntry{}:
					default:
						// Queue momentarily full; next post() will spawn
						// a fresh worker if we exit below, which is safe
						// since running is still true until we store it.
					}
					break drain
				}
			default:
				break drain
			}
		}

		m.running.Store(false)
		// Double-check: something may have been enqueued between the
		// last failed receive above and the store of running=false.
		select {
		case entry, ok := <-m.q:
			if !ok {
				return
			}
			if !m.running.CompareAndSwap(false, true) {
				// A concurrent post() already flipped running to true and
				// will spawn a fresh worker that drains whatever is left
				// in the channel. We already pulled entry out of the
				// channel ourselves, though, so that fresh worker will
				// never see it -- we must finish it off here before
				// returning.
				m.process(entry)
				return
			}
			if _, isYield := entry.(yieldEntry); !isYield {
				m.process(entry)
			}
			continue
		default:
			return
		}
	}
}
