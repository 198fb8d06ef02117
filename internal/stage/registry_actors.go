package stage

import "github.com/webitel/stagehub/internal/domain/model"

// actorRegistry tracks the actors attached to a single stage and enforces
// the per-actor FIFO / busy-flag discipline of spec.md §4.6. It is only
// ever touched from inside the owning stage's mailbox worker, so it needs
// no locking of its own.
type actorRegistry struct {
	byAccount map[int64]*Actor
	order     []int64 // account IDs in original attach order, for ready-tie-break
}

func newActorRegistry() *actorRegistry {
	return &actorRegistry{byAccount: make(map[int64]*Actor)}
}

func (r *actorRegistry) get(accountID int64) (*Actor, bool) {
	a, ok := r.byAccount[accountID]
	return a, ok
}

func (r *actorRegistry) attach(a *Actor) {
	if _, exists := r.byAccount[a.AccountID]; !exists {
		r.order = append(r.order, a.AccountID)
	}
	r.byAccount[a.AccountID] = a
}

func (r *actorRegistry) detach(accountID int64) {
	delete(r.byAccount, accountID)
	for i, id := range r.order {
		if id == accountID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *actorRegistry) count() int { return len(r.byAccount) }

// deliverOrDefer routes an inbound ClientPacket to dispatch if the actor
// is idle, or queues it behind the actor's already-busy handler
// otherwise (spec.md §4.6: "An incoming ClientPacket{actor_id, p} is
// deferred if the actor is currently busy"). dispatch is invoked
// synchronously for every packet that becomes eligible to run, including
// ones drained from the deferred queue once the actor goes idle again.
func (r *actorRegistry) deliverOrDefer(cp model.ClientPacket, dispatch func(*Actor, *model.Packet)) {
	a, ok := r.byAccount[cp.ActorID]
	if !ok {
		return
	}
	if a.busy {
		a.deferred = append(a.deferred, &model.ClientPacket{ActorID: cp.ActorID, Packet: cp.Packet})
		return
	}
	r.runBusy(a, cp.Packet, dispatch)
}

// runBusy marks a busy for the duration of dispatch. If no Async-Block
// is left pending when dispatch returns (synchronous handlers are the
// common case), it marks a idle and, if deferred work piled up while it
// was busy, runs the deferred entries in original arrival order, one at
// a time, until the queue is empty or one of them leaves an Async-Block
// pending. Each actor's own FIFO queue is drained independently.
func (r *actorRegistry) runBusy(a *Actor, pkt *model.Packet, dispatch func(*Actor, *model.Packet)) {
	a.busy = true
	dispatch(a, pkt)
	if a.pendingOps == 0 {
		r.drainDeferred(a, dispatch)
	}
}

// drainDeferred is invoked once an actor's busy flag is eligible to
// clear: either immediately after a synchronous handler returns, or from
// the Async-Block completion path once the last pending op finishes.
func (r *actorRegistry) drainDeferred(a *Actor, dispatch func(*Actor, *model.Packet)) {
	a.busy = false
	if len(a.deferred) == 0 {
		return
	}
	next := a.deferred[0]
	a.deferred = a.deferred[1:]
	r.runBusy(a, next.Packet, dispatch)
}
