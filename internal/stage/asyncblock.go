package stage

import "github.com/webitel/stagehub/internal/domain/model"

// AsyncBlock is the only sanctioned way for a handler to perform
// blocking or CPU-heavy work without stalling the stage's mailbox worker
// (spec.md §4.11). pre runs on a separate goroutine; once it returns, its
// result is delivered back onto the stage's mailbox as an
// AsyncContinuation and post runs on the worker goroutine exactly like
// any other handler, preserving the single-writer guarantee.
//
// The owning actor (if any) stays marked busy for the duration, so
// packets queued behind it keep deferring until post returns -- this is
// the Go-native stand-in for "suspend the handler mid-execution" (spec.md
// §9): true coroutine suspension has no analogue in goroutine-per-stage
// Go code, so suspension here is always an explicit, visible boundary.
func (s *Stage) AsyncBlock(actor *Actor, pre func() (any, error), post func(result any, err error)) {
	if actor != nil {
		actor.pendingOps++
	}
	go func() {
		result, err := pre()
		entry := model.AsyncContinuation{
			Result: result,
			Err:    err,
			Resume: func(result any, err error) {
				post(result, err)
				if actor != nil {
					actor.pendingOps--
					if actor.pendingOps == 0 {
						s.actors.drainDeferred(actor, s.dispatchClientPacket)
					}
				}
			},
		}
		s.mailbox.post(entry)
	}()
}
