package registry

import (
	"errors"

	"github.com/webitel/stagehub/internal/domain/model"
)

// ErrStageOverloaded is returned when a stage's mailbox is at or above
// its high watermark and the caller is a client-originated packet
// (spec.md §5, "Backpressure": system/timer entries bypass this check).
var ErrStageOverloaded = errors.New("registry: stage overloaded")

// Dispatcher routes transport-layer events onto the right stage's
// mailbox. It is the thin layer transport adapters and the external
// event bridge call into instead of touching Registry.Find directly.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher wraps a Registry.
func NewDispatcher(r *Registry) *Dispatcher { return &Dispatcher{registry: r} }

// DispatchClient posts an inbound packet from actorID on stageID. It
// fails closed with ErrStageOverloaded rather than blocking, per
// spec.md §5.
func (d *Dispatcher) DispatchClient(stageID, actorID int64, pkt *model.Packet) error {
	s, ok := d.registry.Find(stageID)
	if !ok {
		return ErrStageNotFound
	}
	if s.Overloaded() {
		return ErrStageOverloaded
	}
	if !s.Post(model.ClientPacket{ActorID: actorID, Packet: pkt}) {
		return ErrStageOverloaded
	}
	return nil
}

// StageDrained reports whether stageID's mailbox has fallen back below
// its low watermark, the point at which a session throttled for that
// stage's overload is allowed to resume reading (spec.md §5). An unknown
// stage counts as drained so a throttle doesn't outlive its stage.
func (d *Dispatcher) StageDrained(stageID int64) bool {
	s, ok := d.registry.Find(stageID)
	if !ok {
		return true
	}
	return s.Drained()
}

// DispatchJoin posts a Join system entry (new actor or reconnect).
func (d *Dispatcher) DispatchJoin(stageID, accountID, sessionID int64, userInfo []byte) error {
	s, ok := d.registry.Find(stageID)
	if !ok {
		return ErrStageNotFound
	}
	s.Post(model.SystemPacket{Kind: model.SystemJoin, AccountID: accountID, SessionID: sessionID, UserInfo: userInfo})
	return nil
}

// DispatchReconnect posts an ActorReconnected system entry when the
// Session Manager evicted an older session for accountID on a duplicate
// login (spec.md §4.4). Unlike DispatchJoin this never creates an Actor
// record -- the stage drops the entry silently if accountID isn't already
// attached.
func (d *Dispatcher) DispatchReconnect(stageID, accountID, sessionID int64) error {
	s, ok := d.registry.Find(stageID)
	if !ok {
		return ErrStageNotFound
	}
	s.Post(model.SystemPacket{Kind: model.SystemActorReconnected, AccountID: accountID, SessionID: sessionID})
	return nil
}

// DispatchDisconnect posts an ActorDisconnect system entry when a
// session drops without an explicit leave.
func (d *Dispatcher) DispatchDisconnect(stageID, accountID int64, reason model.DisconnectReason) error {
	s, ok := d.registry.Find(stageID)
	if !ok {
		return ErrStageNotFound
	}
	s.Post(model.SystemPacket{Kind: model.SystemActorDisconnect, AccountID: accountID, Reason: reason})
	return nil
}

// DispatchLeave posts an explicit Leave system entry.
func (d *Dispatcher) DispatchLeave(stageID, accountID int64) error {
	s, ok := d.registry.Find(stageID)
	if !ok {
		return ErrStageNotFound
	}
	s.Post(model.SystemPacket{Kind: model.SystemLeave, AccountID: accountID})
	return nil
}

// DispatchInterStage delivers pkt fire-and-forget from fromStageID into
// toStageID's mailbox (spec.md §4.9).
func (d *Dispatcher) DispatchInterStage(fromStageID, toStageID int64, pkt *model.Packet) error {
	s, ok := d.registry.Find(toStageID)
	if !ok {
		return ErrStageNotFound
	}
	if !s.Post(model.InterStagePacket{FromStageID: fromStageID, Packet: pkt}) {
		return ErrStageOverloaded
	}
	return nil
}
