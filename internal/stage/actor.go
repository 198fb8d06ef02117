package stage

import "github.com/webitel/stagehub/internal/domain/model"

// SessionSender is the narrow outbound contract a transport Session
// exposes to a Stage. The Stage never holds a Session directly (spec.md
// §9, "Actor→Session is a non-owning lookup through Session Manager") --
// it looks one up by SessionID through SessionLookup at send time, so a
// disconnected actor's stale SessionID simply misses rather than
// panicking on a freed handle.
type SessionSender interface {
	Send(pkt *model.Packet) bool
}

// SessionLookup resolves a session_id to its current SessionSender. A
// session that has been closed and forgotten by the Session Manager
// returns ok=false.
type SessionLookup interface {
	Get(sessionID int64) (SessionSender, bool)
}

// Actor is the user-visible handle for a connected (or disconnected but
// not yet reaped) participant of a Stage (spec.md §3, "Actor").
type Actor struct {
	AccountID int64
	UserInfo  []byte

	userActor        UserActor
	sessionID        int64
	connected        bool
	busy             bool
	deferred         []*model.ClientPacket
	pendingOps       int64 // outstanding Async-Block continuations for this actor
	reconnectTimerID int64
}

// Connected reports whether the actor currently has a live session
// attached (false while within the reconnect grace window).
func (a *Actor) Connected() bool { return a.connected }

// UserActor returns the per-actor handler object set by UserStage.NewActor
// when this actor first joined (spec.md §3, "Actor.user_actor").
func (a *Actor) UserActor() UserActor { return a.userActor }
