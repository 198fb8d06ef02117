package model

// MailboxEntry is the tagged-union type flowing through a Stage's mailbox
// (spec.md §3, "Mailbox Entry"): ClientPacket | SystemPacket | TimerTick |
// AsyncContinuation | InterStagePacket. A session dropping out is carried
// as SystemPacket{Kind: SystemActorDisconnect} rather than a separate
// entry type, since it is routed through the same handleSystem switch as
// every other lifecycle signal. Every concrete entry type below
// implements the marker method so the compiler enforces the closed set.
type MailboxEntry interface {
	mailboxEntry()
}

// MailboxPoster is the narrow, enqueue-only contract a Stage exposes to
// external collaborators (the Timer Manager, the Stage Registry's
// inter-stage routing, transport adapters). It never exposes stage state
// directly -- only the ability to enqueue, which is what makes "no
// locking in user handlers" (spec.md §4.5) sound: all mutation happens
// inside the single worker that drains this queue.
type MailboxPoster interface {
	Post(entry MailboxEntry) bool
}

// SystemKind distinguishes the system-packet sub-cases.
type SystemKind int32

const (
	SystemCreate SystemKind = iota
	SystemJoin
	SystemActorDisconnect
	SystemLeave
	SystemClose
	SystemActorReconnected
)

// ClientPacket wraps an inbound Packet addressed to a specific actor
// already attached to the stage.
type ClientPacket struct {
	ActorID int64
	Packet  *Packet
}

func (ClientPacket) mailboxEntry() {}

// SystemPacket carries lifecycle signals (Create/Join/Leave/Close/...)
// that the Stage Runtime maps onto user callbacks per spec.md §4.7.
type SystemPacket struct {
	Kind      SystemKind
	AccountID int64
	// SessionID identifies the session attaching/reconnecting, when
	// relevant (Join, ActorReconnected).
	SessionID int64
	UserInfo  []byte
	Reason    any
	// InitPayload carries the stage's creation payload (SystemCreate only).
	InitPayload []byte
}

func (SystemPacket) mailboxEntry() {}

// TimerTick is delivered by the Timer Manager into the owning stage's
// mailbox when a timer fires (spec.md §4.8).
type TimerTick struct {
	TimerID     int64
	MissedTicks int64
	Callback    func(missed int64)
}

func (TimerTick) mailboxEntry() {}

// AsyncContinuation re-enters the stage worker after an Async-Block
// completes off-mailbox work (spec.md §4.11).
type AsyncContinuation struct {
	Result any
	Err    error
	Resume func(result any, err error)
}

func (AsyncContinuation) mailboxEntry() {}

// InterStagePacket is a fire-and-forget delivery from one stage to another
// (spec.md §4.9).
type InterStagePacket struct {
	FromStageID int64
	Packet      *Packet
}

func (InterStagePacket) mailboxEntry() {}
