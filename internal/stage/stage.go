package stage

import (
	"sync/atomic"
	"time"

	"github.com/webitel/stagehub/internal/domain/model"
)

// StageLocator resolves a stage_id to the narrow posting contract of
// another stage, used for inter-stage sends (spec.md §4.9). It is
// injected rather than imported so this package never depends on the
// Stage Registry that owns the id→Stage map.
type StageLocator func(stageID int64) (model.MailboxPoster, bool)

// TimerScheduler is the Timer Manager's contract as seen by a Stage
// (spec.md §4.8). A Stage registers itself as the delivery target for
// its own timers and deregisters on Close.
type TimerScheduler interface {
	AddRepeat(stageID int64, initial, period time.Duration, cb func(missed int64)) int64
	AddCount(stageID int64, initial, period time.Duration, count int64, cb func(missed int64)) int64
	AddOnce(stageID int64, delay time.Duration, cb func(missed int64)) int64
	Cancel(timerID int64)
	Register(stageID int64, poster model.MailboxPoster)
	Unregister(stageID int64)
}

// Stage is a single room: one mailbox, one actor registry, one user
// callback implementation (spec.md §3, "Stage"). All state below this
// struct is only ever touched from the mailbox worker goroutine.
type Stage struct {
	ID        int64
	StageType string

	user     UserStage
	mailbox  *mailbox
	actors   *actorRegistry
	sessions SessionLookup
	locator  StageLocator
	timers   TimerScheduler

	reconnectTimeout time.Duration

	state atomic.Int32 // model.StageState
}

// DefaultReconnectTimeout is how long a disconnected actor's record is
// kept around awaiting reconnection before it is torn down (spec.md
// §4.4).
const DefaultReconnectTimeout = 30 * time.Second

// Config bundles a new stage's collaborators and tuning knobs.
type Config struct {
	ID            int64
	StageType     string
	User          UserStage
	Sessions      SessionLookup
	Locator       StageLocator
	Timers        TimerScheduler
	Spawn         func(func())
	MailboxSize      int
	HighWatermark    int
	DrainLimit       int
	ReconnectTimeout time.Duration
}

// New constructs a Stage in the Created state. The caller must post a
// SystemPacket{Kind: SystemCreate} before anything else to run OnCreate
// (spec.md §4.7).
func New(cfg Config, opts ...Option) *Stage {
	cfg.Apply(opts...)
	s := &Stage{
		ID:        cfg.ID,
		StageType: cfg.StageType,
		user:      cfg.User,
		actors:    newActorRegistry(),
		sessions:  cfg.Sessions,
		locator:   cfg.Locator,
		timers:    cfg.Timers,

		reconnectTimeout: cfg.ReconnectTimeout,
	}
	if s.reconnectTimeout <= 0 {
		s.reconnectTimeout = DefaultReconnectTimeout
	}
	s.state.Store(int32(model.StageCreated))
	spawn := cfg.Spawn
	if spawn == nil {
		spawn = func(run func()) { go run() }
	}
	s.mailbox = newMailbox(cfg.MailboxSize, cfg.HighWatermark, cfg.DrainLimit, s.processEntry, spawn)
	if s.timers != nil {
		s.timers.Register(s.ID, s)
	}
	return s
}

// Post enqueues a mailbox entry. It implements model.MailboxPoster so a
// Stage can be handed to the Timer Manager and the Stage Registry
// without either depending on this package's concrete type.
func (s *Stage) Post(entry model.MailboxEntry) bool { return s.mailbox.post(entry) }

// State reports the stage's current lifecycle state.
func (s *Stage) State() model.StageState { return model.StageState(s.state.Load()) }

// Depth reports the current mailbox queue depth.
func (s *Stage) Depth() int { return s.mailbox.Depth() }

// Overloaded reports whether the mailbox is at or above its configured
// high watermark (spec.md §5, "Backpressure").
func (s *Stage) Overloaded() bool { return s.mailbox.Overloaded() }

// Drained reports whether a previously-overloaded mailbox has fallen
// back below its low watermark (spec.md §5).
func (s *Stage) Drained() bool { return s.mailbox.Drained() }

// Running reports whether a worker goroutine is currently draining this
// stage's mailbox.
func (s *Stage) Running() bool { return s.mailbox.Running() }

// ActorCount reports the number of actors currently attached (connected
// or within their reconnect grace window).
func (s *Stage) ActorCount() int { return s.actors.count() }

// Close transitions the stage to Closing; the runtime finishes draining
// what is queued and the Stage Registry reaps it once Closed.
func (s *Stage) Close() {
	s.state.Store(int32(model.StageClosing))
	s.mailbox.post(model.SystemPacket{Kind: model.SystemClose})
}

func (s *Stage) sendToActor(a *Actor, pkt *model.Packet) bool {
	if a == nil || !a.connected {
		return false
	}
	sender, ok := s.sessions.Get(a.sessionID)
	if !ok {
		return false
	}
	return sender.Send(pkt)
}

// SendInterStage delivers pkt to another stage's mailbox fire-and-forget
// (spec.md §4.9). It returns false if the target stage does not exist or
// its mailbox is full/closed.
func (s *Stage) SendInterStage(toStageID int64, pkt *model.Packet) bool {
	if s.locator == nil {
		return false
	}
	target, ok := s.locator(toStageID)
	if !ok {
		return false
	}
	return target.Post(model.InterStagePacket{FromStageID: s.ID, Packet: pkt})
}

// Broadcast fans pkt out to every connected actor for which filter
// returns true (spec.md §4.9, "Broadcast Engine"). filter may be nil to
// address every connected actor.
func (s *Stage) Broadcast(pkt *model.Packet, filter func(*Actor) bool) int {
	sent := 0
	for _, accountID := range s.actors.order {
		a := s.actors.byAccount[accountID]
		if !a.connected {
			continue
		}
		if filter != nil && !filter(a) {
			continue
		}
		if s.sendToActor(a, pkt) {
			sent++
		}
	}
	return sent
}

// AddRepeat/AddCount/AddOnce delegate to the configured TimerScheduler,
// scoping the timer to this stage (spec.md §4.8).
func (s *Stage) AddRepeat(initial, period time.Duration, cb func(missed int64)) int64 {
	return s.timers.AddRepeat(s.ID, initial, period, cb)
}

func (s *Stage) AddCount(initial, period time.Duration, count int64, cb func(missed int64)) int64 {
	return s.timers.AddCount(s.ID, initial, period, count, cb)
}

func (s *Stage) AddOnce(delay time.Duration, cb func(missed int64)) int64 {
	return s.timers.AddOnce(s.ID, delay, cb)
}

func (s *Stage) CancelTimer(timerID int64) { s.timers.Cancel(timerID) }
