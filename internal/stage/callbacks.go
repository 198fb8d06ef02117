package stage

import "github.com/webitel/stagehub/internal/domain/model"

// UserStage is the callback surface a stage implementation provides
// (spec.md §4.7). Embed BaseUserStage to pick up no-op defaults and only
// override what the stage type actually cares about -- most stage types
// implement a handful of these, not all of them.
type UserStage interface {
	OnCreate(ctx *CreateContext) error
	OnPostCreate(s *Stage)
	// NewActor constructs the per-actor handler object for a brand-new
	// actor_id joining this stage (spec.md §3, "Actor.user_actor"). The
	// default returns BaseUserActor{}, a no-op.
	NewActor(accountID int64) UserActor
	OnJoin(ctx *JoinContext) error
	OnPostJoinRoom(actor *Actor)
	OnActorConnectionChanged(actor *Actor, connected bool)
	OnLeaveRoom(actor *Actor, reason model.LeaveReason)
	OnDestroy()
	OnDispatch(ctx *DispatchContext)
	OnInterStage(fromStageID int64, pkt *model.Packet)
	OnTimer(timerID int64, missed int64)
}

// BaseUserStage supplies no-op implementations of every UserStage method.
// Concrete stage types embed it so they only need to override the
// callbacks they actually use.
type BaseUserStage struct{}

func (BaseUserStage) OnCreate(*CreateContext) error    { return nil }
func (BaseUserStage) OnPostCreate(*Stage)               {}
func (BaseUserStage) NewActor(int64) UserActor          { return BaseUserActor{} }
func (BaseUserStage) OnJoin(*JoinContext) error         { return nil }
func (BaseUserStage) OnPostJoinRoom(*Actor)             {}
func (BaseUserStage) OnActorConnectionChanged(*Actor, bool) {}
func (BaseUserStage) OnLeaveRoom(*Actor, model.LeaveReason) {}
func (BaseUserStage) OnDestroy()                            {}
func (BaseUserStage) OnDispatch(*DispatchContext)           {}
func (BaseUserStage) OnInterStage(int64, *model.Packet)     {}
func (BaseUserStage) OnTimer(int64, int64)                  {}

// UserActor is the per-Actor callback surface (spec.md §3, "Actor" and
// §4.7's Join row: "create Actor record, actor.OnCreate() ... stage.OnJoinRoom
// ... actor.OnAuthenticate(auth_data)"). Stage types that don't need
// per-actor state leave UserStage.NewActor at its BaseUserStage default
// and never implement this at all.
type UserActor interface {
	// OnCreate runs once, the moment an actor_id first joins the stage --
	// never again, including on reconnect.
	OnCreate()
	// OnAuthenticate runs on every successful Join, fresh or reconnect,
	// with the Room Token's user_info payload for that attempt. On the
	// duplicate-login path (SystemActorReconnected) it also runs, but
	// authData is nil: that entry carries no user_info.
	OnAuthenticate(authData []byte)
	// OnDestroy runs once, right before the actor is removed from the
	// registry (explicit leave, reconnect timeout, kick, or stage close).
	OnDestroy()
}

// BaseUserActor supplies no-op implementations of every UserActor method.
type BaseUserActor struct{}

func (BaseUserActor) OnCreate()            {}
func (BaseUserActor) OnAuthenticate([]byte) {}
func (BaseUserActor) OnDestroy()            {}

// CreateContext is handed to OnCreate when a stage is first materialized
// (spec.md §4.7, SystemPacket{Create}).
type CreateContext struct {
	Stage       *Stage
	InitPayload []byte
}

// JoinContext is handed to OnJoin. The runtime only calls OnJoin for a
// brand-new actor_id (spec.md §4.7): reconnects re-attach the session and
// re-run actor.OnAuthenticate/stage.OnActorConnectionChanged instead.
type JoinContext struct {
	Stage    *Stage
	Actor    *Actor
	UserInfo []byte
}

// DispatchContext is handed to OnDispatch for each inbound ClientPacket.
// Reply addresses the packet back to the originating actor's session.
type DispatchContext struct {
	Stage  *Stage
	Actor  *Actor
	Packet *model.Packet
}

// Reply sends a response packet back down the originating session,
// tagging it as a reply to Packet.MsgSeq (spec.md §4.1, reply framing).
func (c *DispatchContext) Reply(code model.ErrorCode, payload []byte) {
	c.Stage.sendToActor(c.Actor, c.Packet.Reply(code, payload))
}
