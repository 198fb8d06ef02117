package stage

import "github.com/webitel/stagehub/internal/domain/model"

// processEntry is the single dispatch table mapping mailbox entries onto
// user callbacks (spec.md §4.7). It only ever runs on the mailbox
// worker goroutine, so everything it touches -- actor registry, stage
// state -- needs no synchronization.
func (s *Stage) processEntry(entry model.MailboxEntry) {
	switch e := entry.(type) {
	case model.SystemPacket:
		s.handleSystem(e)
	case model.ClientPacket:
		s.actors.deliverOrDefer(e, s.dispatchClientPacket)
	case model.TimerTick:
		if e.Callback != nil {
			e.Callback(e.MissedTicks)
		}
	case model.AsyncContinuation:
		if e.Resume != nil {
			e.Resume(e.Result, e.Err)
		}
	case model.InterStagePacket:
		s.protect(func() { s.user.OnInterStage(e.FromStageID, e.Packet) })
	}
}

// protect traps a panicking handler so one misbehaving callback cannot
// take the whole process down with it (spec.md §7): the entry is simply
// dropped and the worker moves on to the next one.
func (s *Stage) protect(fn func()) {
	defer func() {
		recover()
	}()
	fn()
}

func (s *Stage) dispatchClientPacket(a *Actor, pkt *model.Packet) {
	s.protect(func() {
		s.user.OnDispatch(&DispatchContext{Stage: s, Actor: a, Packet: pkt})
	})
}

func (s *Stage) handleSystem(e model.SystemPacket) {
	switch e.Kind {
	case model.SystemCreate:
		s.state.Store(int32(model.StageActive))
		var err error
		s.protect(func() { err = s.user.OnCreate(&CreateContext{Stage: s, InitPayload: e.InitPayload}) })
		_ = err
		s.protect(func() { s.user.OnPostCreate(s) })

	case model.SystemJoin:
		s.handleJoin(e)

	case model.SystemActorReconnected:
		s.handleActorReconnected(e)

	case model.SystemActorDisconnect:
		a, ok := s.actors.get(e.AccountID)
		if !ok {
			return
		}
		a.connected = false
		s.protect(func() { s.user.OnActorConnectionChanged(a, false) })
		accountID := e.AccountID
		a.reconnectTimerID = s.AddOnce(s.reconnectTimeout, func(int64) {
			s.handleReconnectTimeout(accountID)
		})

	case model.SystemLeave:
		a, ok := s.actors.get(e.AccountID)
		if !ok {
			return
		}
		s.leaveActor(a, model.LeaveExplicit)

	case model.SystemClose:
		s.closeAllActors()
		s.protect(func() { s.user.OnDestroy() })
		if s.timers != nil {
			s.timers.Unregister(s.ID)
		}
		s.state.Store(int32(model.StageClosed))
		s.mailbox.closeForDrain()
	}
}

// handleJoin implements the SystemJoin row of spec.md §4.7: a brand-new
// actor_id runs the full create sequence (Actor record, actor.OnCreate,
// stage.OnJoinRoom, actor.OnAuthenticate, stage.OnPostJoinRoom,
// stage.OnActorConnectionChanged); an actor_id already attached (within
// its reconnect grace window) only re-attaches the session and runs
// actor.OnAuthenticate/stage.OnActorConnectionChanged -- OnJoinRoom and
// Actor.OnCreate are NOT called again.
func (s *Stage) handleJoin(e model.SystemPacket) {
	a, exists := s.actors.get(e.AccountID)
	if !exists {
		a = &Actor{AccountID: e.AccountID, UserInfo: e.UserInfo}
		a.userActor = s.user.NewActor(e.AccountID)
		s.actors.attach(a)
		s.protect(func() { a.userActor.OnCreate() })
	}
	s.attachSession(a, e.SessionID)

	if !exists {
		s.protect(func() {
			s.user.OnJoin(&JoinContext{Stage: s, Actor: a, UserInfo: e.UserInfo})
		})
	}
	s.protect(func() { a.userActor.OnAuthenticate(e.UserInfo) })
	if !exists {
		s.protect(func() { s.user.OnPostJoinRoom(a) })
	}
	s.protect(func() { s.user.OnActorConnectionChanged(a, true) })
}

// handleActorReconnected implements spec.md §4.4's duplicate-login path:
// Session Manager evicted an older session for this account_id and a new
// one took its place. The Actor record must already exist (the evicted
// session was live, so its account was never disconnected); this never
// touches OnJoinRoom or Actor.OnCreate.
func (s *Stage) handleActorReconnected(e model.SystemPacket) {
	a, ok := s.actors.get(e.AccountID)
	if !ok {
		return
	}
	s.attachSession(a, e.SessionID)
	s.protect(func() { a.userActor.OnAuthenticate(e.UserInfo) })
	s.protect(func() { s.user.OnActorConnectionChanged(a, true) })
}

// attachSession points a at its new live session and cancels any pending
// reconnect-timeout timer, shared by both the SystemJoin and
// SystemActorReconnected paths.
func (s *Stage) attachSession(a *Actor, sessionID int64) {
	a.sessionID = sessionID
	a.connected = true
	if a.reconnectTimerID != 0 {
		s.CancelTimer(a.reconnectTimerID)
		a.reconnectTimerID = 0
	}
}

func (s *Stage) handleReconnectTimeout(accountID int64) {
	a, ok := s.actors.get(accountID)
	if !ok || a.connected {
		return
	}
	s.leaveActor(a, model.LeaveReconnectTimeout)
}

func (s *Stage) leaveActor(a *Actor, reason model.LeaveReason) {
	s.protect(func() { s.user.OnLeaveRoom(a, reason) })
	s.protect(func() { a.userActor.OnDestroy() })
	s.actors.detach(a.AccountID)
}

func (s *Stage) closeAllActors() {
	ids := append([]int64(nil), s.actors.order...)
	for _, id := range ids {
		a, ok := s.actors.get(id)
		if !ok {
			continue
		}
		s.leaveActor(a, model.LeaveStageClosed)
	}
}
