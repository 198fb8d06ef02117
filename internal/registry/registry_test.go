package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/webitel/stagehub/internal/domain/model"
	"github.com/webitel/stagehub/internal/stage"
)

type echoStage struct {
	stage.BaseUserStage
}

func (echoStage) OnDispatch(ctx *stage.DispatchContext) {
	ctx.Reply(model.Success, ctx.Packet.Payload)
}

type fakeSessions struct {
	mu sync.Mutex
	m  map[int64]stage.SessionSender
}

func (f *fakeSessions) Get(id int64) (stage.SessionSender, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.m[id]
	return s, ok
}

type fakeSession struct {
	mu  sync.Mutex
	got []*model.Packet
}

func (s *fakeSession) Send(pkt *model.Packet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, pkt)
	return true
}

func waitFor(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestRegistry_CreateJoinDispatch(t *testing.T) {
	sess := &fakeSession{}
	sessions := &fakeSessions{m: map[int64]stage.SessionSender{1: sess}}
	r := New(sessions, Options{})
	r.RegisterFactory("room", func(int64) stage.UserStage { return &echoStage{} })

	s, err := r.CreateStage("room", nil)
	require.NoError(t, err)

	d := NewDispatcher(r)
	require.NoError(t, d.DispatchJoin(s.ID, 100, 1, nil))
	require.NoError(t, d.DispatchClient(s.ID, 100, &model.Packet{MsgID: "Echo", Payload: []byte("hi")}))

	waitFor(t, func() bool {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return len(sess.got) == 1
	})
}

func TestRegistry_CreateStage_UnknownType(t *testing.T) {
	r := New(&fakeSessions{m: map[int64]stage.SessionSender{}}, Options{})
	_, err := r.CreateStage("nope", nil)
	require.ErrorIs(t, err, ErrUnknownStageType)
}

func TestRegistry_DestroyStage_Reaps(t *testing.T) {
	r := New(&fakeSessions{m: map[int64]stage.SessionSender{}}, Options{})
	r.RegisterFactory("room", func(int64) stage.UserStage { return &echoStage{} })
	s, err := r.CreateStage("room", nil)
	require.NoError(t, err)

	require.NoError(t, r.DestroyStage(s.ID))
	waitFor(t, func() bool {
		_, ok := r.Find(s.ID)
		return !ok
	})
}

func TestRegistry_Shutdown_DrainsAllStages(t *testing.T) {
	r := New(&fakeSessions{m: map[int64]stage.SessionSender{}}, Options{})
	r.RegisterFactory("room", func(int64) stage.UserStage { return &echoStage{} })
	for i := 0; i < 5; i++ {
		_, err := r.CreateStage("room", nil)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
	require.Equal(t, 0, r.Stats().TotalStages)
}
