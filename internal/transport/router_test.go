package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/webitel/stagehub/internal/domain/model"
	"github.com/webitel/stagehub/internal/registry"
	"github.com/webitel/stagehub/internal/stage"
)

// blockingStage holds its worker goroutine hostage on the first
// ClientPacket until release is closed, so later posts pile up behind it
// in the mailbox -- the only reliable way to force Overloaded() from a
// test without a timing race.
type blockingStage struct {
	stage.BaseUserStage
	release chan struct{}
}

func (b *blockingStage) OnDispatch(*stage.DispatchContext) { <-b.release }

func waitForRouterTest(t *testing.T, fn func() bool) {
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

func TestRouter_Drained_TracksStageLowWatermark(t *testing.T) {
	sm := NewManager()
	reg := registry.New(sm, registry.Options{MailboxSize: 16, HighWatermark: 3, DrainLimit: 16, ReconnectTimeout: time.Second})

	release := make(chan struct{})
	reg.RegisterFactory("block", func(int64) stage.UserStage { return &blockingStage{release: release} })

	s, err := reg.CreateStage("block", nil)
	require.NoError(t, err)

	disp := registry.NewDispatcher(reg)
	require.NoError(t, disp.DispatchJoin(s.ID, 1, 1, nil))

	// First ClientPacket occupies the worker inside OnDispatch, blocked
	// on release; the next ones queue up behind it until the mailbox
	// hits its high watermark.
	require.NoError(t, disp.DispatchClient(s.ID, 1, &model.Packet{MsgID: "Slow"}))
	waitForRouterTest(t, func() bool { return s.Running() })

	for !s.Overloaded() {
		require.NoError(t, disp.DispatchClient(s.ID, 1, &model.Packet{MsgID: "Slow"}))
	}

	require.Error(t, disp.DispatchClient(s.ID, 1, &model.Packet{MsgID: "Slow"}))

	router := &Router{Dispatcher: disp}
	sess := NewSession(1, KindTCP, &fakeConn{}, nil, 4)
	sess.StageID = s.ID
	sess.Throttle()

	require.False(t, router.Drained(sess), "should stay throttled while the mailbox is still at/above its low watermark")
	require.True(t, sess.Throttled())

	close(release)
	waitForRouterTest(t, func() bool { return s.Depth() == 0 })

	require.True(t, router.Drained(sess))
	require.False(t, sess.Throttled())
}

func TestRouter_Drained_NeverThrottledIsAlwaysDrained(t *testing.T) {
	router := &Router{}
	sess := NewSession(1, KindTCP, &fakeConn{}, nil, 4)
	require.True(t, router.Drained(sess))
}
