package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/webitel/stagehub/internal/domain/model"
)

type fakePoster struct {
	mu    sync.Mutex
	ticks []model.TimerTick
	delay time.Duration
}

func (f *fakePoster) Post(entry model.MailboxEntry) bool {
	tick := entry.(model.TimerTick)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.ticks = append(f.ticks, tick)
	f.mu.Unlock()
	// Simulate the owning stage processing the tick immediately.
	tick.Callback(tick.MissedTicks)
	return true
}

func (f *fakePoster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ticks)
}

func TestManager_AddOnce_Fires(t *testing.T) {
	m := NewManager()
	p := &fakePoster{}
	m.Register(1, p)

	var fired int64
	var mu sync.Mutex
	m.AddOnce(1, 10*time.Millisecond, func(missed int64) {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired == 1
	}, time.Second, time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	require.Equal(t, int64(1), fired)
	mu.Unlock()
}

func TestManager_Cancel_PreventsFire(t *testing.T) {
	m := NewManager()
	p := &fakePoster{}
	m.Register(1, p)

	var fired bool
	id := m.AddOnce(1, 30*time.Millisecond, func(int64) { fired = true })
	m.Cancel(id)

	time.Sleep(60 * time.Millisecond)
	require.False(t, fired)
}

func TestManager_AddRepeat_FiresMultipleTimes(t *testing.T) {
	m := NewManager()
	p := &fakePoster{}
	m.Register(1, p)

	var count int64
	var mu sync.Mutex
	id := m.AddRepeat(1, 5*time.Millisecond, 5*time.Millisecond, func(int64) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 3
	}, time.Second, time.Millisecond)

	m.Cancel(id)
}

func TestManager_AddCount_StopsAfterCount(t *testing.T) {
	m := NewManager()
	p := &fakePoster{}
	m.Register(1, p)

	var count int64
	var mu sync.Mutex
	m.AddCount(1, 5*time.Millisecond, 5*time.Millisecond, 3, func(int64) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 3
	}, time.Second, time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	require.Equal(t, int64(3), count)
	mu.Unlock()
}

func TestManager_Unregister_CancelsStageTimers(t *testing.T) {
	m := NewManager()
	p := &fakePoster{}
	m.Register(1, p)

	var fired bool
	m.AddOnce(1, 30*time.Millisecond, func(int64) { fired = true })
	m.Unregister(1)

	time.Sleep(60 * time.Millisecond)
	require.False(t, fired)
}
