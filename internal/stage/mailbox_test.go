package stage

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/webitel/stagehub/internal/domain/model"
)

// entryStamp is a MailboxEntry used only to probe the worker's drain loop.
type entryStamp struct{ n int }

func (entryStamp) mailboxEntry() {}

// TestMailbox_DoubleCheckReclaim stresses the running=false -> re-check
// window at the end of worker() (mailbox.go:144-168): a post() racing the
// exact moment the worker gives up "running" must neither silently drop
// the entry nor process it twice (spec.md §8 invariant 6).
func TestMailbox_DoubleCheckReclaim(t *testing.T) {
	var processed int64
	var mu sync.Mutex
	seen := make(map[int]int)

	m := newMailbox(8, 0, 4, func(e model.MailboxEntry) {
		es, ok := e.(entryStamp)
		if !ok {
			return
		}
		atomic.AddInt64(&processed, 1)
		mu.Lock()
		seen[es.n]++
		mu.Unlock()
	}, func(run func()) { go run() })

	const total = 20000
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for !m.post(entryStamp{n: n}) {
				// Small buffer under this much concurrency; retry until
				// the worker has drained room for it.
			}
		}(i)
	}
	wg.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt64(&processed) == total {
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.EqualValues(t, total, atomic.LoadInt64(&processed),
		"every posted entry must be processed exactly once, even racing the worker's running=false window")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, total)
	for n, count := range seen {
		require.Equal(t, 1, count, "entry %d processed more than once", n)
	}
}

// TestMailbox_PostAfterCloseIsRejected documents the closeForDrain contract
// a worker stress test would otherwise obscure: once closed, post() fails
// closed rather than silently queuing behind a worker that will never spawn.
func TestMailbox_PostAfterCloseIsRejected(t *testing.T) {
	m := newMailbox(4, 0, 0, func(model.MailboxEntry) {}, func(run func()) { go run() })
	m.closeForDrain()
	require.False(t, m.post(entryStamp{n: 1}))
}
