package wire

import "sync"

// sizeClasses mirrors the buffer pool tiers named in spec.md §5
// ("Shared-resource policy"): 64B/256B/1KB/4KB/16KB/64KB/256KB/1MB.
var sizeClasses = []int{
	64, 256, 1024, 4096, 16384, 65536, 262144, 1048576,
}

var payloadPools = func() []*sync.Pool {
	pools := make([]*sync.Pool, len(sizeClasses))
	for i, sz := range sizeClasses {
		sz := sz
		pools[i] = &sync.Pool{New: func() any {
			return make([]byte, 0, sz)
		}}
	}
	return pools
}()

// classFor returns the index of the smallest size class able to hold n
// bytes, or -1 if n exceeds the largest class (caller must allocate).
func classFor(n int) int {
	for i, sz := range sizeClasses {
		if n <= sz {
			return i
		}
	}
	return -1
}

// GetPayload borrows a pooled byte slice with capacity >= n and length n.
// Payloads larger than the biggest size class are allocated directly; they
// are never pooled.
func GetPayload(n int) []byte {
	idx := classFor(n)
	if idx < 0 {
		return make([]byte, n)
	}
	buf := payloadPools[idx].Get().([]byte)
	return append(buf[:0], make([]byte, n)...)
}

// PutPayload returns a payload slice to its size-class pool. Slices whose
// capacity doesn't match a known size class are dropped (GC reclaims
// them); this keeps the pool free of odd-sized stragglers.
func PutPayload(b []byte) {
	if b == nil {
		return
	}
	c := cap(b)
	for i, sz := range sizeClasses {
		if c == sz {
			payloadPools[i].Put(b[:0]) //nolint:staticcheck // reset length, keep cap
			return
		}
	}
}

// headerPool recycles small header-sized scratch buffers (capacity
// maxHeaderLen); it is not a size-classed payload pool. Encode does not
// draw from it: it allocates each frame's output slice directly.
var headerPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, maxHeaderLen)
		return &b
	},
}

func getHeaderBuf() *[]byte {
	return headerPool.Get().(*[]byte)
}

func putHeaderBuf(b *[]byte) {
	*b = (*b)[:0]
	headerPool.Put(b)
}
