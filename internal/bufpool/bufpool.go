// Package bufpool pools the byte buffers the chunk loader and the
// store's tail reader use for ReadAt calls, so repeated chunk loads and
// tail scans don't churn the allocator on every call the way a fresh
// make([]byte, n) per read would.
package bufpool

import "sync"

// maxPooled bounds how large a buffer is worth keeping around: a
// one-off read far larger than a typical chunk is returned to the
// allocator instead of growing the pool's steady-state footprint.
const maxPooled = 4 << 20 // 4 MiB

var pool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 0, 64*1024)
		return &buf
	},
}

// Get returns a []byte of length n, reused from the pool when a
// suitably sized one is available.
func Get(n int) []byte {
	ptr := pool.Get().(*[]byte)
	buf := *ptr
	if cap(buf) < n {
		buf = make([]byte, n)
	} else {
		buf = buf[:n]
	}
	return buf
}

// Put returns buf to the pool for reuse. Buffers larger than maxPooled
// are dropped rather than pooled, so one unusually large read doesn't
// permanently inflate the pool's retained memory.
func Put(buf []byte) {
	if cap(buf) > maxPooled {
		return
	}
	buf = buf[:0]
	pool.Put(&buf)
}
