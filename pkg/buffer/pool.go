// Package buffer implements the growable byte buffer and process-wide
// free list used by every codec and transport in this module. A
// ResizableBuffer exposes big-endian offset read/write primitives over an
// underlying, amortized-growth byte slice; Pool recycles them so a
// request pipeline doesn't allocate a fresh buffer per attempt.
package buffer

import (
	"sync"

	"github.com/valyala/bytebufferpool"
)

// Pool is a process-wide free list of ResizableBuffer. A buffer is either
// owned by exactly one in-flight request or present in the free list;
// acquiring twice without releasing, or releasing twice, is a programming
// error. Release detects a double release (or a release of a buffer this
// pool did not hand out) and panics; a double Acquire cannot happen, since
// every Acquire returns a fresh *ResizableBuffer.
type Pool struct {
	bbPool bytebufferpool.Pool

	mu    sync.Mutex
	inUse map[*ResizableBuffer]struct{}
}

// NewPool returns an empty, ready-to-use buffer pool.
func NewPool() *Pool {
	return &Pool{inUse: make(map[*ResizableBuffer]struct{})}
}

// Acquire returns an empty buffer whose underlying byte storage is reused
// from a previously released one when available. The *ResizableBuffer
// wrapper itself is new on every call, so its cached reader/writer scratch
// objects (see Reader/Writer) live only for this one checkout.
func (p *Pool) Acquire() *ResizableBuffer {
	bb := p.bbPool.Get()
	buf := &ResizableBuffer{bb: bb, pool: p}
	p.mu.Lock()
	p.inUse[buf] = struct{}{}
	p.mu.Unlock()
	return buf
}

// Release marks buf available for reuse. buf must not be touched by the
// caller after this returns. Releasing a buffer not currently checked out
// from this pool is a programming error.
func (p *Pool) Release(buf *ResizableBuffer) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	if _, ok := p.inUse[buf]; !ok {
		p.mu.Unlock()
		panic("buffer: double release or release of unowned buffer")
	}
	delete(p.inUse, buf)
	p.mu.Unlock()

	buf.bb.Reset()
	p.bbPool.Put(buf.bb)
	buf.bb = nil
	buf.pool = nil
}

// InUse reports how many buffers are currently checked out. Intended for
// tests and diagnostics, not the hot path.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}
