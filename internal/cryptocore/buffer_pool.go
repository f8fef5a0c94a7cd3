package cryptocore

import (
	"sync"
	"sync/atomic"
)

// BufferPool pools chunk-sized byte buffers and GCM nonce buffers, so
// chunked work over a large archive need not allocate one buffer per
// chunk. Adapted from the teacher's chunked-encryption buffer pool: same
// size-classed sync.Pool design, narrowed to two classes (a
// configurable chunk-size class and the fixed GCM nonce size).
type BufferPool struct {
	chunkSize int
	chunks    *sync.Pool
	nonces    *sync.Pool

	hits, misses int64
}

// NewBufferPool creates a pool of exactly chunkSize-byte chunk buffers
// and IVSize-byte nonce buffers; no extra headroom is allocated.
func NewBufferPool(chunkSize int) *BufferPool {
	p := &BufferPool{chunkSize: chunkSize}
	p.chunks = &sync.Pool{
		New: func() interface{} {
			atomic.AddInt64(&p.misses, 1)
			return make([]byte, chunkSize)
		},
	}
	p.nonces = &sync.Pool{
		New: func() interface{} {
			atomic.AddInt64(&p.misses, 1)
			return make([]byte, IVSize)
		},
	}
	return p
}

// GetChunk returns a zeroed chunkSize buffer.
func (p *BufferPool) GetChunk() []byte {
	buf := p.chunks.Get().([]byte)
	atomic.AddInt64(&p.hits, 1)
	for i := range buf {
		buf[i] = 0
	}
	return buf[:p.chunkSize]
}

// PutChunk returns a buffer to the pool. Buffers of the wrong size are
// dropped rather than pooled.
func (p *BufferPool) PutChunk(buf []byte) {
	if cap(buf) != p.chunkSize {
		return
	}
	p.chunks.Put(buf[:cap(buf)])
}

// GetNonce returns a zeroed 12-byte buffer for an IV.
func (p *BufferPool) GetNonce() []byte {
	buf := p.nonces.Get().([]byte)
	atomic.AddInt64(&p.hits, 1)
	for i := range buf {
		buf[i] = 0
	}
	return buf[:IVSize]
}

// PutNonce returns an IV buffer to the pool.
func (p *BufferPool) PutNonce(buf []byte) {
	if cap(buf) != IVSize {
		return
	}
	p.nonces.Put(buf[:cap(buf)])
}

// Stats returns (hits, misses) since creation, for the buffer-pool
// metrics in internal/metrics.
func (p *BufferPool) Stats() (hits, misses int64) {
	// p.hits counts every Get; the Gets that allocated are the misses.
	gets := atomic.LoadInt64(&p.hits)
	misses = atomic.LoadInt64(&p.misses)
	return gets - misses, misses
}
