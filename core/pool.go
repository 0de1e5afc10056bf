package core

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// bufferPool is a mutex-protected free list of byte buffers. Unlike sync.Pool
// its contents survive garbage collection, which suits the steady stream of
// equally sized chunk buffers produced while recording.
type bufferPool struct {
	mu       sync.Mutex
	items    []*bytes.Buffer
	capacity int
	maxItems int

	// Metrics
	hits    atomic.Uint64
	misses  atomic.Uint64
	created atomic.Uint64
}

// DefaultChunkBufferSize is the initial capacity of pooled chunk buffers.
const DefaultChunkBufferSize = 64 * 1024

// maxPooledBuffers bounds the free list; extra buffers are left to the GC.
const maxPooledBuffers = 256

// maxPooledBufferCap keeps oversized buffers out of the pool.
const maxPooledBufferCap = 16 * 1024 * 1024

var BufferPool = NewBufferPool(DefaultChunkBufferSize)

// NewBufferPool creates a new buffer pool.
// initialCapacity is the pre-allocated capacity for each new buffer.
func NewBufferPool(initialCapacity int) *bufferPool {
	if initialCapacity < 0 {
		initialCapacity = 0
	}
	return &bufferPool{
		capacity: initialCapacity,
		maxItems: maxPooledBuffers,
		items:    make([]*bytes.Buffer, 0, 16),
	}
}

// Get retrieves a buffer from the pool. If the pool is empty, it creates a new one.
func (bp *bufferPool) Get() *bytes.Buffer {
	bp.mu.Lock()
	if len(bp.items) == 0 {
		bp.mu.Unlock()
		bp.misses.Add(1)
		bp.created.Add(1)
		return bytes.NewBuffer(make([]byte, 0, bp.capacity))
	}
	item := bp.items[len(bp.items)-1]
	bp.items = bp.items[:len(bp.items)-1]
	bp.mu.Unlock()
	bp.hits.Add(1)
	return item
}

// Put resets a buffer and returns it to the pool.
func (bp *bufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBufferCap {
		return
	}
	buf.Reset()
	bp.mu.Lock()
	if len(bp.items) < bp.maxItems {
		bp.items = append(bp.items, buf)
	}
	bp.mu.Unlock()
}

// Len returns the number of idle buffers.
func (bp *bufferPool) Len() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.items)
}

// GetMetrics returns the current metrics for the pool.
func (bp *bufferPool) GetMetrics() (hits, misses, created uint64) {
	return bp.hits.Load(), bp.misses.Load(), bp.created.Load()
}
