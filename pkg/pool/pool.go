// Package pool provides typed object pooling for the loading engine.
// Bulk encoding allocates one buffer per load call; pooling keeps
// repeated loads from churning the garbage collector.
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Pool represents a generic object pool with type safety.
// It wraps sync.Pool with statistics tracking and automatic reset.
// The pool is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
	}
}

// New creates a new typed pool with custom allocation and reset
// functions. The reset function, when non-nil, is called before an
// object is returned to the pool.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, creating one when empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool for reuse.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns the total objects allocated and currently checked out.
func (p *Pool[T]) Stats() (allocated, inUse int64) {
	return atomic.LoadInt64(&p.stats.allocated), atomic.LoadInt64(&p.stats.inUse)
}

// BufferPool provides pooling for bulk-encode buffers. Buffers start at
// 64KB; a full load batch typically encodes into a single buffer.
var BufferPool = New(
	func() *bytes.Buffer {
		return bytes.NewBuffer(make([]byte, 0, 64*1024))
	},
	func(b *bytes.Buffer) {
		b.Reset()
	},
)

// GetBuffer retrieves a reset buffer from the global buffer pool.
func GetBuffer() *bytes.Buffer {
	return BufferPool.Get()
}

// PutBuffer returns a buffer to the global buffer pool.
func PutBuffer(b *bytes.Buffer) {
	if b != nil {
		BufferPool.Put(b)
	}
}

// StringSlicePool provides pooling for scratch string slices used when
// scanning key tuples out of the warehouse.
var StringSlicePool = New(
	func() []string {
		return make([]string, 0, 32)
	},
	nil,
)
