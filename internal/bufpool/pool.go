// Package bufpool provides the fixed set of request buffers shared by all
// transports.
//
// A Pool is sized once at startup and never grows. Every inbound command
// holds exactly one Buffer from arrival until its reply has been sent;
// when the pool is empty new requests are turned away as busy instead of
// allocating. Returning a buffer that is not checked out is a logic error
// and panics.
package bufpool

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPayloadTooLarge is returned when data does not fit in one buffer.
	ErrPayloadTooLarge = errors.New("bufpool: payload exceeds buffer capacity")

	// ErrInvalidSize is returned by New for a zero or negative count or size.
	ErrInvalidSize = errors.New("bufpool: count and size must be positive")
)

// Pool is a bounded free list of equally sized buffers.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Pool struct {
	free  chan *Buffer
	count int
	size  int
}

// New allocates count buffers of size bytes.
func New(count, size int) (*Pool, error) {
	if count <= 0 || size <= 0 {
		return nil, ErrInvalidSize
	}

	p := &Pool{
		free:  make(chan *Buffer, count),
		count: count,
		size:  size,
	}
	for i := range count {
		p.free <- &Buffer{pool: p, index: i, data: make([]byte, size)}
	}
	return p, nil
}

// Acquire waits up to timeout for a free buffer. It returns nil when none
// became free in time. A timeout of zero or less only takes a buffer that
// is free right now.
func (p *Pool) Acquire(timeout time.Duration) *Buffer {
	select {
	case b := <-p.free:
		return p.checkout(b)
	default:
	}
	if timeout <= 0 {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b := <-p.free:
		return p.checkout(b)
	case <-timer.C:
		return nil
	}
}

// AcquireContext waits until a buffer is free or ctx is done.
func (p *Pool) AcquireContext(ctx context.Context) (*Buffer, error) {
	select {
	case b := <-p.free:
		return p.checkout(b), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) checkout(b *Buffer) *Buffer {
	b.out.Store(true)
	b.n = 0
	return b
}

// Release returns b to the pool. It panics if b is nil, belongs to another
// pool, or is not currently checked out.
func (p *Pool) Release(b *Buffer) {
	if b == nil {
		panic("bufpool: release of nil buffer")
	}
	if b.pool != p {
		panic(fmt.Sprintf("bufpool: buffer %d released to a foreign pool", b.index))
	}
	if !b.out.CompareAndSwap(true, false) {
		panic(fmt.Sprintf("bufpool: buffer %d released twice", b.index))
	}
	b.n = 0
	p.free <- b
}

// Capacity returns the size in bytes of every buffer.
func (p *Pool) Capacity() int { return p.size }

// Size returns the number of buffers the pool was created with.
func (p *Pool) Size() int { return p.count }

// Free returns the number of buffers available right now.
func (p *Pool) Free() int { return len(p.free) }

// InUse returns the number of buffers currently checked out.
func (p *Pool) InUse() int { return p.count - len(p.free) }
