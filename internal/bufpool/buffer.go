package bufpool

import "sync/atomic"

// Buffer is one fixed-capacity region owned by a single request.
// The header fields record which pool it came from, whether it is checked
// out, and how many bytes of data hold payload.
type Buffer struct {
	pool  *Pool
	index int
	out   atomic.Bool
	n     int
	data  []byte
}

// Index identifies the buffer within its pool.
func (b *Buffer) Index() int { return b.index }

// Cap returns the buffer capacity in bytes.
func (b *Buffer) Cap() int { return len(b.data) }

// Len returns the payload length.
func (b *Buffer) Len() int { return b.n }

// Bytes returns the payload. The slice aliases the buffer and is only
// valid until the buffer is released.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

// Reset empties the payload.
func (b *Buffer) Reset() { b.n = 0 }

// SetPayload replaces the payload with a copy of p.
func (b *Buffer) SetPayload(p []byte) error {
	if len(p) > len(b.data) {
		return ErrPayloadTooLarge
	}
	b.n = copy(b.data, p)
	return nil
}

// Write appends p to the payload. It writes nothing and returns
// ErrPayloadTooLarge if p does not fit, so an encoder can never leave a
// truncated document behind.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) > len(b.data)-b.n {
		return 0, ErrPayloadTooLarge
	}
	n := copy(b.data[b.n:], p)
	b.n += n
	return n, nil
}
