package bufpool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestPool(t *testing.T, count, size int) *Pool {
	t.Helper()
	p, err := New(count, size)
	if err != nil {
		t.Fatalf("New(%d, %d) error = %v", count, size, err)
	}
	return p
}

func TestNew_InvalidSize(t *testing.T) {
	for _, tc := range [][2]int{{0, 10}, {4, 0}, {-1, 10}} {
		if _, err := New(tc[0], tc[1]); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("New(%d, %d) error = %v, want ErrInvalidSize", tc[0], tc[1], err)
		}
	}
}

func TestPool_ExhaustionTimesOut(t *testing.T) {
	const n = 8
	p := newTestPool(t, n, 64)

	held := make([]*Buffer, 0, n)
	for i := range n {
		b := p.Acquire(10 * time.Millisecond)
		if b == nil {
			t.Fatalf("Acquire #%d returned nil with free buffers", i)
		}
		held = append(held, b)
	}

	start := time.Now()
	if b := p.Acquire(20 * time.Millisecond); b != nil {
		t.Fatal("Acquire on exhausted pool returned a buffer")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Acquire returned after %v, want it to wait the full timeout", elapsed)
	}

	if p.InUse() != n || p.Free() != 0 {
		t.Errorf("InUse/Free = %d/%d, want %d/0", p.InUse(), p.Free(), n)
	}

	for _, b := range held {
		p.Release(b)
	}
	if p.Free() != n {
		t.Errorf("Free() = %d after releasing all, want %d", p.Free(), n)
	}
}

func TestPool_ReleaseWakesPendingAcquire(t *testing.T) {
	p := newTestPool(t, 1, 16)
	b := p.Acquire(0)
	if b == nil {
		t.Fatal("Acquire(0) on fresh pool returned nil")
	}

	got := make(chan *Buffer, 1)
	go func() { got <- p.Acquire(time.Second) }()

	time.Sleep(10 * time.Millisecond)
	p.Release(b)

	select {
	case b2 := <-got:
		if b2 == nil {
			t.Fatal("pending Acquire returned nil after Release")
		}
		p.Release(b2)
	case <-time.After(2 * time.Second):
		t.Fatal("pending Acquire never returned")
	}
}

func TestPool_ZeroTimeoutDoesNotWait(t *testing.T) {
	p := newTestPool(t, 1, 16)
	b := p.Acquire(0)
	if p.Acquire(0) != nil {
		t.Error("Acquire(0) on empty pool should return nil immediately")
	}
	p.Release(b)
}

func TestPool_AcquireContext(t *testing.T) {
	p := newTestPool(t, 1, 16)
	b, err := p.AcquireContext(context.Background())
	if err != nil {
		t.Fatalf("AcquireContext() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.AcquireContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("AcquireContext() on empty pool error = %v, want DeadlineExceeded", err)
	}
	p.Release(b)
}

func TestPool_DoubleReleasePanics(t *testing.T) {
	p := newTestPool(t, 2, 16)
	b := p.Acquire(0)
	p.Release(b)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("second Release did not panic")
		}
		if !strings.Contains(r.(string), "released twice") {
			t.Errorf("panic = %v, want 'released twice'", r)
		}
		if p.Free() != 2 {
			t.Errorf("Free() = %d after rejected release, want 2", p.Free())
		}
	}()
	p.Release(b)
}

func TestPool_ForeignReleasePanics(t *testing.T) {
	a := newTestPool(t, 1, 16)
	other := newTestPool(t, 1, 16)
	b := other.Acquire(0)

	defer func() {
		if recover() == nil {
			t.Fatal("Release of foreign buffer did not panic")
		}
	}()
	a.Release(b)
}

func TestPool_ConcurrentOwnership(t *testing.T) {
	p := newTestPool(t, 4, 16)
	owners := make([]int32, p.Size())
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := range 16 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for range 50 {
				b := p.Acquire(time.Second)
				if b == nil {
					t.Error("Acquire timed out under contention")
					return
				}
				mu.Lock()
				if owners[b.Index()] != 0 {
					t.Errorf("buffer %d owned twice", b.Index())
				}
				owners[b.Index()] = int32(w + 1)
				mu.Unlock()

				mu.Lock()
				owners[b.Index()] = 0
				mu.Unlock()
				p.Release(b)
			}
		}(w)
	}
	wg.Wait()

	if p.Free() != p.Size() {
		t.Errorf("Free() = %d after workload, want %d", p.Free(), p.Size())
	}
}

func TestBuffer_Payload(t *testing.T) {
	p := newTestPool(t, 1, 8)
	b := p.Acquire(0)
	defer p.Release(b)

	if b.Cap() != 8 || p.Capacity() != 8 {
		t.Fatalf("Cap() = %d, Capacity() = %d, want 8", b.Cap(), p.Capacity())
	}

	if err := b.SetPayload([]byte("123456789")); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("SetPayload(9 bytes) error = %v, want ErrPayloadTooLarge", err)
	}
	if err := b.SetPayload([]byte("abcd")); err != nil {
		t.Fatalf("SetPayload() error = %v", err)
	}
	if _, err := b.Write([]byte("efgh")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := string(b.Bytes()); got != "abcdefgh" {
		t.Errorf("Bytes() = %q, want %q", got, "abcdefgh")
	}
	if n, err := b.Write([]byte("x")); n != 0 || !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("Write() on full buffer = (%d, %v), want (0, ErrPayloadTooLarge)", n, err)
	}

	b.Reset()
	if b.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", b.Len())
	}
}

func TestPool_AcquireClearsPayload(t *testing.T) {
	p := newTestPool(t, 1, 8)
	b := p.Acquire(0)
	_ = b.SetPayload([]byte("stale"))
	p.Release(b)

	b = p.Acquire(0)
	defer p.Release(b)
	if b.Len() != 0 {
		t.Errorf("Len() of reacquired buffer = %d, want 0", b.Len())
	}
}
