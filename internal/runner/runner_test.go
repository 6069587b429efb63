package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/wtap-core/internal/dispatch"
)

type deliveryLog struct {
	mu       sync.Mutex
	statuses map[string]dispatch.Status
	done     chan string
}

func newDeliveryLog() *deliveryLog {
	return &deliveryLog{statuses: make(map[string]dispatch.Status), done: make(chan string, 64)}
}

func (l *deliveryLog) deliver(name string) func(dispatch.Status) {
	return func(s dispatch.Status) {
		l.mu.Lock()
		if _, dup := l.statuses[name]; dup {
			l.mu.Unlock()
			panic("delivered twice: " + name)
		}
		l.statuses[name] = s
		l.mu.Unlock()
		l.done <- name
	}
}

func (l *deliveryLog) status(name string) (dispatch.Status, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.statuses[name]
	return s, ok
}

func (l *deliveryLog) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-l.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d deliveries arrived", i, n)
		}
	}
}

func startRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	r := New(cfg)
	r.Start(context.Background())
	t.Cleanup(r.Stop)
	return r
}

func returns(s dispatch.Status) func(context.Context) dispatch.Status {
	return func(context.Context) dispatch.Status { return s }
}

func TestRunner_RunThenDeliver(t *testing.T) {
	r := startRunner(t, Config{LongRunCapacity: 2, SendOutCapacity: 4, SendOutTimeout: 20 * time.Millisecond})
	log := newDeliveryLog()

	var ran bool
	var mu sync.Mutex
	task := NewTask(func(context.Context) dispatch.Status {
		mu.Lock()
		ran = true
		mu.Unlock()
		return dispatch.StatusPropertyError
	}, func(s dispatch.Status) {
		mu.Lock()
		if !ran {
			t.Error("Deliver called before Run completed")
		}
		mu.Unlock()
		log.deliver("a")(s)
	})

	if err := r.SubmitLongRun(task, 20*time.Millisecond); err != nil {
		t.Fatalf("SubmitLongRun() error = %v", err)
	}
	log.wait(t, 1)

	if s, _ := log.status("a"); s != dispatch.StatusPropertyError {
		t.Errorf("delivered status = %v, want StatusPropertyError", s)
	}
}

func TestRunner_LongRunFullIsBusy(t *testing.T) {
	r := startRunner(t, Config{LongRunCapacity: 2, SendOutCapacity: 4, SendOutTimeout: 20 * time.Millisecond})
	log := newDeliveryLog()

	gate := make(chan struct{})
	picked := make(chan struct{})
	blocker := NewTask(func(context.Context) dispatch.Status {
		close(picked)
		<-gate
		return dispatch.StatusOK
	}, log.deliver("blocker"))

	if err := r.SubmitLongRun(blocker, 0); err != nil {
		t.Fatalf("SubmitLongRun(blocker) error = %v", err)
	}
	<-picked

	for _, name := range []string{"q1", "q2"} {
		if err := r.SubmitLongRun(NewTask(returns(dispatch.StatusOK), log.deliver(name)), 20*time.Millisecond); err != nil {
			t.Fatalf("SubmitLongRun(%s) error = %v", name, err)
		}
	}

	start := time.Now()
	err := r.SubmitLongRun(NewTask(returns(dispatch.StatusOK), log.deliver("rejected")), 20*time.Millisecond)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("SubmitLongRun() on full queue error = %v, want ErrBusy", err)
	}
	if time.Since(start) > time.Second {
		t.Error("SubmitLongRun blocked far past its timeout")
	}

	close(gate)
	log.wait(t, 3)

	if _, ok := log.status("rejected"); ok {
		t.Error("rejected task must not be delivered by the runner")
	}
	if st := r.Stats(); st.Rejected != 1 || st.Submitted != 3 {
		t.Errorf("Stats() = %+v, want Submitted=3 Rejected=1", st)
	}
}

func TestRunner_SendOutFullDeliversInline(t *testing.T) {
	r := startRunner(t, Config{LongRunCapacity: 4, SendOutCapacity: 1, SendOutTimeout: 20 * time.Millisecond})
	log := newDeliveryLog()

	gate := make(chan struct{})
	inDeliver := make(chan struct{})
	first := NewTask(returns(dispatch.StatusOK), func(s dispatch.Status) {
		close(inDeliver)
		<-gate
		log.deliver("first")(s)
	})
	if err := r.SubmitLongRun(first, 0); err != nil {
		t.Fatalf("SubmitLongRun(first) error = %v", err)
	}
	<-inDeliver

	// "second" fills the one send-out slot; "third" finds it full.
	for _, name := range []string{"second", "third"} {
		if err := r.SubmitLongRun(NewTask(returns(dispatch.StatusOK), log.deliver(name)), 50*time.Millisecond); err != nil {
			t.Fatalf("SubmitLongRun(%s) error = %v", name, err)
		}
	}

	select {
	case name := <-log.done:
		if name != "third" {
			t.Fatalf("first delivery = %s, want third (inline)", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inline fallback never delivered")
	}
	if s, _ := log.status("third"); s != dispatch.StatusBusy {
		t.Errorf("inline status = %v, want StatusBusy", s)
	}

	close(gate)
	log.wait(t, 2)

	if s, _ := log.status("second"); s != dispatch.StatusOK {
		t.Errorf("queued status = %v, want StatusOK", s)
	}
	if st := r.Stats(); st.InlineFallbacks != 1 {
		t.Errorf("InlineFallbacks = %d, want 1", st.InlineFallbacks)
	}
}

func TestRunner_PanicBecomesInternalError(t *testing.T) {
	r := startRunner(t, Config{LongRunCapacity: 2, SendOutCapacity: 4, SendOutTimeout: 20 * time.Millisecond})
	log := newDeliveryLog()

	task := NewTask(func(context.Context) dispatch.Status { panic("boom") }, log.deliver("p"))
	if err := r.SubmitLongRun(task, 0); err != nil {
		t.Fatalf("SubmitLongRun() error = %v", err)
	}
	log.wait(t, 1)

	if s, _ := log.status("p"); s != dispatch.StatusInternalError {
		t.Errorf("status = %v, want StatusInternalError", s)
	}
}

func TestRunner_StopDeliversQueuedTasks(t *testing.T) {
	r := New(Config{LongRunCapacity: 2, SendOutCapacity: 4, SendOutTimeout: 20 * time.Millisecond})
	log := newDeliveryLog()

	var ran bool
	for _, name := range []string{"a", "b"} {
		task := NewTask(func(context.Context) dispatch.Status { ran = true; return dispatch.StatusOK }, log.deliver(name))
		if err := r.SubmitLongRun(task, 0); err != nil {
			t.Fatalf("SubmitLongRun(%s) error = %v", name, err)
		}
	}

	r.Stop()
	log.wait(t, 2)

	if ran {
		t.Error("queued tasks must not run after Stop")
	}
	for _, name := range []string{"a", "b"} {
		if s, _ := log.status(name); s != dispatch.StatusInternalError {
			t.Errorf("status(%s) = %v, want StatusInternalError", name, s)
		}
	}

	if err := r.SubmitLongRun(NewTask(returns(dispatch.StatusOK), log.deliver("late")), 0); !errors.Is(err, ErrStopped) {
		t.Errorf("SubmitLongRun() after Stop error = %v, want ErrStopped", err)
	}
}

func TestRunner_InvalidTask(t *testing.T) {
	r := New(Config{})
	if err := r.SubmitLongRun(&Task{}, 0); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("SubmitLongRun(empty) error = %v, want ErrInvalidTask", err)
	}
	if err := r.SubmitLongRun(nil, 0); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("SubmitLongRun(nil) error = %v, want ErrInvalidTask", err)
	}
}

func TestRunner_SingleLongRunAtATime(t *testing.T) {
	r := startRunner(t, Config{LongRunCapacity: 2, SendOutCapacity: 4, SendOutTimeout: 20 * time.Millisecond})
	log := newDeliveryLog()

	var mu sync.Mutex
	active, peak := 0, 0
	work := func(context.Context) dispatch.Status {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return dispatch.StatusOK
	}

	names := []string{"t1", "t2", "t3", "t4", "t5", "t6"}
	for _, name := range names {
		if err := r.SubmitLongRun(NewTask(work, log.deliver(name)), time.Second); err != nil {
			t.Fatalf("SubmitLongRun(%s) error = %v", name, err)
		}
	}
	log.wait(t, len(names))

	if peak != 1 {
		t.Errorf("peak concurrent long-run tasks = %d, want 1", peak)
	}
}
