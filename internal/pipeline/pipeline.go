// Package pipeline carries one inbound command from a transport to its
// reply.
//
// For every frame it takes a buffer from the pool, decodes and routes
// the envelope, and either replies at once or hands the deferred part to
// the request runner, whose delivery sends the reply. The reply callback
// is invoked exactly once per accepted frame and the buffer is released
// right after it returns.
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nerrad567/wtap-core/internal/bufpool"
	"github.com/nerrad567/wtap-core/internal/dispatch"
	"github.com/nerrad567/wtap-core/internal/runner"
)

// ErrFrameTooLarge is returned, without a reply, for frames larger than
// one pool buffer. Transports answer it in their own way.
var ErrFrameTooLarge = errors.New("pipeline: frame exceeds buffer capacity")

// ReplyFunc sends one reply. payload aliases the request buffer and is
// only valid until the function returns.
type ReplyFunc func(status dispatch.Status, payload []byte)

// Submitter queues deferred work. *runner.Runner implements it.
type Submitter interface {
	SubmitLongRun(t *runner.Task, timeout time.Duration) error
}

// Logger defines the logging interface used by the Pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the bounded waits of the pipeline.
type Config struct {
	AcquireTimeout time.Duration
	SubmitTimeout  time.Duration
}

// Stats counts pipeline outcomes.
type Stats struct {
	Requests     uint64 `json:"requests"`
	PoolBusy     uint64 `json:"pool_busy"`
	RunnerBusy   uint64 `json:"runner_busy"`
	ParseErrors  uint64 `json:"parse_errors"`
	Async        uint64 `json:"async"`
	Oversized    uint64 `json:"oversized"`
	EncodeErrors uint64 `json:"encode_errors"`
}

// Pipeline connects transports to the router and runner.
type Pipeline struct {
	pool   *bufpool.Pool
	router *dispatch.Router
	runner Submitter
	cfg    Config
	logger Logger

	requests     atomic.Uint64
	poolBusy     atomic.Uint64
	runnerBusy   atomic.Uint64
	parseErrors  atomic.Uint64
	async        atomic.Uint64
	oversized    atomic.Uint64
	encodeErrors atomic.Uint64
}

// New creates a Pipeline.
func New(pool *bufpool.Pool, router *dispatch.Router, sub Submitter, cfg Config) *Pipeline {
	return &Pipeline{
		pool:   pool,
		router: router,
		runner: sub,
		cfg:    cfg,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (p *Pipeline) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Pool returns the buffer pool requests are served from.
func (p *Pipeline) Pool() *bufpool.Pool {
	return p.pool
}

// Handle processes one inbound frame. It returns ErrFrameTooLarge for
// frames that can never fit a buffer; otherwise it returns nil and reply
// is called exactly once, possibly later from the runner.
func (p *Pipeline) Handle(ctx context.Context, data []byte, reply ReplyFunc) error {
	if len(data) > p.pool.Capacity() {
		p.oversized.Add(1)
		return ErrFrameTooLarge
	}
	p.requests.Add(1)

	buf := p.pool.Acquire(p.cfg.AcquireTimeout)
	if buf == nil {
		p.poolBusy.Add(1)
		p.logger.Warn("request buffer pool exhausted", "in_use", p.pool.InUse())
		reply(dispatch.StatusBusy, dispatch.StatusBusy.Frame())
		return nil
	}

	if err := buf.SetPayload(data); err != nil {
		p.finish(buf, dispatch.StatusInternalError, dispatch.StatusInternalError.Frame(), reply)
		return nil
	}

	req, err := dispatch.ParseRequest(buf.Bytes())
	if err != nil {
		p.parseErrors.Add(1)
		p.logger.Debug("rejecting undecodable frame", "error", err)
		p.finish(buf, dispatch.StatusBadRequest, dispatch.ParseErrorFrame(), reply)
		return nil
	}

	async := &dispatch.Async{}
	status := p.router.Route(req, async)
	p.logger.Debug("command routed", "module", req.Module, "cmd", req.Cmd, "status", int(status))

	switch status {
	case dispatch.StatusOK:
		p.complete(buf, req, status, reply)
	case dispatch.StatusAsync:
		p.submit(ctx, buf, req, async, reply)
	default:
		p.finish(buf, status, status.Frame(), reply)
	}
	return nil
}

func (p *Pipeline) submit(ctx context.Context, buf *bufpool.Buffer, req *dispatch.Request, async *dispatch.Async, reply ReplyFunc) {
	if !async.Pending() {
		p.logger.Error("module returned async without deferred work", "module", req.Module, "cmd", req.Cmd)
		p.finish(buf, dispatch.StatusInternalError, dispatch.StatusInternalError.Frame(), reply)
		return
	}
	if err := ctx.Err(); err != nil {
		p.finish(buf, dispatch.StatusInternalError, dispatch.StatusInternalError.Frame(), reply)
		return
	}

	task := runner.NewTask(async.Run, func(status dispatch.Status) {
		p.complete(buf, req, status, reply)
	})
	if err := p.runner.SubmitLongRun(task, p.cfg.SubmitTimeout); err != nil {
		p.runnerBusy.Add(1)
		p.logger.Warn("long-run queue rejected command", "module", req.Module, "cmd", req.Cmd, "error", err)
		p.finish(buf, dispatch.StatusBusy, dispatch.StatusBusy.Frame(), reply)
		return
	}
	p.async.Add(1)
}

// complete encodes the reply for a handled request into its own buffer.
func (p *Pipeline) complete(buf *bufpool.Buffer, req *dispatch.Request, status dispatch.Status, reply ReplyFunc) {
	if status != dispatch.StatusOK {
		p.finish(buf, status, status.Frame(), reply)
		return
	}

	buf.Reset()
	if err := dispatch.EncodeReply(buf, req); err != nil {
		p.encodeErrors.Add(1)
		p.logger.Error("encoding reply", "module", req.Module, "cmd", req.Cmd, "error", err)
		p.finish(buf, dispatch.StatusInternalError, dispatch.GenerateErrorFrame(), reply)
		return
	}
	p.finish(buf, dispatch.StatusOK, buf.Bytes(), reply)
}

func (p *Pipeline) finish(buf *bufpool.Buffer, status dispatch.Status, payload []byte, reply ReplyFunc) {
	defer p.pool.Release(buf)
	reply(status, payload)
}

// Stats returns a snapshot of pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Requests:     p.requests.Load(),
		PoolBusy:     p.poolBusy.Load(),
		RunnerBusy:   p.runnerBusy.Load(),
		ParseErrors:  p.parseErrors.Load(),
		Async:        p.async.Load(),
		Oversized:    p.oversized.Load(),
		EncodeErrors: p.encodeErrors.Load(),
	}
}
