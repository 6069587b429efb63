package dispatch

import (
	"errors"
	"fmt"
)

// MaxModules is the size of the module table. Valid ids are 0..MaxModules-1.
const MaxModules = 10

var (
	// ErrDuplicateID is returned when a module id is already registered.
	ErrDuplicateID = errors.New("dispatch: module id already registered")

	// ErrTableFull is returned when every slot of the table is taken.
	ErrTableFull = errors.New("dispatch: module table full")

	// ErrIDOutOfRange is returned for ids at or above MaxModules.
	ErrIDOutOfRange = errors.New("dispatch: module id out of range")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("dispatch: nil handler")
)

// Handler executes the commands of one module.
//
// HandleCommand returns StatusOK with req.Out set (or nil for a bare
// acknowledgement), an error status, or the result of async.Defer when
// the command must finish on the request runner.
type Handler interface {
	HandleCommand(cmd uint16, req *Request, async *Async) Status
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(cmd uint16, req *Request, async *Async) Status

// HandleCommand calls f.
func (f HandlerFunc) HandleCommand(cmd uint16, req *Request, async *Async) Status {
	return f(cmd, req, async)
}

// Registry maps module ids to handlers.
//
// Registration happens once at startup from a single goroutine, before
// the router accepts traffic. After that the table is only read, so
// Dispatch needs no locking.
type Registry struct {
	modules [MaxModules]Handler
	count   int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs h under id. An existing registration is left intact
// when this fails.
func (r *Registry) Register(id uint8, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	if r.count >= MaxModules {
		return ErrTableFull
	}
	if int(id) >= MaxModules {
		return fmt.Errorf("%w: %d >= %d", ErrIDOutOfRange, id, MaxModules)
	}
	if r.modules[id] != nil {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	r.modules[id] = h
	r.count++
	return nil
}

// Dispatch forwards cmd to module id and returns the handler's status
// unchanged. Unknown ids yield StatusBadRequest without side effects.
func (r *Registry) Dispatch(id int, cmd uint16, req *Request, async *Async) Status {
	if id < 0 || id >= MaxModules || r.modules[id] == nil {
		return StatusBadRequest
	}
	return r.modules[id].HandleCommand(cmd, req, async)
}

// Modules returns the registered ids in ascending order.
func (r *Registry) Modules() []uint8 {
	ids := make([]uint8, 0, r.count)
	for id, h := range r.modules {
		if h != nil {
			ids = append(ids, uint8(id))
		}
	}
	return ids
}
