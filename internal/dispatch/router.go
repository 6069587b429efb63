package dispatch

import "math"

// Router validates command envelopes and forwards them to a Registry.
// It holds no business logic.
type Router struct {
	registry *Registry
}

// NewRouter returns a Router dispatching to reg.
func NewRouter(reg *Registry) *Router {
	return &Router{registry: reg}
}

// Registry returns the module table the router dispatches to.
func (rt *Router) Registry() *Registry {
	return rt.registry
}

// Route checks that "module" and "cmd" are present, integral and in range,
// records them on req, and dispatches. Invalid envelopes return
// StatusBadRequest without invoking any module.
func (rt *Router) Route(req *Request, async *Async) Status {
	if req == nil || async == nil {
		return StatusBadRequest
	}

	module, ok := req.Int("module")
	if !ok || module < 0 || module > math.MaxUint8 {
		return StatusBadRequest
	}
	cmd, ok := req.Int("cmd")
	if !ok || cmd < 0 || cmd > math.MaxUint16 {
		return StatusBadRequest
	}

	req.Module = uint8(module)
	req.Cmd = uint16(cmd)
	return rt.registry.Dispatch(module, req.Cmd, req, async)
}
