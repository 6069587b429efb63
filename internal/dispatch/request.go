package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
)

// ErrMalformed is returned by ParseRequest for input that is not a JSON object.
var ErrMalformed = errors.New("dispatch: payload is not a JSON object")

// Request is one decoded command envelope.
//
// Module and Cmd are filled in by the Router after validation. Handlers
// read fields with the typed accessors and put their reply in Out.
type Request struct {
	Module uint8
	Cmd    uint16

	// Out is the reply body. Nil means a bare acknowledgement.
	Out any

	raw    []byte
	fields map[string]json.RawMessage
}

// ParseRequest decodes data into a Request. The caller keeps ownership of
// data; the Request holds its own copy.
func ParseRequest(data []byte) (*Request, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrMalformed
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return &Request{
		raw:    bytes.Clone(data),
		fields: fields,
	}, nil
}

// Has reports whether the envelope carries name.
func (r *Request) Has(name string) bool {
	_, ok := r.fields[name]
	return ok
}

// value returns the raw field name. A JSON null counts as missing;
// json.Unmarshal accepts null for any target and would leave it zeroed.
func (r *Request) value(name string) (json.RawMessage, bool) {
	raw, found := r.fields[name]
	if !found {
		return nil, false
	}
	if v := bytes.TrimSpace(raw); len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil, false
	}
	return raw, true
}

// String returns the string field name. ok is false when the field is
// missing, null or not a JSON string.
func (r *Request) String(name string) (s string, ok bool) {
	raw, found := r.value(name)
	if !found {
		return "", false
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Int returns the integral numeric field name.
func (r *Request) Int(name string) (int, bool) {
	f, ok := r.number(name)
	if !ok || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// Bool returns the boolean field name.
func (r *Request) Bool(name string) (b bool, ok bool) {
	raw, found := r.value(name)
	if !found {
		return false, false
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, false
	}
	return b, true
}

func (r *Request) number(name string) (float64, bool) {
	raw, found := r.value(name)
	if !found {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

// Bind decodes the whole envelope into v.
func (r *Request) Bind(v any) error {
	return json.Unmarshal(r.raw, v)
}

// Async carries work a handler defers to the request runner.
type Async struct {
	run func(ctx context.Context) Status
}

// Defer records fn as the deferred part of the command and returns
// StatusAsync, so handlers can write `return async.Defer(fn)`.
func (a *Async) Defer(fn func(ctx context.Context) Status) Status {
	a.run = fn
	return StatusAsync
}

// Pending reports whether work has been deferred.
func (a *Async) Pending() bool {
	return a.run != nil
}

// Run executes the deferred work. A nil fn yields StatusInternalError.
func (a *Async) Run(ctx context.Context) Status {
	if a.run == nil {
		return StatusInternalError
	}
	return a.run(ctx)
}
