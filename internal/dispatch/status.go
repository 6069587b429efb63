package dispatch

import (
	"encoding/json"
	"fmt"
)

// Status is the outcome of routing or handling one command. Its numeric
// value is the "code" field of error frames.
type Status int

const (
	StatusOK                 Status = 0
	StatusAsync              Status = 1
	StatusBadRequest         Status = 2
	StatusInternalError      Status = 3
	StatusUnsupportedCommand Status = 4
	StatusPropertyError      Status = 5
	StatusBusy               Status = 6
)

// Transport-level failures that never reach a module. They share code 3
// with StatusInternalError.
const (
	msgJSONParse    = "JSON parse error"
	msgJSONGenerate = "JSON generation error"
)

// Message returns the client-facing text for s.
func (s Status) Message() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusAsync:
		return "Pending"
	case StatusBadRequest:
		return "Bad json request"
	case StatusInternalError:
		return "Internal error"
	case StatusUnsupportedCommand:
		return "Unsupported cmd"
	case StatusPropertyError:
		return "Property error"
	case StatusBusy:
		return "Resource busy"
	default:
		return "Internal error"
	}
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return fmt.Sprintf("%s(%d)", s.Message(), int(s))
}

// Failed reports whether s is a terminal error.
func (s Status) Failed() bool {
	return s != StatusOK && s != StatusAsync
}

// ErrorFrame is the body sent for a failed request.
type ErrorFrame struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Frame returns the encoded error frame for s.
func (s Status) Frame() []byte {
	code := s
	if !s.Failed() || s > StatusBusy {
		code = StatusInternalError
	}
	return encodeFrame(s.Message(), code)
}

// ParseErrorFrame is sent when an inbound payload is not valid JSON.
func ParseErrorFrame() []byte {
	return encodeFrame(msgJSONParse, StatusInternalError)
}

// GenerateErrorFrame is sent when a reply cannot be encoded into the
// request buffer.
func GenerateErrorFrame() []byte {
	return encodeFrame(msgJSONGenerate, StatusInternalError)
}

func encodeFrame(msg string, code Status) []byte {
	b, _ := json.Marshal(ErrorFrame{Error: msg, Code: int(code)}) //nolint:errcheck // fixed shape
	return b
}
