package dispatch

import (
	"encoding/json"
	"io"
)

// ErrReply is a module-level soft failure. It is encoded as {"err": msg}
// and travels with StatusOK, unlike transport error frames.
type ErrReply struct {
	Err string `json:"err"`
}

// SoftError sets req's reply to an ErrReply and returns StatusOK.
func SoftError(req *Request, msg string) Status {
	req.Out = ErrReply{Err: msg}
	return StatusOK
}

// EncodeReply writes the JSON reply for a completed request to w.
//
// Object replies have "module" and "cmd" added so clients can correlate
// responses; an ErrReply is written as-is; a nil Out becomes a bare
// {"module":..,"cmd":..} acknowledgement.
func EncodeReply(w io.Writer, req *Request) error {
	body, err := replyBytes(req)
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func replyBytes(req *Request) ([]byte, error) {
	switch out := req.Out.(type) {
	case ErrReply, *ErrReply:
		return json.Marshal(out)
	case nil:
		return json.Marshal(envelopeHeader{Module: req.Module, Cmd: req.Cmd})
	}

	body, err := json.Marshal(req.Out)
	if err != nil {
		return nil, err
	}

	// Only objects can carry the echo; arrays and scalars pass through.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return body, nil //nolint:nilerr // non-object replies are sent verbatim
	}
	fields["module"], _ = json.Marshal(req.Module) //nolint:errcheck // integer
	fields["cmd"], _ = json.Marshal(req.Cmd)       //nolint:errcheck // integer
	return json.Marshal(fields)
}

type envelopeHeader struct {
	Module uint8  `json:"module"`
	Cmd    uint16 `json:"cmd"`
}
