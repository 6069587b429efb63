package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type recordingHandler struct {
	calls  int
	status Status
}

func (h *recordingHandler) HandleCommand(cmd uint16, req *Request, async *Async) Status {
	h.calls++
	return h.status
}

func mustParse(t *testing.T, s string) *Request {
	t.Helper()
	req, err := ParseRequest([]byte(s))
	if err != nil {
		t.Fatalf("ParseRequest(%s) error = %v", s, err)
	}
	return req
}

func TestRegistry_DuplicateKeepsFirst(t *testing.T) {
	reg := NewRegistry()
	first := &recordingHandler{status: StatusOK}
	second := &recordingHandler{status: StatusBusy}

	if err := reg.Register(1, first); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(1, second); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("second Register() error = %v, want ErrDuplicateID", err)
	}

	if got := reg.Dispatch(1, 1, &Request{}, &Async{}); got != StatusOK {
		t.Errorf("Dispatch() = %v, want StatusOK from first handler", got)
	}
	if first.calls != 1 || second.calls != 0 {
		t.Errorf("calls first=%d second=%d, want 1/0", first.calls, second.calls)
	}
}

func TestRegistry_Limits(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(MaxModules, &recordingHandler{}); !errors.Is(err, ErrIDOutOfRange) {
		t.Errorf("Register(MaxModules) error = %v, want ErrIDOutOfRange", err)
	}
	if err := reg.Register(0, nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("Register(nil) error = %v, want ErrNilHandler", err)
	}

	for id := range uint8(MaxModules) {
		if err := reg.Register(id, &recordingHandler{}); err != nil {
			t.Fatalf("Register(%d) error = %v", id, err)
		}
	}
	if err := reg.Register(3, &recordingHandler{}); !errors.Is(err, ErrTableFull) {
		t.Errorf("Register() on full table error = %v, want ErrTableFull", err)
	}
	if got := len(reg.Modules()); got != MaxModules {
		t.Errorf("len(Modules()) = %d, want %d", got, MaxModules)
	}
}

func TestRegistry_UnknownModuleHasNoSideEffects(t *testing.T) {
	reg := NewRegistry()
	h := &recordingHandler{status: StatusOK}
	_ = reg.Register(0, h)

	for _, id := range []int{-1, 1, 9, MaxModules, 255} {
		if got := reg.Dispatch(id, 1, &Request{}, &Async{}); got != StatusBadRequest {
			t.Errorf("Dispatch(%d) = %v, want StatusBadRequest", id, got)
		}
	}
	if h.calls != 0 {
		t.Errorf("registered handler called %d times, want 0", h.calls)
	}
}

func TestRegistry_PassesStatusThrough(t *testing.T) {
	for _, want := range []Status{StatusOK, StatusAsync, StatusPropertyError, StatusBusy, StatusUnsupportedCommand} {
		reg := NewRegistry()
		_ = reg.Register(2, &recordingHandler{status: want})
		if got := reg.Dispatch(2, 7, &Request{}, &Async{}); got != want {
			t.Errorf("Dispatch() = %v, want %v", got, want)
		}
	}
}

func TestRouter_Route(t *testing.T) {
	var gotCmd uint16
	var gotField string
	reg := NewRegistry()
	_ = reg.Register(1, HandlerFunc(func(cmd uint16, req *Request, async *Async) Status {
		gotCmd = cmd
		gotField, _ = req.String("ssid")
		return StatusOK
	}))
	router := NewRouter(reg)

	tests := []struct {
		name string
		body string
		want Status
	}{
		{"valid", `{"module":1,"cmd":2,"ssid":"lab"}`, StatusOK},
		{"missing module", `{"cmd":2}`, StatusBadRequest},
		{"missing cmd", `{"module":1}`, StatusBadRequest},
		{"string module", `{"module":"1","cmd":2}`, StatusBadRequest},
		{"fractional cmd", `{"module":1,"cmd":2.5}`, StatusBadRequest},
		{"negative cmd", `{"module":1,"cmd":-1}`, StatusBadRequest},
		{"module too large", `{"module":256,"cmd":1}`, StatusBadRequest},
		{"cmd too large", `{"module":1,"cmd":65536}`, StatusBadRequest},
		{"unregistered module", `{"module":4,"cmd":1}`, StatusBadRequest},
		{"null module", `{"module":null,"cmd":2}`, StatusBadRequest},
		{"null cmd", `{"module":1,"cmd": null }`, StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := router.Route(mustParse(t, tt.body), &Async{}); got != tt.want {
				t.Errorf("Route(%s) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}

	if gotCmd != 2 || gotField != "lab" {
		t.Errorf("handler saw cmd=%d ssid=%q, want 2/lab", gotCmd, gotField)
	}
}

func TestRouter_NullEnvelopeNeverReachesModuleZero(t *testing.T) {
	called := false
	reg := NewRegistry()
	_ = reg.Register(0, HandlerFunc(func(uint16, *Request, *Async) Status {
		called = true
		return StatusOK
	}))

	got := NewRouter(reg).Route(mustParse(t, `{"module":null,"cmd":null}`), &Async{})
	if got != StatusBadRequest {
		t.Errorf("Route() = %v, want StatusBadRequest", got)
	}
	if called {
		t.Error("handler for module 0 was called for a null envelope")
	}
}

func TestRouter_NilRequest(t *testing.T) {
	if got := NewRouter(NewRegistry()).Route(nil, &Async{}); got != StatusBadRequest {
		t.Errorf("Route(nil) = %v, want StatusBadRequest", got)
	}
}

func TestParseRequest_Errors(t *testing.T) {
	for _, body := range []string{"", "[1,2]", "42", `{"module":`, `"str"`} {
		if _, err := ParseRequest([]byte(body)); err == nil {
			t.Errorf("ParseRequest(%q) expected error", body)
		}
	}
}

func TestRequest_Accessors(t *testing.T) {
	req := mustParse(t, `{"module":1,"cmd":7,"mode":0,"name":"x","flag":true,"big":1e12}`)

	if v, ok := req.Int("mode"); !ok || v != 0 {
		t.Errorf("Int(mode) = %d, %v", v, ok)
	}
	if _, ok := req.Int("name"); ok {
		t.Error("Int(name) should fail for a string")
	}
	if _, ok := req.Int("big"); ok {
		t.Error("Int(big) should fail out of range")
	}
	if _, ok := req.String("mode"); ok {
		t.Error("String(mode) should fail for a number")
	}
	if b, ok := req.Bool("flag"); !ok || !b {
		t.Errorf("Bool(flag) = %v, %v", b, ok)
	}
	if req.Has("missing") {
		t.Error("Has(missing) = true")
	}

	nulls := mustParse(t, `{"module":1,"cmd":2,"password":null,"mode":null,"static_enabled":null}`)
	if s, ok := nulls.String("password"); ok {
		t.Errorf("String(null) = %q, true; want missing", s)
	}
	if v, ok := nulls.Int("mode"); ok {
		t.Errorf("Int(null) = %d, true; want missing", v)
	}
	if b, ok := nulls.Bool("static_enabled"); ok {
		t.Errorf("Bool(null) = %v, true; want missing", b)
	}
	if !nulls.Has("password") {
		t.Error("Has() should still see a null field")
	}

	var env struct {
		Name string `json:"name"`
	}
	if err := req.Bind(&env); err != nil || env.Name != "x" {
		t.Errorf("Bind() = %+v, %v", env, err)
	}
}

func TestAsync(t *testing.T) {
	var a Async
	if a.Pending() {
		t.Error("zero Async should not be pending")
	}
	if got := a.Run(context.Background()); got != StatusInternalError {
		t.Errorf("Run() without Defer = %v, want StatusInternalError", got)
	}

	if got := a.Defer(func(context.Context) Status { return StatusPropertyError }); got != StatusAsync {
		t.Errorf("Defer() = %v, want StatusAsync", got)
	}
	if got := a.Run(context.Background()); got != StatusPropertyError {
		t.Errorf("Run() = %v, want StatusPropertyError", got)
	}
}

func TestEncodeReply(t *testing.T) {
	type info struct {
		SSID string `json:"ssid"`
	}
	tests := []struct {
		name string
		out  any
		want map[string]any
	}{
		{"object gets echo", info{SSID: "lab"}, map[string]any{"ssid": "lab", "module": 1.0, "cmd": 5.0}},
		{"nil is ack", nil, map[string]any{"module": 1.0, "cmd": 5.0}},
		{"soft error is bare", ErrReply{Err: "password < 8"}, map[string]any{"err": "password < 8"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &Request{Module: 1, Cmd: 5, Out: tt.out}
			var buf bytes.Buffer
			if err := EncodeReply(&buf, req); err != nil {
				t.Fatalf("EncodeReply() error = %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("reply is not JSON: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Errorf("reply = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("reply[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestStatus_Frames(t *testing.T) {
	tests := []struct {
		frame []byte
		want  string
	}{
		{StatusBadRequest.Frame(), `{"error":"Bad json request","code":2}`},
		{StatusInternalError.Frame(), `{"error":"Internal error","code":3}`},
		{StatusUnsupportedCommand.Frame(), `{"error":"Unsupported cmd","code":4}`},
		{StatusPropertyError.Frame(), `{"error":"Property error","code":5}`},
		{StatusBusy.Frame(), `{"error":"Resource busy","code":6}`},
		{ParseErrorFrame(), `{"error":"JSON parse error","code":3}`},
		{GenerateErrorFrame(), `{"error":"JSON generation error","code":3}`},
	}
	for _, tt := range tests {
		if string(tt.frame) != tt.want {
			t.Errorf("frame = %s, want %s", tt.frame, tt.want)
		}
	}
}
