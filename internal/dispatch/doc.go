// Package dispatch routes JSON command envelopes to command modules.
//
// An envelope is a JSON object carrying a numeric module id, a numeric
// command id and command-specific fields:
//
//	{"module": 1, "cmd": 2, "ssid": "lab", "password": "longpassword"}
//
// The Router validates the envelope and hands it to the Registry, which
// maps module ids to Handlers. A handler either completes synchronously,
// filling Request.Out and returning StatusOK (or an error status), or
// defers slow work with Async.Defer and returns StatusAsync. Deferred work
// is executed later by the request runner.
//
// Modules are registered explicitly by the composition root before the
// first request is routed:
//
//	reg := dispatch.NewRegistry()
//	if err := reg.Register(wifiapi.ModuleID, wifiModule); err != nil {
//	    return err
//	}
//	router := dispatch.NewRouter(reg)
package dispatch
