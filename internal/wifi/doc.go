// Package wifi manages the device's WiFi connectivity.
//
// A Manager owns the radio: the station (STA) link to an upstream network,
// the soft access point (AP) used for provisioning, and the scanner. It
// enforces three rules:
//
//   - Single flight. At most one of explicit connect, background reconnect,
//     scan, mode change, delayed AP stop and delayed AP start drives the
//     radio at a time. Explicit connect, scan and mode change preempt the
//     background reconnect loop by cancelling it.
//   - AP fallback. Under PolicyAuto the AP is stopped a grace period after
//     the station connects and started again a grace period after it
//     disconnects (immediately once failures pass a threshold).
//   - Persistence. The permanent policy, AP credential, AP delays, static
//     addressing and the last credential that connected are stored in the
//     "wt_wifi" key-value namespace. Transient directives are never stored.
//
// Usage:
//
//	mgr := wifi.New(cfg, drv, wifi.NewStorage(store), pool)
//	mgr.SetLogger(log.Component("wifi"))
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
//
//	if err := mgr.Connect(ctx, wifi.Credential{SSID: "lab", Password: "secret99"}); err != nil {
//	    // ErrConnectFailed / ErrConnectTimeout / ErrBusy
//	}
package wifi
