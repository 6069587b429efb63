// Package panel serves the adapter's built-in configuration page.
//
// The page is embedded into the binary with go:embed so a freshly flashed
// adapter can be configured over its access point with nothing but a
// browser. It talks to the daemon over the same /ws command socket as
// any other client. Unknown paths fall back to index.html, which makes
// the page answer captive-portal probes too.
package panel
