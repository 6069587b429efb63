// Package auth guards the adapter's command endpoints.
//
// There is a single administrative identity. Its password is stored as an
// Argon2id PHC string in configuration; a successful login yields a
// short-lived HS256 JWT that the HTTP and WebSocket transports check on
// every request:
//
//	a := auth.NewAdmin(cfg.Security.AdminPasswordHash, cfg.Security.JWT.Secret, ttl)
//	token, exp, err := a.Login("admin", password)
//	...
//	claims, err := a.Verify(token)
package auth
