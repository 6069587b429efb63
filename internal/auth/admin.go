package auth

import (
	"crypto/subtle"
	"time"
)

// AdminUser is the only login name accepted.
const AdminUser = "admin"

// DefaultTokenTTL applies when no TTL is configured.
const DefaultTokenTTL = 15 * time.Minute

// Admin checks the administrator password and issues tokens.
type Admin struct {
	hash   string
	secret string
	ttl    time.Duration
	now    func() time.Time
}

// NewAdmin returns an Admin for the given PHC hash and signing secret.
func NewAdmin(passwordHash, secret string, ttl time.Duration) *Admin {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Admin{hash: passwordHash, secret: secret, ttl: ttl, now: time.Now}
}

// TTL returns the lifetime of issued tokens.
func (a *Admin) TTL() time.Duration { return a.ttl }

// Login verifies username and password and returns a signed token with
// its expiry. Any mismatch, including a malformed stored hash, yields
// ErrBadLogin.
func (a *Admin) Login(username, password string) (string, time.Time, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(AdminUser)) == 1
	passOK, err := VerifyPassword(password, a.hash)
	if err != nil || !userOK || !passOK {
		return "", time.Time{}, ErrBadLogin
	}

	now := a.now()
	token, err := IssueToken(AdminUser, a.secret, a.ttl, now)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, now.Add(a.ttl), nil
}

// Verify parses a bearer token issued by Login.
func (a *Admin) Verify(token string) (*Claims, error) {
	return ParseToken(token, a.secret)
}
