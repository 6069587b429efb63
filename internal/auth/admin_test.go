package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestAdmin(t *testing.T) *Admin {
	t.Helper()
	hash, err := HashPassword("bench-admin-pass")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	return NewAdmin(hash, testSecret, 0)
}

func TestAdmin_Login(t *testing.T) {
	a := newTestAdmin(t)
	before := time.Now()

	token, exp, err := a.Login("admin", "bench-admin-pass")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if exp.Before(before.Add(DefaultTokenTTL - time.Second)) {
		t.Errorf("expiry %v too early for default TTL", exp)
	}

	claims, err := a.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != AdminUser {
		t.Errorf("Subject = %q, want %q", claims.Subject, AdminUser)
	}
}

func TestAdmin_LoginRejects(t *testing.T) {
	a := newTestAdmin(t)

	tests := []struct {
		name, user, pass string
	}{
		{"wrong password", "admin", "nope"},
		{"wrong user", "root", "bench-admin-pass"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := a.Login(tt.user, tt.pass); !errors.Is(err, ErrBadLogin) {
				t.Errorf("Login() error = %v, want ErrBadLogin", err)
			}
		})
	}
}

func TestAdmin_MalformedHash(t *testing.T) {
	a := NewAdmin("plaintext", testSecret, time.Minute)
	if _, _, err := a.Login("admin", "plaintext"); !errors.Is(err, ErrBadLogin) {
		t.Errorf("Login() error = %v, want ErrBadLogin", err)
	}
}
