package wifi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/wtap-core/internal/kvstore"
)

// Namespace is the key-value namespace holding WiFi settings.
const Namespace = "wt_wifi"

const (
	keyAPCred      = "ap_cred"
	keySTALastCred = "sta_last_cred"
	keyMode        = "apsta_mode"
	keyAPOnDelay   = "ap_on_delay"
	keyAPOffDelay  = "ap_off_delay"
	keyStatic      = "sta_static"
)

// Storage persists WiFi settings. Each Save call commits on its own; a
// failed commit leaves the previous values in place.
type Storage struct {
	mu sync.Mutex
	ns *kvstore.Namespace
}

// NewStorage opens the WiFi namespace of store.
func NewStorage(store kvstore.Store) *Storage {
	return &Storage{ns: kvstore.Open(store, Namespace)}
}

// save stages the given JSON values and commits them together.
func (s *Storage) save(ctx context.Context, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, v := range values {
		if err := s.ns.SetJSON(key, v); err != nil {
			s.ns.Discard()
			return fmt.Errorf("%w: encoding %s: %w", ErrPersist, key, err)
		}
	}
	if err := s.ns.Commit(ctx); err != nil {
		s.ns.Discard()
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (s *Storage) load(ctx context.Context, key string, v any) error {
	err := s.ns.GetJSON(ctx, key, v)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return fmt.Errorf("loading %s: %w", key, err)
	}
	return err
}

// LoadAPCredential returns the stored AP credential or kvstore.ErrNotFound.
func (s *Storage) LoadAPCredential(ctx context.Context) (Credential, error) {
	var c Credential
	err := s.load(ctx, keyAPCred, &c)
	return c, err
}

// SaveAPCredential stores the AP credential.
func (s *Storage) SaveAPCredential(ctx context.Context, c Credential) error {
	return s.save(ctx, map[string]any{keyAPCred: c})
}

// LoadLastCredential returns the last credential that connected.
func (s *Storage) LoadLastCredential(ctx context.Context) (Credential, error) {
	var c Credential
	err := s.load(ctx, keySTALastCred, &c)
	return c, err
}

// SaveLastCredential records a credential that connected.
func (s *Storage) SaveLastCredential(ctx context.Context, c Credential) error {
	return s.save(ctx, map[string]any{keySTALastCred: c})
}

// LoadPolicy returns the persisted permanent mode.
func (s *Storage) LoadPolicy(ctx context.Context) (Policy, error) {
	var v uint8
	if err := s.load(ctx, keyMode, &v); err != nil {
		return PolicyAuto, err
	}
	p := Policy(v)
	if !p.Valid() {
		return PolicyAuto, fmt.Errorf("%w: stored %d", ErrInvalidMode, v)
	}
	return p, nil
}

// SavePolicy persists the permanent mode.
func (s *Storage) SavePolicy(ctx context.Context, p Policy) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, p)
	}
	return s.save(ctx, map[string]any{keyMode: uint8(p)})
}

// LoadAPDelays returns the stored auto-mode delays. Keys are stored in
// milliseconds; a missing key keeps the corresponding field of def.
func (s *Storage) LoadAPDelays(ctx context.Context, def APDelays) (APDelays, error) {
	out := def
	var on, off int64
	if err := s.load(ctx, keyAPOnDelay, &on); err == nil {
		out.On = time.Duration(on) * time.Millisecond
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		return def, err
	}
	if err := s.load(ctx, keyAPOffDelay, &off); err == nil {
		out.Off = time.Duration(off) * time.Millisecond
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		return def, err
	}
	return out, nil
}

// SaveAPDelays stores both delays in one commit.
func (s *Storage) SaveAPDelays(ctx context.Context, d APDelays) error {
	return s.save(ctx, map[string]any{
		keyAPOnDelay:  d.On.Milliseconds(),
		keyAPOffDelay: d.Off.Milliseconds(),
	})
}

// LoadStatic returns the station's static addressing.
func (s *Storage) LoadStatic(ctx context.Context) (StaticConfig, error) {
	var c StaticConfig
	err := s.load(ctx, keyStatic, &c)
	return c, err
}

// SaveStatic stores the station's static addressing.
func (s *Storage) SaveStatic(ctx context.Context, c StaticConfig) error {
	return s.save(ctx, map[string]any{keyStatic: c})
}
