package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yashvoladoddi37/leadflow/internal/logging"
)

// Prober checks that a restored session is still live on the platform.
type Prober interface {
	Probe(ctx context.Context, sess *Session) error
}

// Authenticator performs a fresh login and returns the resulting session
// state.
type Authenticator interface {
	Login(ctx context.Context, identity string) (*Session, error)
}

// Manager ties the artifact store to the platform: it restores and
// validates stored sessions and falls back to a fresh login when that
// fails.
type Manager struct {
	store  *Store
	prober Prober
	auth   Authenticator
	now    func() time.Time
	log    *logging.Logger
}

func NewManager(store *Store, prober Prober, auth Authenticator, log *logging.Logger) *Manager {
	return &Manager{
		store:  store,
		prober: prober,
		auth:   auth,
		now:    time.Now,
		log:    log.With("module", "session"),
	}
}

// Load restores the stored session and confirms it is still live. A failed
// liveness probe invalidates the artifact and reports ErrInvalid; a missing
// artifact reports ErrNotFound. Both mean the caller re-authenticates.
func (m *Manager) Load(ctx context.Context, identity string) (*Session, error) {
	sess, err := m.store.Load(identity)
	if err != nil {
		return nil, err
	}
	if err := m.prober.Probe(ctx, sess); err != nil {
		m.log.Warn("restored session failed liveness probe", "identity", identity, "err", err)
		if ierr := m.store.Invalidate(identity); ierr != nil {
			m.log.Warn("invalidating session failed", "identity", identity, "err", ierr)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	sess.ValidatedAt = m.now()
	if err := m.store.Save(sess); err != nil {
		m.log.Warn("saving validated session failed", "identity", identity, "err", err)
	}
	m.log.Info("session restored", "identity", identity)
	return sess, nil
}

// Ensure returns a live session for identity, logging in again when the
// stored one is missing or stale. Only infrastructure failures and login
// failures come back as errors.
func (m *Manager) Ensure(ctx context.Context, identity string) (*Session, error) {
	sess, err := m.Load(ctx, identity)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalid) {
		return nil, err
	}
	m.log.Info("no usable session, logging in", "identity", identity)

	fresh, err := m.auth.Login(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	fresh.Identity = identity
	fresh.Valid = true
	now := m.now()
	if fresh.CreatedAt.IsZero() {
		fresh.CreatedAt = now
	}
	fresh.ValidatedAt = now
	if err := m.store.Save(fresh); err != nil {
		m.log.Warn("saving fresh session failed", "identity", identity, "err", err)
	}
	return fresh, nil
}
