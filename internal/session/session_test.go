package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yashvoladoddi37/leadflow/internal/logging"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), logging.New("error"))
}

func TestLoadMissingArtifact(t *testing.T) {
	s := testStore(t)
	_, err := s.Load("someone@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := testStore(t)
	sess := &Session{
		Identity: "someone@example.com",
		Cookies:  json.RawMessage(`[{"name":"li_at","value":"tok"}]`),
		Valid:    true,
	}
	require.NoError(t, s.Save(sess))

	got, err := s.Load("someone@example.com")
	require.NoError(t, err)
	require.Equal(t, sess.Identity, got.Identity)
	require.JSONEq(t, string(sess.Cookies), string(got.Cookies))
	require.True(t, got.Valid)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, logging.New("error"))
	require.NoError(t, s.Save(&Session{Identity: "a@b.c", Valid: true}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestLoadCorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, logging.New("error"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a@b.c.json"), []byte("{nope"), 0o600))

	_, err := s.Load("a@b.c")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidate(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(&Session{Identity: "a@b.c", Valid: true}))
	require.NoError(t, s.Invalidate("a@b.c"))

	_, err := s.Load("a@b.c")
	require.ErrorIs(t, err, ErrNotFound)

	// invalidating again, or an identity never seen, is a no-op
	require.NoError(t, s.Invalidate("a@b.c"))
	require.NoError(t, s.Invalidate("never@seen.it"))
}

type fakeProber struct {
	err    error
	probes int
}

func (f *fakeProber) Probe(context.Context, *Session) error {
	f.probes++
	return f.err
}

type fakeAuth struct {
	sess   *Session
	err    error
	logins int
}

func (f *fakeAuth) Login(_ context.Context, identity string) (*Session, error) {
	f.logins++
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

func TestManagerLoadValidSession(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save(&Session{Identity: "a@b.c", Valid: true}))

	prober := &fakeProber{}
	m := NewManager(store, prober, &fakeAuth{}, logging.New("error"))

	sess, err := m.Load(context.Background(), "a@b.c")
	require.NoError(t, err)
	require.Equal(t, 1, prober.probes)
	require.False(t, sess.ValidatedAt.IsZero())
}

func TestManagerLoadFailedProbeInvalidates(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save(&Session{Identity: "a@b.c", Valid: true}))

	prober := &fakeProber{err: errors.New("logged out")}
	m := NewManager(store, prober, &fakeAuth{}, logging.New("error"))

	_, err := m.Load(context.Background(), "a@b.c")
	require.ErrorIs(t, err, ErrInvalid)

	// the artifact is gone for later loads too
	_, err = store.Load("a@b.c")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManagerEnsureLogsInWhenMissing(t *testing.T) {
	store := testStore(t)
	auth := &fakeAuth{sess: &Session{Cookies: json.RawMessage(`[]`)}}
	m := NewManager(store, &fakeProber{}, auth, logging.New("error"))

	sess, err := m.Ensure(context.Background(), "a@b.c")
	require.NoError(t, err)
	require.Equal(t, 1, auth.logins)
	require.Equal(t, "a@b.c", sess.Identity)
	require.True(t, sess.Valid)

	// the fresh session was persisted for the next run
	got, err := store.Load("a@b.c")
	require.NoError(t, err)
	require.True(t, got.Valid)
}

func TestManagerEnsureReusesLiveSession(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save(&Session{Identity: "a@b.c", Valid: true}))
	auth := &fakeAuth{}
	m := NewManager(store, &fakeProber{}, auth, logging.New("error"))

	_, err := m.Ensure(context.Background(), "a@b.c")
	require.NoError(t, err)
	require.Zero(t, auth.logins)
}

func TestManagerEnsureSurfacesLoginFailure(t *testing.T) {
	store := testStore(t)
	auth := &fakeAuth{err: errors.New("checkpoint")}
	m := NewManager(store, &fakeProber{}, auth, logging.New("error"))

	_, err := m.Ensure(context.Background(), "a@b.c")
	require.Error(t, err)
	require.Contains(t, err.Error(), "login")
}
