// Package session persists authentication state per identity so later runs
// can resume without logging in again. Artifacts live as one JSON file per
// identity; a missing, corrupt, or invalidated artifact just means the
// caller authenticates from scratch.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yashvoladoddi37/leadflow/internal/logging"
)

var (
	ErrNotFound = errors.New("session: not found")
	ErrInvalid  = errors.New("session: invalid")
)

// Session is the serialized browser authentication state for one identity.
// Cookies stays opaque to everything but the platform adapter.
type Session struct {
	Identity    string          `json:"identity"`
	Cookies     json.RawMessage `json:"cookies"`
	CreatedAt   time.Time       `json:"created_at"`
	ValidatedAt time.Time       `json:"validated_at"`
	Valid       bool            `json:"valid"`
}

type Store struct {
	dir string
	log *logging.Logger
}

func NewStore(dir string, log *logging.Logger) *Store {
	return &Store{dir: dir, log: log.With("module", "session")}
}

// Load reads the artifact for identity. Corrupt and invalidated artifacts
// report ErrNotFound the same as missing ones: all three mean "log in
// again", none is fatal.
func (s *Store) Load(identity string) (*Session, error) {
	b, err := os.ReadFile(s.path(identity))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session artifact: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		s.log.Warn("session artifact corrupt, treating as absent", "identity", identity, "err", err)
		return nil, ErrNotFound
	}
	if !sess.Valid {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Save writes the artifact via a temp file and rename so a crash mid-write
// never leaves a truncated artifact behind.
func (s *Store) Save(sess *Session) error {
	if sess.Identity == "" {
		return errors.New("session: identity is empty")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	b, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, sanitize(sess.Identity)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(sess.Identity))
}

// Invalidate marks the stored artifact unusable so the next Load reports
// ErrNotFound. Missing artifacts are fine; there is nothing to do.
func (s *Store) Invalidate(identity string) error {
	b, err := os.ReadFile(s.path(identity))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading session artifact: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return os.Remove(s.path(identity))
	}
	sess.Valid = false
	return s.Save(&sess)
}

func (s *Store) path(identity string) string {
	return filepath.Join(s.dir, sanitize(identity)+".json")
}

func sanitize(identity string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_', r == '@':
			return r
		default:
			return '_'
		}
	}, identity)
}
