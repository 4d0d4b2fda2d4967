package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yashvoladoddi37/leadflow/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	ErrNotFound          = errors.New("store: not found")
	ErrInvalidTransition = errors.New("store: transition not allowed")
	ErrStaleState        = errors.New("store: candidate state changed underneath")
)

// Store persists candidates, outreach records, daily action counters, and
// run metadata in a single SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations. Pass ":memory:" for an in-memory database (used by tests).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// --- Candidates ---

// UpsertCandidate inserts a newly discovered candidate or, when the profile
// URL is already known, refreshes its descriptive fields without touching its
// funnel state. The second return value reports whether the row is new.
func (s *Store) UpsertCandidate(ctx context.Context, c *models.Candidate) (int64, bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO candidates (profile_url, name, headline, company, location, source_company, state, discovered_at, state_changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_url) DO NOTHING`,
		c.ProfileURL, c.Name, c.Headline, c.Company, c.Location, c.SourceCompany,
		string(models.StateDiscovered), now, now,
	)
	if err != nil {
		return 0, false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, false, err
	} else if n == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, err
		}
		c.ID = id
		c.State = models.StateDiscovered
		return id, true, nil
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM candidates WHERE profile_url = ?`, c.ProfileURL).Scan(&id); err != nil {
		return 0, false, err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE candidates SET
			name = COALESCE(NULLIF(?, ''), name),
			headline = COALESCE(NULLIF(?, ''), headline),
			company = COALESCE(NULLIF(?, ''), company),
			location = COALESCE(NULLIF(?, ''), location)
		WHERE id = ?`,
		c.Name, c.Headline, c.Company, c.Location, id,
	)
	if err != nil {
		return 0, false, err
	}
	c.ID = id
	return id, false, nil
}

const candidateColumns = `id, profile_url, name, headline, company, location, source_company, state, discovered_at, state_changed_at`

func scanCandidate(row interface{ Scan(...any) error }) (models.Candidate, error) {
	var c models.Candidate
	var state, discoveredAt, stateChangedAt string
	if err := row.Scan(&c.ID, &c.ProfileURL, &c.Name, &c.Headline, &c.Company, &c.Location, &c.SourceCompany, &state, &discoveredAt, &stateChangedAt); err != nil {
		return models.Candidate{}, err
	}
	c.State = models.CandidateState(state)
	var err error
	if c.DiscoveredAt, err = time.Parse(time.RFC3339, discoveredAt); err != nil {
		return models.Candidate{}, fmt.Errorf("parsing discovered_at: %w", err)
	}
	if c.StateChangedAt, err = time.Parse(time.RFC3339, stateChangedAt); err != nil {
		return models.Candidate{}, fmt.Errorf("parsing state_changed_at: %w", err)
	}
	return c, nil
}

func (s *Store) CandidateByID(ctx context.Context, id int64) (models.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id)
	c, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return models.Candidate{}, ErrNotFound
	}
	return c, err
}

// CandidatesInState returns candidates in the given state, oldest first.
// A limit <= 0 means no limit.
func (s *Store) CandidatesInState(ctx context.Context, state models.CandidateState, limit int) ([]models.Candidate, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE state = ? ORDER BY id LIMIT ?`, string(state), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Transition moves a candidate from one funnel state to another. The move
// must be forward per models.CanTransitionTo, and the candidate must still
// be in the expected from state.
func (s *Store) Transition(ctx context.Context, id int64, from, to models.CandidateState) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `UPDATE candidates SET state = ?, state_changed_at = ? WHERE id = ? AND state = ?`,
		string(to), now, id, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var cur string
		err := s.db.QueryRowContext(ctx, `SELECT state FROM candidates WHERE id = ?`, id).Scan(&cur)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: candidate %d is %s, expected %s", ErrStaleState, id, cur, from)
	}
	return nil
}

// StateCounts reports how many candidates sit in each funnel state.
func (s *Store) StateCounts(ctx context.Context) (map[models.CandidateState]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM candidates GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[models.CandidateState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out[models.CandidateState(state)] = n
	}
	return out, rows.Err()
}

// --- Outreach records ---

func (s *Store) AppendRecord(ctx context.Context, r *models.OutreachRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outreach_records (id, candidate_id, stage, result, payload, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CandidateID, r.Stage, string(r.Result), r.Payload, r.Reason,
		r.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) RecordsForCandidate(ctx context.Context, candidateID int64) ([]models.OutreachRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, candidate_id, stage, result, payload, reason, created_at
		FROM outreach_records WHERE candidate_id = ? ORDER BY created_at`, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OutreachRecord
	for rows.Next() {
		var r models.OutreachRecord
		var result, createdAt string
		if err := rows.Scan(&r.ID, &r.CandidateID, &r.Stage, &result, &r.Payload, &r.Reason, &createdAt); err != nil {
			return nil, err
		}
		r.Result = models.Outcome(result)
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Action counters ---

// IncrementAction bumps the persisted counter for (kind, day). Day rollover
// needs no special handling: a fresh day key simply starts a fresh row.
func (s *Store) IncrementAction(ctx context.Context, kind models.ActionKind, day string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_counters (kind, day, count) VALUES (?, ?, 1)
		ON CONFLICT(kind, day) DO UPDATE SET count = count + 1`,
		string(kind), day)
	return err
}

func (s *Store) ActionCount(ctx context.Context, kind models.ActionKind, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count FROM action_counters WHERE kind = ? AND day = ?`, string(kind), day).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// --- Runs ---

func (s *Store) StartRun(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		id, at.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) FinishRun(ctx context.Context, id string, at time.Time, summary string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET ended_at = ?, summary = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), summary, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
