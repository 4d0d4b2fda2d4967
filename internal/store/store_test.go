package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yashvoladoddi37/leadflow/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.migrate())
	require.NoError(t, s.migrate())
}

func TestUpsertCandidate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := &models.Candidate{ProfileURL: "https://www.linkedin.com/in/priya-sharma", SourceCompany: "Acme Corp"}
	id, inserted, err := s.UpsertCandidate(ctx, c)
	require.NoError(t, err)
	require.True(t, inserted)
	require.NotZero(t, id)
	require.Equal(t, models.StateDiscovered, c.State)

	// same URL again, now with profile details filled in
	again := &models.Candidate{
		ProfileURL: "https://www.linkedin.com/in/priya-sharma",
		Name:       "Priya Sharma",
		Headline:   "HR Manager at Acme Corp",
	}
	id2, inserted2, err := s.UpsertCandidate(ctx, again)
	require.NoError(t, err)
	require.False(t, inserted2)
	require.Equal(t, id, id2)

	got, err := s.CandidateByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Priya Sharma", got.Name)
	require.Equal(t, "HR Manager at Acme Corp", got.Headline)
	require.Equal(t, "Acme Corp", got.SourceCompany)
}

func TestUpsertDoesNotRegressState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := &models.Candidate{ProfileURL: "https://www.linkedin.com/in/arjun-rao"}
	id, _, err := s.UpsertCandidate(ctx, c)
	require.NoError(t, err)
	require.NoError(t, s.Transition(ctx, id, models.StateDiscovered, models.StateConnectionSent))

	_, _, err = s.UpsertCandidate(ctx, &models.Candidate{ProfileURL: "https://www.linkedin.com/in/arjun-rao", Name: "Arjun Rao"})
	require.NoError(t, err)

	got, err := s.CandidateByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.StateConnectionSent, got.State)
	require.Equal(t, "Arjun Rao", got.Name)
}

func TestTransition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _, err := s.UpsertCandidate(ctx, &models.Candidate{ProfileURL: "https://www.linkedin.com/in/x"})
	require.NoError(t, err)

	require.NoError(t, s.Transition(ctx, id, models.StateDiscovered, models.StateConnectionSent))
	require.NoError(t, s.Transition(ctx, id, models.StateConnectionSent, models.StateConnectionAccepted))

	// backward moves are rejected before touching the database
	err = s.Transition(ctx, id, models.StateConnectionAccepted, models.StateDiscovered)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// expected-from mismatch
	err = s.Transition(ctx, id, models.StateDiscovered, models.StateConnectionSent)
	require.ErrorIs(t, err, ErrStaleState)

	// unknown candidate
	err = s.Transition(ctx, 9999, models.StateDiscovered, models.StateConnectionSent)
	require.ErrorIs(t, err, ErrNotFound)

	// rejected is terminal
	require.NoError(t, s.Transition(ctx, id, models.StateConnectionAccepted, models.StateRejected))
	err = s.Transition(ctx, id, models.StateRejected, models.StateMessaged)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCandidatesInState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, url := range []string{"https://x.test/in/a", "https://x.test/in/b", "https://x.test/in/c"} {
		_, _, err := s.UpsertCandidate(ctx, &models.Candidate{ProfileURL: url})
		require.NoError(t, err)
	}

	all, err := s.CandidatesInState(ctx, models.StateDiscovered, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	limited, err := s.CandidatesInState(ctx, models.StateDiscovered, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, "https://x.test/in/a", limited[0].ProfileURL)

	require.NoError(t, s.Transition(ctx, all[0].ID, models.StateDiscovered, models.StateConnectionSent))
	sent, err := s.CandidatesInState(ctx, models.StateConnectionSent, 0)
	require.NoError(t, err)
	require.Len(t, sent, 1)
}

func TestActionCounters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.ActionCount(ctx, models.ActionConnect, "2026-08-21")
	require.NoError(t, err)
	require.Zero(t, n)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.IncrementAction(ctx, models.ActionConnect, "2026-08-21"))
	}
	require.NoError(t, s.IncrementAction(ctx, models.ActionMessage, "2026-08-21"))
	require.NoError(t, s.IncrementAction(ctx, models.ActionConnect, "2026-08-22"))

	n, err = s.ActionCount(ctx, models.ActionConnect, "2026-08-21")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = s.ActionCount(ctx, models.ActionMessage, "2026-08-21")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.ActionCount(ctx, models.ActionConnect, "2026-08-22")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestOutreachRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _, err := s.UpsertCandidate(ctx, &models.Candidate{ProfileURL: "https://x.test/in/r"})
	require.NoError(t, err)

	rec := &models.OutreachRecord{
		ID:          "rec-1",
		CandidateID: id,
		Stage:       models.StageConnect,
		Result:      models.OutcomeSuccess,
		Payload:     "Hi Priya, would love to connect.",
	}
	require.NoError(t, s.AppendRecord(ctx, rec))
	require.False(t, rec.CreatedAt.IsZero())

	got, err := s.RecordsForCandidate(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "rec-1", got[0].ID)
	require.Equal(t, models.OutcomeSuccess, got[0].Result)
	require.Equal(t, "Hi Priya, would love to connect.", got[0].Payload)
}

func TestStateCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, _, err := s.UpsertCandidate(ctx, &models.Candidate{ProfileURL: "https://x.test/in/1"})
	require.NoError(t, err)
	_, _, err = s.UpsertCandidate(ctx, &models.Candidate{ProfileURL: "https://x.test/in/2"})
	require.NoError(t, err)
	require.NoError(t, s.Transition(ctx, a, models.StateDiscovered, models.StateConnectionSent))

	counts, err := s.StateCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts[models.StateDiscovered])
	require.Equal(t, 1, counts[models.StateConnectionSent])
}

func TestRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, s.StartRun(ctx, "run-1", start))
	require.NoError(t, s.FinishRun(ctx, "run-1", start.Add(time.Minute), "connect: sent=3"))
	require.ErrorIs(t, s.FinishRun(ctx, "run-x", start, ""), ErrNotFound)
}
