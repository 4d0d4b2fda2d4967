package sink

import (
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yashvoladoddi37/leadflow/internal/models"
)

func TestCSVWritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 8, 21, 10, 30, 0, 0, time.UTC)

	s, err := NewCSV(dir, "connect", start)
	require.NoError(t, err)

	cand := &models.Candidate{
		ID:            7,
		ProfileURL:    "https://www.linkedin.com/in/priya-sharma",
		Name:          "Priya Sharma",
		Company:       "Acme",
		SourceCompany: "Acme",
	}
	rec := &models.OutreachRecord{
		ID:          "abc-123",
		CandidateID: 7,
		Stage:       models.StageConnect,
		Result:      models.OutcomeSuccess,
		Payload:     "Hi Priya, would love to connect.",
		CreatedAt:   start,
	}
	require.NoError(t, s.Append(rec, cand))
	require.NoError(t, s.Close())

	require.Contains(t, s.Path(), "connect_20260821_103000.csv")

	f, err := os.Open(s.Path())
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, header, rows[0])
	require.Equal(t, "abc-123", rows[1][0])
	require.Equal(t, "7", rows[1][1])
	require.Equal(t, "Priya Sharma", rows[1][3])
	require.Equal(t, "success", rows[1][7])
}

func TestCSVRowsSurviveWithoutClose(t *testing.T) {
	dir := t.TempDir()
	s, err := NewCSV(dir, "extract", time.Now())
	require.NoError(t, err)

	rec := &models.OutreachRecord{ID: "r1", CandidateID: 1, Stage: models.StageExtract, Result: models.OutcomeSuccess}
	require.NoError(t, s.Append(rec, &models.Candidate{ID: 1}))

	// rows flush per append; a crashed run still keeps them
	f, err := os.Open(s.Path())
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
