// Package sink mirrors outreach records into append-only CSV datasets, one
// file per stage per run, named by the run's start time.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yashvoladoddi37/leadflow/internal/models"
)

var header = []string{
	"record_id", "candidate_id", "profile_url", "name", "company",
	"source_company", "stage", "result", "reason", "payload", "created_at",
}

// CSV is one stage's dataset for one run. Rows flush on every append so a
// killed process keeps everything written so far.
type CSV struct {
	path string
	f    *os.File
	w    *csv.Writer
}

// NewCSV creates output/<stage>_<YYYYMMDD_HHMMSS>.csv under dir and writes
// the header row.
func NewCSV(dir, stage string, start time.Time) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", stage, start.Format("20060102_150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}
	return &CSV{path: path, f: f, w: w}, nil
}

func (c *CSV) Path() string { return c.path }

// Append writes one record row joined with its candidate's identifying
// fields.
func (c *CSV) Append(rec *models.OutreachRecord, cand *models.Candidate) error {
	row := []string{
		rec.ID,
		fmt.Sprintf("%d", rec.CandidateID),
		cand.ProfileURL,
		cand.Name,
		cand.Company,
		cand.SourceCompany,
		rec.Stage,
		string(rec.Result),
		rec.Reason,
		rec.Payload,
		rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("appending row: %w", err)
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSV) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}
