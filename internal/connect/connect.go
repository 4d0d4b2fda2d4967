// Package connect runs the first funnel stage: discover candidate profiles
// at the target companies and send each one a connection request, gated by
// the connect quota.
package connect

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yashvoladoddi37/leadflow/internal/governor"
	"github.com/yashvoladoddi37/leadflow/internal/logging"
	"github.com/yashvoladoddi37/leadflow/internal/models"
)

// Platform is the browser-facing collaborator. The note callback renders
// after the profile page fills in the candidate's fields.
type Platform interface {
	FindCandidates(ctx context.Context, company string, limit int) ([]models.Candidate, error)
	SendConnection(ctx context.Context, c *models.Candidate, note func(*models.Candidate) string) error
}

type Governor interface {
	Authorize(ctx context.Context, kind models.ActionKind) (governor.Grant, error)
	Record(ctx context.Context, kind models.ActionKind, outcome models.Outcome) error
}

type Store interface {
	UpsertCandidate(ctx context.Context, c *models.Candidate) (int64, bool, error)
	CandidatesInState(ctx context.Context, state models.CandidateState, limit int) ([]models.Candidate, error)
	Transition(ctx context.Context, id int64, from, to models.CandidateState) error
	AppendRecord(ctx context.Context, r *models.OutreachRecord) error
}

type Sink interface {
	Append(rec *models.OutreachRecord, cand *models.Candidate) error
}

type Config struct {
	Companies       []string
	PerCompanyLimit int
	CompaniesPerRun int
	HopMin, HopMax  time.Duration
	NoteTemplate    string
}

type Stats struct {
	Discovered int
	Sent       int
	Rejected   int
	// Stopped names the quota that ended the stage early; empty when input
	// ran out instead.
	Stopped governor.Reason
}

func (s Stats) String() string {
	return fmt.Sprintf("discovered=%d sent=%d rejected=%d stopped=%s", s.Discovered, s.Sent, s.Rejected, s.Stopped)
}

type Runner struct {
	platform Platform
	gov      Governor
	store    Store
	sink     Sink
	cfg      Config
	log      *logging.Logger
}

// New validates the stage configuration up front: a connect run without
// target companies is a configuration defect, not an empty result.
func New(platform Platform, gov Governor, store Store, sink Sink, cfg Config, log *logging.Logger) (*Runner, error) {
	if len(cfg.Companies) == 0 {
		return nil, errors.New("connect: no target companies configured")
	}
	return &Runner{
		platform: platform,
		gov:      gov,
		store:    store,
		sink:     sink,
		cfg:      cfg,
		log:      log.With("module", "connect"),
	}, nil
}

// Run discovers candidates company by company, then walks the discovered
// backlog sending connection requests until the quota or the backlog runs
// out. Quota exhaustion is a clean stop; only infrastructure failures
// return an error.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	for i, company := range r.pickCompanies() {
		if i > 0 {
			if err := sleepBetween(ctx, r.cfg.HopMin, r.cfg.HopMax); err != nil {
				return stats, err
			}
		}
		found, err := r.platform.FindCandidates(ctx, company, r.cfg.PerCompanyLimit)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			r.log.Warn("candidate search failed", "company", company, "err", err)
			continue
		}
		for j := range found {
			c := &found[j]
			_, created, err := r.store.UpsertCandidate(ctx, c)
			if err != nil {
				return stats, fmt.Errorf("storing candidate %s: %w", c.ProfileURL, err)
			}
			if created {
				stats.Discovered++
			}
		}
		r.log.Info("company searched", "company", company, "found", len(found))
	}

	pending, err := r.store.CandidatesInState(ctx, models.StateDiscovered, 0)
	if err != nil {
		return stats, fmt.Errorf("listing discovered candidates: %w", err)
	}
	r.log.Info("candidates awaiting connection", "count", len(pending))

	for i := range pending {
		c := &pending[i]

		grant, err := r.gov.Authorize(ctx, models.ActionConnect)
		var denied *governor.Denied
		if errors.As(err, &denied) {
			r.log.Info("connect quota exhausted, stopping stage", "reason", denied.Reason)
			stats.Stopped = denied.Reason
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		if err := grant.Wait(ctx); err != nil {
			return stats, err
		}

		var note string
		sendErr := r.platform.SendConnection(ctx, c, func(c *models.Candidate) string {
			note = renderNote(r.cfg.NoteTemplate, c)
			return note
		})
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		outcome := models.OutcomeSuccess
		if sendErr != nil {
			outcome = models.OutcomeFailure
		}
		if err := r.gov.Record(ctx, models.ActionConnect, outcome); err != nil {
			return stats, err
		}

		if sendErr != nil {
			stats.Rejected++
			r.log.Warn("connection request failed", "url", c.ProfileURL, "err", sendErr)
			if err := r.store.Transition(ctx, c.ID, models.StateDiscovered, models.StateRejected); err != nil {
				r.log.Warn("marking candidate rejected failed", "id", c.ID, "err", err)
			}
			r.append(ctx, c, models.OutcomeFailure, "", sendErr.Error())
			continue
		}

		// persist the fields the profile visit filled in
		if _, _, err := r.store.UpsertCandidate(ctx, c); err != nil {
			r.log.Warn("refreshing candidate fields failed", "id", c.ID, "err", err)
		}
		if err := r.store.Transition(ctx, c.ID, models.StateDiscovered, models.StateConnectionSent); err != nil {
			r.log.Warn("transition to connection_sent failed", "id", c.ID, "err", err)
			continue
		}
		stats.Sent++
		r.append(ctx, c, models.OutcomeSuccess, note, "")
	}
	return stats, nil
}

// pickCompanies shuffles the configured list so runs never visit companies
// in a fixed order, and caps the batch for this run.
func (r *Runner) pickCompanies() []string {
	companies := append([]string(nil), r.cfg.Companies...)
	rand.Shuffle(len(companies), func(i, j int) {
		companies[i], companies[j] = companies[j], companies[i]
	})
	if n := r.cfg.CompaniesPerRun; n > 0 && n < len(companies) {
		companies = companies[:n]
	}
	return companies
}

func (r *Runner) append(ctx context.Context, c *models.Candidate, result models.Outcome, payload, reason string) {
	rec := &models.OutreachRecord{
		ID:          uuid.NewString(),
		CandidateID: c.ID,
		Stage:       models.StageConnect,
		Result:      result,
		Payload:     payload,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.AppendRecord(ctx, rec); err != nil {
		r.log.Warn("appending outreach record failed", "candidate", c.ID, "err", err)
	}
	if r.sink != nil {
		if err := r.sink.Append(rec, c); err != nil {
			r.log.Warn("writing dataset row failed", "candidate", c.ID, "err", err)
		}
	}
}

func sleepBetween(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d = min + time.Duration(rand.Int63n(int64(max-min)+1))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// renderNote fills the connection note template from the candidate's
// profile fields, trimming noisy headlines down to a plain title.
func renderNote(tmpl string, c *models.Candidate) string {
	title := c.Headline
	for _, sep := range []string{"@", "|", " at "} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = strings.TrimSpace(title[:idx])
		}
	}
	if len(title) > 50 {
		title = title[:50]
		if idx := strings.LastIndex(title, " "); idx > 20 {
			title = title[:idx]
		}
	}
	return strings.NewReplacer(
		"{{Name}}", c.FirstName(),
		"{{Company}}", c.Company,
		"{{Title}}", title,
	).Replace(tmpl)
}
