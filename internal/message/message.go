// Package message runs the second funnel stage: detect accepted
// connections, generate a personalized follow-up with the language model,
// and send it, gated by the message quota.
package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yashvoladoddi37/leadflow/internal/governor"
	"github.com/yashvoladoddi37/leadflow/internal/logging"
	"github.com/yashvoladoddi37/leadflow/internal/models"
)

type Platform interface {
	ConnectionAccepted(ctx context.Context, c *models.Candidate) (bool, error)
	SendMessage(ctx context.Context, c *models.Candidate, text string) error
}

// Generator is the language-model collaborator. An empty completion is not
// an error; the stage decides what it means.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
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
	Persona     string
	Signature   string
	DetectBatch int // acceptance probes per run
	Limit       int // 0 means quota-limited only
}

type Stats struct {
	Accepted int // connections newly detected as accepted
	Messaged int
	Failed   int // send attempts that failed
	Ungenned int // candidates skipped because generation failed or was empty
	Stopped  governor.Reason
}

func (s Stats) String() string {
	return fmt.Sprintf("accepted=%d messaged=%d failed=%d ungenerated=%d stopped=%s",
		s.Accepted, s.Messaged, s.Failed, s.Ungenned, s.Stopped)
}

type Runner struct {
	platform Platform
	gen      Generator
	gov      Governor
	store    Store
	sink     Sink
	cfg      Config
	log      *logging.Logger
}

func New(platform Platform, gen Generator, gov Governor, store Store, sink Sink, cfg Config, log *logging.Logger) *Runner {
	if cfg.DetectBatch <= 0 {
		cfg.DetectBatch = 30
	}
	return &Runner{
		platform: platform,
		gen:      gen,
		gov:      gov,
		store:    store,
		sink:     sink,
		cfg:      cfg,
		log:      log.With("module", "message"),
	}
}

func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := r.detectAcceptances(ctx, &stats); err != nil {
		return stats, err
	}

	accepted, err := r.store.CandidatesInState(ctx, models.StateConnectionAccepted, r.cfg.Limit)
	if err != nil {
		return stats, fmt.Errorf("listing accepted candidates: %w", err)
	}
	r.log.Info("candidates awaiting follow-up", "count", len(accepted))

	for i := range accepted {
		c := &accepted[i]

		text, err := r.gen.Complete(ctx, BuildPrompt(r.cfg.Persona, c, r.cfg.Signature))
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			// candidate stays connection_accepted, retried on the next run
			r.log.Warn("message generation failed, candidate stays retryable", "id", c.ID, "err", err)
			stats.Ungenned++
			continue
		}
		if text == "" {
			r.log.Warn("empty generation, candidate stays retryable", "id", c.ID)
			stats.Ungenned++
			continue
		}

		grant, err := r.gov.Authorize(ctx, models.ActionMessage)
		var denied *governor.Denied
		if errors.As(err, &denied) {
			r.log.Info("message quota exhausted, stopping stage", "reason", denied.Reason)
			stats.Stopped = denied.Reason
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		if err := grant.Wait(ctx); err != nil {
			return stats, err
		}

		sendErr := r.platform.SendMessage(ctx, c, text)
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		outcome := models.OutcomeSuccess
		if sendErr != nil {
			outcome = models.OutcomeFailure
		}
		if err := r.gov.Record(ctx, models.ActionMessage, outcome); err != nil {
			return stats, err
		}

		if sendErr != nil {
			// leave the candidate in connection_accepted for the next run
			stats.Failed++
			r.log.Warn("sending follow-up failed", "id", c.ID, "err", sendErr)
			r.append(ctx, c, models.OutcomeFailure, "", sendErr.Error())
			continue
		}

		if err := r.store.Transition(ctx, c.ID, models.StateConnectionAccepted, models.StateMessaged); err != nil {
			r.log.Warn("transition to messaged failed", "id", c.ID, "err", err)
			continue
		}
		stats.Messaged++
		r.append(ctx, c, models.OutcomeSuccess, text, "")
	}
	return stats, nil
}

// detectAcceptances probes sent-but-unanswered candidates for the Message
// button that marks an accepted connection. Each probe spends a view grant;
// running out of views ends detection early but not the stage.
func (r *Runner) detectAcceptances(ctx context.Context, stats *Stats) error {
	pending, err := r.store.CandidatesInState(ctx, models.StateConnectionSent, r.cfg.DetectBatch)
	if err != nil {
		return fmt.Errorf("listing sent candidates: %w", err)
	}
	r.log.Info("checking for accepted connections", "count", len(pending))

	for i := range pending {
		c := &pending[i]

		grant, err := r.gov.Authorize(ctx, models.ActionView)
		var denied *governor.Denied
		if errors.As(err, &denied) {
			r.log.Info("view quota exhausted, skipping remaining acceptance checks", "reason", denied.Reason)
			return nil
		}
		if err != nil {
			return err
		}
		if err := grant.Wait(ctx); err != nil {
			return err
		}

		ok, probeErr := r.platform.ConnectionAccepted(ctx, c)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		outcome := models.OutcomeSuccess
		if probeErr != nil {
			outcome = models.OutcomeFailure
		}
		if err := r.gov.Record(ctx, models.ActionView, outcome); err != nil {
			return err
		}
		if probeErr != nil {
			r.log.Warn("acceptance probe failed", "id", c.ID, "err", probeErr)
			continue
		}
		if !ok {
			continue
		}

		if _, _, err := r.store.UpsertCandidate(ctx, c); err != nil {
			r.log.Warn("refreshing candidate fields failed", "id", c.ID, "err", err)
		}
		if err := r.store.Transition(ctx, c.ID, models.StateConnectionSent, models.StateConnectionAccepted); err != nil {
			r.log.Warn("transition to connection_accepted failed", "id", c.ID, "err", err)
			continue
		}
		stats.Accepted++
		r.log.Info("connection accepted", "id", c.ID, "url", c.ProfileURL)
	}
	return nil
}

func (r *Runner) append(ctx context.Context, c *models.Candidate, result models.Outcome, payload, reason string) {
	rec := &models.OutreachRecord{
		ID:          uuid.NewString(),
		CandidateID: c.ID,
		Stage:       models.StageMessage,
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
