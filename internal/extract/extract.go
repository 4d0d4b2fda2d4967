// Package extract runs the third funnel stage: scan replied conversations
// for phone numbers and email addresses, record what it finds, and
// optionally acknowledge the reply.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yashvoladoddi37/leadflow/internal/governor"
	"github.com/yashvoladoddi37/leadflow/internal/logging"
	"github.com/yashvoladoddi37/leadflow/internal/models"
)

type Platform interface {
	ReadConversation(ctx context.Context, c *models.Candidate) (models.Conversation, error)
	SendMessage(ctx context.Context, c *models.Candidate, text string) error
}

type Governor interface {
	Authorize(ctx context.Context, kind models.ActionKind) (governor.Grant, error)
	Record(ctx context.Context, kind models.ActionKind, outcome models.Outcome) error
}

type Store interface {
	CandidatesInState(ctx context.Context, state models.CandidateState, limit int) ([]models.Candidate, error)
	Transition(ctx context.Context, id int64, from, to models.CandidateState) error
	AppendRecord(ctx context.Context, r *models.OutreachRecord) error
}

type Sink interface {
	Append(rec *models.OutreachRecord, cand *models.Candidate) error
}

type Config struct {
	// Acknowledgment is sent back after contact details are captured.
	// Empty disables the reply.
	Acknowledgment string
	Limit          int
}

type Stats struct {
	Scanned   int
	Extracted int
	Acked     int
	Stopped   governor.Reason
}

func (s Stats) String() string {
	return fmt.Sprintf("scanned=%d extracted=%d acked=%d stopped=%s", s.Scanned, s.Extracted, s.Acked, s.Stopped)
}

type Runner struct {
	platform Platform
	gov      Governor
	store    Store
	sink     Sink
	cfg      Config
	log      *logging.Logger
}

func New(platform Platform, gov Governor, store Store, sink Sink, cfg Config, log *logging.Logger) *Runner {
	return &Runner{
		platform: platform,
		gov:      gov,
		store:    store,
		sink:     sink,
		cfg:      cfg,
		log:      log.With("module", "extract"),
	}
}

// Run walks messaged candidates, reading each conversation under the view
// quota. A conversation with nothing new, or with no contact details in
// it, leaves the candidate in messaged so a later run rescans it; the
// whole pass is idempotent.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	messaged, err := r.store.CandidatesInState(ctx, models.StateMessaged, r.cfg.Limit)
	if err != nil {
		return stats, fmt.Errorf("listing messaged candidates: %w", err)
	}
	r.log.Info("conversations to scan", "count", len(messaged))

	for i := range messaged {
		c := &messaged[i]

		grant, err := r.gov.Authorize(ctx, models.ActionView)
		var denied *governor.Denied
		if errors.As(err, &denied) {
			r.log.Info("view quota exhausted, stopping stage", "reason", denied.Reason)
			stats.Stopped = denied.Reason
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		if err := grant.Wait(ctx); err != nil {
			return stats, err
		}

		conv, readErr := r.platform.ReadConversation(ctx, c)
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		outcome := models.OutcomeSuccess
		if readErr != nil {
			outcome = models.OutcomeFailure
		}
		if err := r.gov.Record(ctx, models.ActionView, outcome); err != nil {
			return stats, err
		}
		if readErr != nil {
			r.log.Warn("reading conversation failed", "id", c.ID, "err", readErr)
			continue
		}
		stats.Scanned++

		if !conv.Unread {
			r.log.Debug("no new inbound content", "id", c.ID)
			continue
		}

		contacts := ExtractContacts(strings.Join(conv.Inbound, "\n"))
		if !contacts.Found() {
			r.log.Info("reply contains no contact details yet", "id", c.ID)
			continue
		}

		if err := r.store.Transition(ctx, c.ID, models.StateMessaged, models.StateContactExtracted); err != nil {
			r.log.Warn("transition to contact_extracted failed", "id", c.ID, "err", err)
			continue
		}
		stats.Extracted++
		r.append(ctx, c, contacts.Payload())
		r.log.Info("contact details extracted", "id", c.ID, "phones", len(contacts.Phones), "emails", len(contacts.Emails))

		if r.cfg.Acknowledgment != "" {
			r.acknowledge(ctx, c, &stats)
		}
	}
	return stats, nil
}

// acknowledge thanks the candidate for sharing their details. The reply is
// best-effort: a denied message quota or a send failure never undoes the
// extraction.
func (r *Runner) acknowledge(ctx context.Context, c *models.Candidate, stats *Stats) {
	grant, err := r.gov.Authorize(ctx, models.ActionMessage)
	var denied *governor.Denied
	if errors.As(err, &denied) {
		r.log.Info("message quota exhausted, skipping acknowledgment", "id", c.ID)
		return
	}
	if err != nil {
		r.log.Warn("authorizing acknowledgment failed", "id", c.ID, "err", err)
		return
	}
	if err := grant.Wait(ctx); err != nil {
		return
	}

	text := strings.NewReplacer("{{Name}}", c.FirstName()).Replace(r.cfg.Acknowledgment)
	sendErr := r.platform.SendMessage(ctx, c, text)
	outcome := models.OutcomeSuccess
	if sendErr != nil {
		outcome = models.OutcomeFailure
	}
	if err := r.gov.Record(ctx, models.ActionMessage, outcome); err != nil {
		r.log.Warn("recording acknowledgment failed", "id", c.ID, "err", err)
		return
	}
	if sendErr != nil {
		r.log.Warn("sending acknowledgment failed", "id", c.ID, "err", sendErr)
		return
	}
	stats.Acked++
}

func (r *Runner) append(ctx context.Context, c *models.Candidate, payload string) {
	rec := &models.OutreachRecord{
		ID:          uuid.NewString(),
		CandidateID: c.ID,
		Stage:       models.StageExtract,
		Result:      models.OutcomeSuccess,
		Payload:     payload,
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
