// Package governor gates every outbound action behind per-run and per-day
// quotas and hands out randomized pacing delays. Per-day counters live in
// the store and survive restarts; per-run counters reset with the process.
package governor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/yashvoladoddi37/leadflow/internal/logging"
	"github.com/yashvoladoddi37/leadflow/internal/models"
)

const dayLayout = "2006-01-02"

type Limits struct {
	PerRun   int
	PerDay   int
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Grant is permission for exactly one action. Callers wait out Delay
// before performing the action.
type Grant struct {
	Kind  models.ActionKind
	Delay time.Duration
}

// Wait blocks for the grant's pacing delay, or until ctx is done.
func (g Grant) Wait(ctx context.Context) error {
	t := time.NewTimer(g.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Reason string

const (
	RunQuotaExhausted   Reason = "run_quota_exhausted"
	DailyQuotaExhausted Reason = "daily_quota_exhausted"
)

// Denied is returned by Authorize when a quota window is exhausted.
// It signals a clean stop for the stage, not a failure.
type Denied struct {
	Kind   models.ActionKind
	Reason Reason
}

func (d *Denied) Error() string {
	return fmt.Sprintf("%s denied: %s", d.Kind, d.Reason)
}

type CounterStore interface {
	IncrementAction(ctx context.Context, kind models.ActionKind, day string) error
	ActionCount(ctx context.Context, kind models.ActionKind, day string) (int, error)
}

type Governor struct {
	counters CounterStore
	limits   map[models.ActionKind]Limits
	run      map[models.ActionKind]int
	now      func() time.Time
	log      *logging.Logger
}

func New(counters CounterStore, limits map[models.ActionKind]Limits, log *logging.Logger) *Governor {
	return &Governor{
		counters: counters,
		limits:   limits,
		run:      make(map[models.ActionKind]int),
		now:      time.Now,
		log:      log.With("module", "governor"),
	}
}

// Authorize checks the per-run ceiling, then the persisted per-day ceiling
// for the current calendar day, and returns a Grant with a delay sampled
// uniformly from the kind's configured range. Exhaustion comes back as
// *Denied; any other error is an infrastructure failure.
func (g *Governor) Authorize(ctx context.Context, kind models.ActionKind) (Grant, error) {
	lim, ok := g.limits[kind]
	if !ok {
		return Grant{}, fmt.Errorf("no limits configured for action %q", kind)
	}
	if g.run[kind] >= lim.PerRun {
		d := &Denied{Kind: kind, Reason: RunQuotaExhausted}
		g.log.Info("action denied", "kind", kind, "reason", d.Reason, "run_count", g.run[kind])
		return Grant{}, d
	}
	day := g.now().Format(dayLayout)
	n, err := g.counters.ActionCount(ctx, kind, day)
	if err != nil {
		return Grant{}, fmt.Errorf("reading daily counter for %s: %w", kind, err)
	}
	if n >= lim.PerDay {
		d := &Denied{Kind: kind, Reason: DailyQuotaExhausted}
		g.log.Info("action denied", "kind", kind, "reason", d.Reason, "day", day, "day_count", n)
		return Grant{}, d
	}
	grant := Grant{Kind: kind, Delay: sampleDelay(lim)}
	g.log.Info("action authorized", "kind", kind, "delay", grant.Delay.String(), "run_count", g.run[kind], "day_count", n)
	return grant, nil
}

// Record counts one attempted action against both quota windows. The count
// is taken regardless of outcome: a failed attempt spends quota the same
// as a successful one.
func (g *Governor) Record(ctx context.Context, kind models.ActionKind, outcome models.Outcome) error {
	g.run[kind]++
	day := g.now().Format(dayLayout)
	if err := g.counters.IncrementAction(ctx, kind, day); err != nil {
		return fmt.Errorf("persisting daily counter for %s: %w", kind, err)
	}
	g.log.Info("action recorded", "kind", kind, "outcome", outcome, "run_count", g.run[kind], "day", day)
	return nil
}

// RunCount returns how many actions of this kind the current process has
// recorded.
func (g *Governor) RunCount(kind models.ActionKind) int {
	return g.run[kind]
}

func sampleDelay(lim Limits) time.Duration {
	if lim.MaxDelay <= lim.MinDelay {
		return lim.MinDelay
	}
	return lim.MinDelay + time.Duration(rand.Int63n(int64(lim.MaxDelay-lim.MinDelay)+1))
}
