package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yashvoladoddi37/leadflow/internal/browser"
	"github.com/yashvoladoddi37/leadflow/internal/config"
	"github.com/yashvoladoddi37/leadflow/internal/connect"
	"github.com/yashvoladoddi37/leadflow/internal/extract"
	"github.com/yashvoladoddi37/leadflow/internal/governor"
	"github.com/yashvoladoddi37/leadflow/internal/llm"
	"github.com/yashvoladoddi37/leadflow/internal/logging"
	"github.com/yashvoladoddi37/leadflow/internal/message"
	"github.com/yashvoladoddi37/leadflow/internal/models"
	"github.com/yashvoladoddi37/leadflow/internal/platform"
	"github.com/yashvoladoddi37/leadflow/internal/session"
	"github.com/yashvoladoddi37/leadflow/internal/sink"
	"github.com/yashvoladoddi37/leadflow/internal/stealth"
	"github.com/yashvoladoddi37/leadflow/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "leadflow",
	Short:         "Rate-controlled outreach funnel automation",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "config.yaml", "path to config file")

	connectCmd.Flags().Int("limit", 0, "cap connection requests for this run (0 = configured quota)")
	messageCmd.Flags().Int("limit", 0, "cap follow-up messages for this run (0 = configured quota)")

	rootCmd.AddCommand(loginCmd, connectCmd, messageCmd, extractCmd, runCmd, statusCmd)
}

// app bundles what every command needs: config, the run logger, and the
// state store. Quota exhaustion inside a stage exits zero; only
// configuration and infrastructure failures bubble out of RunE.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	closeLog func()
	store    *store.Store
	start    time.Time
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	log, closeLog, err := logging.NewRunLogger(cfg.Logging.Level, cfg.Logging.Dir, start)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("opening state store: %w", err)
	}
	log.Info("leadflow starting", "version", version, "db", cfg.Database.Path)
	return &app{cfg: cfg, log: log, closeLog: closeLog, store: st, start: start}, nil
}

func (a *app) Close() {
	a.store.Close()
	a.closeLog()
}

func (a *app) governor(overrides map[models.ActionKind]int) *governor.Governor {
	limits := map[models.ActionKind]governor.Limits{
		models.ActionConnect: limitsFrom(a.cfg.Quotas.Connect),
		models.ActionMessage: limitsFrom(a.cfg.Quotas.Message),
		models.ActionView:    limitsFrom(a.cfg.Quotas.View),
	}
	for kind, n := range overrides {
		if lim := limits[kind]; n > 0 && n < lim.PerRun {
			lim.PerRun = n
			limits[kind] = lim
		}
	}
	return governor.New(a.store, limits, a.log)
}

func limitsFrom(q config.Quota) governor.Limits {
	return governor.Limits{
		PerRun:   q.PerRun,
		PerDay:   q.PerDay,
		MinDelay: q.MinDelay(),
		MaxDelay: q.MaxDelay(),
	}
}

// driver is the authenticated browser half, opened only by commands that
// touch the platform.
type driver struct {
	br *browser.Browser
	pl *platform.Platform
}

func (a *app) openDriver(ctx context.Context) (*driver, error) {
	br, err := browser.New(a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	pl := platform.New(br, a.cfg, a.log)

	sessions := session.NewStore(a.cfg.Sessions.Dir, a.log)
	mgr := session.NewManager(sessions, pl, pl, a.log)
	sess, err := mgr.Ensure(ctx, a.cfg.Identity())
	if err != nil {
		br.Close()
		return nil, err
	}
	pl.Use(sess)

	if !stealth.InActiveWindow(a.cfg.Stealth.ActiveStart, a.cfg.Stealth.ActiveEnd) {
		a.log.Warn("outside configured active window, continuing anyway",
			"window", a.cfg.Stealth.ActiveStart+"-"+a.cfg.Stealth.ActiveEnd,
			"now", time.Now().Format("15:04"))
	}
	return &driver{br: br, pl: pl}, nil
}

func (d *driver) Close() { d.br.Close() }

// trackRun brackets a stage between a runs-table row and its summary.
func (a *app) trackRun(ctx context.Context, stage func(context.Context) (fmt.Stringer, error)) error {
	runID := uuid.NewString()
	if err := a.store.StartRun(ctx, runID, a.start); err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	stats, err := stage(ctx)
	summary := ""
	if stats != nil {
		summary = stats.String()
	}
	if err != nil {
		summary = strings.TrimSpace(summary + " error=" + err.Error())
	}
	if ferr := a.store.FinishRun(context.WithoutCancel(ctx), runID, time.Now(), summary); ferr != nil {
		a.log.Warn("recording run end failed", "run", runID, "err", ferr)
	}
	if err == nil {
		a.log.Info("run finished", "run", runID, "summary", summary)
	}
	return err
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Ensure a valid platform session, logging in if needed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.openDriver(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		fmt.Printf("session ready for %s\n", a.cfg.Identity())
		return nil
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Discover candidates at target companies and send connection requests",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.openDriver(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		return a.trackRun(cmd.Context(), func(ctx context.Context) (fmt.Stringer, error) {
			return a.runConnect(ctx, d, limit)
		})
	},
}

var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Send generated follow-ups to newly accepted connections",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.openDriver(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		return a.trackRun(cmd.Context(), func(ctx context.Context) (fmt.Stringer, error) {
			return a.runMessage(ctx, d, limit)
		})
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Mine replied conversations for contact details",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.openDriver(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		return a.trackRun(cmd.Context(), func(ctx context.Context) (fmt.Stringer, error) {
			return a.runExtract(ctx, d)
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the whole funnel: connect, message, extract",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.openDriver(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		return a.trackRun(cmd.Context(), func(ctx context.Context) (fmt.Stringer, error) {
			var parts summaryParts
			stats, err := a.runConnect(ctx, d, 0)
			parts.add("connect", stats)
			if err != nil {
				return parts, err
			}
			mstats, err := a.runMessage(ctx, d, 0)
			parts.add("message", mstats)
			if err != nil {
				return parts, err
			}
			estats, err := a.runExtract(ctx, d)
			parts.add("extract", estats)
			return parts, err
		})
	},
}

type summaryParts []string

func (s *summaryParts) add(stage string, stats fmt.Stringer) {
	if stats != nil {
		*s = append(*s, stage+"["+stats.String()+"]")
	}
}

func (s summaryParts) String() string { return strings.Join(s, " ") }

func (a *app) runConnect(ctx context.Context, d *driver, limit int) (fmt.Stringer, error) {
	csv, err := sink.NewCSV(a.cfg.Output.Dir, models.StageConnect, a.start)
	if err != nil {
		return nil, err
	}
	defer csv.Close()

	runner, err := connect.New(d.pl, a.governor(map[models.ActionKind]int{models.ActionConnect: limit}),
		a.store, csv, connect.Config{
			Companies:       a.cfg.Targeting.Companies,
			PerCompanyLimit: a.cfg.Targeting.PerCompanyLimit,
			CompaniesPerRun: a.cfg.Targeting.CompaniesPerRun,
			HopMin:          time.Duration(a.cfg.Targeting.CompanyHopMinMs) * time.Millisecond,
			HopMax:          time.Duration(a.cfg.Targeting.CompanyHopMaxMs) * time.Millisecond,
			NoteTemplate:    a.cfg.Templates.ConnectionNote,
		}, a.log)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx)
}

func (a *app) runMessage(ctx context.Context, d *driver, limit int) (fmt.Stringer, error) {
	csv, err := sink.NewCSV(a.cfg.Output.Dir, models.StageMessage, a.start)
	if err != nil {
		return nil, err
	}
	defer csv.Close()

	gen := llm.New(llm.Options{
		BaseURL:     a.cfg.LLM.BaseURL,
		Model:       a.cfg.LLM.Model,
		Temperature: a.cfg.LLM.Temperature,
		MaxTokens:   a.cfg.LLM.MaxTokens,
		Timeout:     time.Duration(a.cfg.LLM.TimeoutSeconds) * time.Second,
	})
	runner := message.New(d.pl, gen, a.governor(map[models.ActionKind]int{models.ActionMessage: limit}),
		a.store, csv, message.Config{
			Persona:   a.cfg.Templates.Persona,
			Signature: a.cfg.Templates.Signature,
			Limit:     limit,
		}, a.log)
	return runner.Run(ctx)
}

func (a *app) runExtract(ctx context.Context, d *driver) (fmt.Stringer, error) {
	csv, err := sink.NewCSV(a.cfg.Output.Dir, models.StageExtract, a.start)
	if err != nil {
		return nil, err
	}
	defer csv.Close()

	runner := extract.New(d.pl, a.governor(nil), a.store, csv, extract.Config{
		Acknowledgment: a.cfg.Templates.Acknowledgment,
	}, a.log)
	return runner.Run(ctx)
}
