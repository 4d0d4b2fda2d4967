package main

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/yashvoladoddi37/leadflow/internal/config"
	"github.com/yashvoladoddi37/leadflow/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's quota usage and funnel state counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		day := time.Now().Format("2006-01-02")
		quotas := newTable()
		quotas.AppendHeader(table.Row{"Action", "Used today", "Daily limit", "Per-run limit"})
		for _, row := range []struct {
			kind  models.ActionKind
			quota config.Quota
		}{
			{models.ActionConnect, a.cfg.Quotas.Connect},
			{models.ActionMessage, a.cfg.Quotas.Message},
			{models.ActionView, a.cfg.Quotas.View},
		} {
			used, err := a.store.ActionCount(ctx, row.kind, day)
			if err != nil {
				return err
			}
			quotas.AppendRow(table.Row{string(row.kind), used, row.quota.PerDay, row.quota.PerRun})
		}
		quotas.Render()

		counts, err := a.store.StateCounts(ctx)
		if err != nil {
			return err
		}
		funnel := newTable()
		funnel.AppendHeader(table.Row{"Funnel state", "Candidates"})
		for _, state := range []models.CandidateState{
			models.StateDiscovered,
			models.StateConnectionSent,
			models.StateConnectionAccepted,
			models.StateMessaged,
			models.StateContactExtracted,
			models.StateRejected,
		} {
			funnel.AppendRow(table.Row{string(state), counts[state]})
		}
		funnel.Render()
		return nil
	},
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
