package cmd

import (
	"context"
	"fmt"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/webitel/stagehub/internal/registry"
)

// RunDashboard renders a live terminal view of registry.Stats() until
// ctx is cancelled or the operator presses q/Ctrl-C (SPEC_FULL.md §4,
// supplemented operator-facing stats surface -- distinct from the
// out-of-scope HTTP admin API).
func RunDashboard(ctx context.Context, r *registry.Registry) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("stats: termui init: %w", err)
	}
	defer ui.Close()

	summary := widgets.NewParagraph()
	summary.Title = "stagehub"
	summary.SetRect(0, 0, 60, 5)

	table := widgets.NewTable()
	table.Title = "Stages"
	table.RowSeparator = false
	table.SetRect(0, 5, 100, 30)

	render := func() {
		stats := r.Stats()
		summary.Text = fmt.Sprintf("stages=%d actors=%d connections=%d",
			stats.TotalStages, stats.TotalActors, stats.TotalConnections)

		rows := [][]string{{"stage_id", "type", "state", "actors", "depth", "running"}}
		for _, s := range stats.Stages {
			rows = append(rows, []string{
				fmt.Sprintf("%d", s.StageID),
				s.StageType,
				s.State.String(),
				fmt.Sprintf("%d", s.ActorCount),
				fmt.Sprintf("%d", s.MailboxDepth),
				fmt.Sprintf("%t", s.Running),
			})
		}
		table.Rows = rows

		ui.Render(summary, table)
	}

	render()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	events := ui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			}
		case <-ticker.C:
			render()
		}
	}
}
