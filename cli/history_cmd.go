package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sebastianrcnt/learnus-bot/config"
	"github.com/sebastianrcnt/learnus-bot/history"
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fabd2f"))
	styleFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("#fb4934"))
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8ec07c"))
)

func newHistoryCmd(app *App, envFile *string) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs or the videos of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			if runID != "" {
				outcomes, err := store.Outcomes(ctx, runID)
				if err != nil {
					return err
				}
				printOutcomes(cmd.OutOrStdout(), outcomes)
				return nil
			}

			runs, err := store.Runs(ctx, limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show the videos of this run")

	return cmd
}

func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}
	fmt.Fprintln(w, styleHeader.Render(fmt.Sprintf("%-36s  %-8s  %-19s  %-8s  %6s  %s", "RUN", "MODE", "STARTED", "DURATION", "VIDEOS", "STATUS")))
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%-36s  %-8s  %-19s  %-8s  %6d  %s\n",
			r.ID, r.Mode, r.StartedAt.Local().Format("2006-01-02 15:04:05"), duration, r.Outcomes, renderStatus(r.Status, r.Error))
	}
}

func printOutcomes(w io.Writer, outcomes []history.Outcome) {
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "No videos recorded for this run.")
		return
	}
	fmt.Fprintln(w, styleHeader.Render(fmt.Sprintf("%-10s  %-24s  %s", "STATUS", "COURSE", "VIDEO")))
	for _, o := range outcomes {
		line := fmt.Sprintf("%-10s  %-24s  %s", o.Status, clip(o.Course, 24), o.Vod)
		if o.Detail != "" {
			line += "  (" + o.Detail + ")"
		}
		switch o.Status {
		case history.StatusFailed, history.StatusStalled:
			line = styleFailed.Render(line)
		}
		fmt.Fprintln(w, line)
	}
}

func renderStatus(status, errMsg string) string {
	switch status {
	case "ok":
		return styleOK.Render(status)
	case "failed":
		first, _, _ := strings.Cut(errMsg, "\n")
		return styleFailed.Render(status + ": " + first)
	default:
		return status
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
