package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/brunobozic/poll-automation-sub004/internal/engine"
	"github.com/brunobozic/poll-automation-sub004/internal/format"
)

var dashboardFlags struct {
	window   string
	jsonOut  bool
	markdown bool
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show recent failures, top failure types, and learning progress",
	RunE:  runDashboard,
}

func init() {
	f := dashboardCmd.Flags()
	f.StringVarP(&dashboardFlags.window, "window", "w", "7d", "Lookback window, e.g. 7d, 24h, 90m")
	f.BoolVar(&dashboardFlags.jsonOut, "json", false, "Print the dashboard as JSON")
	f.BoolVar(&dashboardFlags.markdown, "markdown", false, "Render tables as Markdown")
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	window, err := parseWindow(dashboardFlags.window)
	if err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	dash, err := rt.engine.GetFailureDashboard(cmd.Context(), window)
	if err != nil {
		return fmt.Errorf("build dashboard: %w", err)
	}

	out := cmd.OutOrStdout()
	if dashboardFlags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(dash)
	}

	mode := format.ASCII
	if dashboardFlags.markdown {
		mode = format.Markdown
	}
	now := time.Now()

	fmt.Fprintf(out, "Failure dashboard (last %s)\n\n", dash.Window)

	fmt.Fprintln(out, "Recent failures:")
	recent := format.NewTable(mode)
	recent.Header("ID", "Type", "Site", "Seen", "Last", "Error")
	recent.Columns(
		format.ColumnConfig{Number: 1, Right: true},
		format.ColumnConfig{Number: 4, Right: true},
		format.ColumnConfig{Number: 6, MaxWidth: 60},
	)
	for _, sc := range dash.RecentFailures {
		recent.Row(sc.ID, string(sc.FailureType), sc.SiteID, sc.OccurrenceCount,
			format.FmtAge(sc.LastOccurrence, now), format.Truncate(sc.ErrorMessage, 60))
	}
	fmt.Fprintln(out, recent.String())

	fmt.Fprintln(out, "Top failure types:")
	types := format.NewTable(mode)
	types.Header("Type", "Count")
	types.Columns(format.ColumnConfig{Number: 2, Right: true})
	for _, tc := range dash.TopFailureTypes {
		types.Row(string(tc.FailureType), tc.Count)
	}
	fmt.Fprintln(out, types.String())

	fmt.Fprintln(out, "Learning progress:")
	progress := format.NewTable(mode)
	progress.Header("Date", "Failures", "Analyzed", "Recommendations", "Score")
	progress.Columns(
		format.ColumnConfig{Number: 2, Right: true},
		format.ColumnConfig{Number: 3, Right: true},
		format.ColumnConfig{Number: 4, Right: true},
		format.ColumnConfig{Number: 5, Right: true},
	)
	for _, m := range dash.LearningProgress {
		progress.Row(m.Date, m.TotalFailures, m.AnalyzedFailures,
			m.GeneratedRecommendations, format.FmtConfidence(m.LearningScore))
	}
	fmt.Fprintln(out, progress.String())

	fmt.Fprintln(out, "Pending recommendations:")
	pending := format.NewTable(mode)
	pending.Header("ID", "Type", "Priority", "Target", "Changes")
	pending.Columns(
		format.ColumnConfig{Number: 1, Right: true},
		format.ColumnConfig{Number: 3, Right: true},
		format.ColumnConfig{Number: 5, MaxWidth: 50},
	)
	for _, r := range dash.PendingRecommendations {
		pending.Row(r.ID, string(r.Type), r.PriorityScore, r.TargetComponent,
			format.Truncate(r.SuggestedChanges, 50))
	}
	fmt.Fprintln(out, pending.String())
	return nil
}

// parseWindow accepts a day shorthand like "7d" or any Go duration string.
func parseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return engine.DefaultDashboardWindow, nil
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err == nil {
			if days <= 0 {
				return 0, fmt.Errorf("window must be positive, got %q", s)
			}
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse window %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("window must be positive, got %q", s)
	}
	return d, nil
}
