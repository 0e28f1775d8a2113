package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brunobozic/poll-automation-sub004/internal/format"
)

var statusFlags struct {
	markdown bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store totals and today's learning metric",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.markdown, "markdown", false, "Render tables as Markdown")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	stats, err := rt.engine.Stats()
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	today, err := rt.engine.TodayMetric()
	if err != nil {
		return fmt.Errorf("load today's metric: %w", err)
	}

	mode := format.ASCII
	if statusFlags.markdown {
		mode = format.Markdown
	}
	out := cmd.OutOrStdout()

	tb := format.NewTable(mode)
	tb.Header("Entity", "Count")
	tb.Columns(format.ColumnConfig{Number: 2, Right: true})
	tb.Row("Scenarios", stats.Scenarios)
	tb.Row("Unresolved scenarios", stats.UnresolvedScenarios)
	tb.Row("Analyses", stats.Analyses)
	tb.Row("Recommendations", stats.Recommendations)
	tb.Row("Test specs", stats.Tests)
	tb.Row("Analyzer tokens", format.FmtTokens(stats.TokensTotal))
	fmt.Fprintln(out, tb.String())

	if today == nil {
		fmt.Fprintln(out, "No failures captured today.")
		return nil
	}
	fmt.Fprintf(out, "Today (%s): %d failures, %d analyzed, %d recommendations, learning score %s\n",
		today.Date, today.TotalFailures, today.AnalyzedFailures,
		today.GeneratedRecommendations, format.FmtConfidence(today.LearningScore))
	return nil
}
