package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brunobozic/poll-automation-sub004/internal/failure"
	"github.com/brunobozic/poll-automation-sub004/internal/format"
)

var captureFlags struct {
	input    string
	jsonOut  bool
	markdown bool
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run one analysis cycle over a captured failure context",
	Long: `Reads a FailureContext JSON document and runs the full pipeline:
deduplicate into a scenario, classify the root cause, generate
recommendations, and emit test specs. Prints the cycle summary.`,
	RunE: runCapture,
}

func init() {
	f := captureCmd.Flags()
	f.StringVarP(&captureFlags.input, "input", "i", "-", "Failure context JSON file, or - for stdin")
	f.BoolVar(&captureFlags.jsonOut, "json", false, "Print the cycle summary as JSON")
	f.BoolVar(&captureFlags.markdown, "markdown", false, "Render tables as Markdown")
}

func runCapture(cmd *cobra.Command, _ []string) error {
	data, err := readInput(captureFlags.input, cmd.InOrStdin())
	if err != nil {
		return err
	}

	var fctx failure.FailureContext
	if err := json.Unmarshal(data, &fctx); err != nil {
		return fmt.Errorf("parse failure context: %w", err)
	}
	if !fctx.FailureType.Valid() {
		return fmt.Errorf("invalid failure_type %q", fctx.FailureType)
	}
	if fctx.ErrorMessage == "" && fctx.FailedSelector == "" {
		return fmt.Errorf("failure context needs error_message or failed_selector")
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	summary, err := rt.engine.CaptureAndAnalyzeFailure(cmd.Context(), &fctx)
	if err != nil {
		return fmt.Errorf("analysis cycle: %w", err)
	}

	out := cmd.OutOrStdout()
	if captureFlags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	mode := format.ASCII
	if captureFlags.markdown {
		mode = format.Markdown
	}
	tb := format.NewTable(mode)
	tb.Header("Field", "Value")
	tb.Row("Cycle", summary.CycleID)
	tb.Row("Scenario", fmt.Sprintf("#%d", summary.ScenarioID))
	tb.Row("Analysis", fmt.Sprintf("#%d", summary.AnalysisID))
	tb.Row("Root cause", string(summary.Insights.RootCauseCategory))
	tb.Row("Confidence", format.FmtConfidence(summary.Insights.ConfidenceScore))
	tb.Row("Fallback used", summary.Insights.FallbackUsed)
	tb.Row("Deduplicated", summary.Insights.Deduplicated)
	tb.Row("Occurrences", summary.Insights.OccurrenceCount)
	tb.Row("Similar failures", summary.Insights.SimilarFailures)
	tb.Row("Recommendations", formatIDs(summary.RecommendationIDs))
	tb.Row("Test specs", formatIDs(summary.TestIDs))
	fmt.Fprintln(out, tb.String())
	return nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func formatIDs(ids []int64) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return fmt.Sprintf("%d (%s)", len(ids), strings.Join(parts, ", "))
}
