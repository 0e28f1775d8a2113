// Package mcp exposes the failure engine over the Model Context Protocol
// so agent tooling can push captures and read the learning state.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/brunobozic/poll-automation-sub004/internal/engine"
	"github.com/brunobozic/poll-automation-sub004/internal/failure"
	"github.com/brunobozic/poll-automation-sub004/internal/store"
)

// Server wraps the MCP SDK server around one engine instance.
type Server struct {
	MCPServer *sdkmcp.Server

	engine *engine.Engine
}

// NewServer creates an MCP server with the capture and reporting tools.
func NewServer(e *engine.Engine, version string) *Server {
	s := &Server{engine: e}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "failure-engine", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "capture_failure",
		Description: "Capture one automation failure context (JSON) and run the full analysis cycle: deduplicate, classify, recommend, generate test specs.",
	}, s.handleCaptureFailure)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "failure_dashboard",
		Description: "Aggregate the failure dashboard over a lookback window: recent failures, top failure types, learning progress, pending recommendations.",
	}, s.handleDashboard)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "engine_status",
		Description: "Report store totals and today's learning metric row.",
	}, s.handleStatus)
}

// --- Tool input/output types ---

type captureFailureInput struct {
	ContextJSON string `json:"context_json" jsonschema:"FailureContext as a JSON string (registration_id, site_id, failure_type, error_message, page_url, ...)"`
}

type captureFailureOutput struct {
	CycleID           string  `json:"cycle_id"`
	ScenarioID        int64   `json:"scenario_id"`
	AnalysisID        int64   `json:"analysis_id"`
	RootCauseCategory string  `json:"root_cause_category"`
	ConfidenceScore   float64 `json:"confidence_score"`
	FallbackUsed      bool    `json:"fallback_used"`
	Deduplicated      bool    `json:"deduplicated"`
	OccurrenceCount   int     `json:"occurrence_count"`
	RecommendationIDs []int64 `json:"recommendation_ids"`
	TestIDs           []int64 `json:"test_ids"`
}

type dashboardInput struct {
	WindowHours int `json:"window_hours,omitempty" jsonschema:"lookback window in hours (default 168 = 7 days)"`
}

type dashboardOutput struct {
	Dashboard *engine.Dashboard `json:"dashboard"`
}

type statusInput struct{}

type statusOutput struct {
	Stats *store.Stats         `json:"stats"`
	Today *failure.DailyMetric `json:"today,omitempty"`
}

// --- Tool handlers ---

func (s *Server) handleCaptureFailure(ctx context.Context, _ *sdkmcp.CallToolRequest, input captureFailureInput) (*sdkmcp.CallToolResult, captureFailureOutput, error) {
	if input.ContextJSON == "" {
		return nil, captureFailureOutput{}, fmt.Errorf("context_json is required")
	}
	var fctx failure.FailureContext
	if err := json.Unmarshal([]byte(input.ContextJSON), &fctx); err != nil {
		return nil, captureFailureOutput{}, fmt.Errorf("context_json is not a valid FailureContext: %w", err)
	}
	if !fctx.FailureType.Valid() {
		return nil, captureFailureOutput{}, fmt.Errorf("unknown failure_type %q", fctx.FailureType)
	}

	sum, err := s.engine.CaptureAndAnalyzeFailure(ctx, &fctx)
	if err != nil {
		return nil, captureFailureOutput{}, fmt.Errorf("capture_failure: %w", err)
	}
	return nil, captureFailureOutput{
		CycleID:           sum.CycleID,
		ScenarioID:        sum.ScenarioID,
		AnalysisID:        sum.AnalysisID,
		RootCauseCategory: string(sum.Insights.RootCauseCategory),
		ConfidenceScore:   sum.Insights.ConfidenceScore,
		FallbackUsed:      sum.Insights.FallbackUsed,
		Deduplicated:      sum.Insights.Deduplicated,
		OccurrenceCount:   sum.Insights.OccurrenceCount,
		RecommendationIDs: sum.RecommendationIDs,
		TestIDs:           sum.TestIDs,
	}, nil
}

func (s *Server) handleDashboard(ctx context.Context, _ *sdkmcp.CallToolRequest, input dashboardInput) (*sdkmcp.CallToolResult, dashboardOutput, error) {
	window := engine.DefaultDashboardWindow
	if input.WindowHours > 0 {
		window = time.Duration(input.WindowHours) * time.Hour
	}
	d, err := s.engine.GetFailureDashboard(ctx, window)
	if err != nil {
		return nil, dashboardOutput{}, fmt.Errorf("failure_dashboard: %w", err)
	}
	return nil, dashboardOutput{Dashboard: d}, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, _ statusInput) (*sdkmcp.CallToolResult, statusOutput, error) {
	stats, err := s.engine.Stats()
	if err != nil {
		return nil, statusOutput{}, fmt.Errorf("engine_status: %w", err)
	}
	out := statusOutput{Stats: stats}
	if today, err := s.engine.TodayMetric(); err == nil {
		out.Today = today
	}
	return nil, out, nil
}

// Run serves MCP over the given transport until ctx is canceled.
func (s *Server) Run(ctx context.Context, transport sdkmcp.Transport) error {
	return s.MCPServer.Run(ctx, transport)
}
