package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brunobozic/poll-automation-sub004/internal/engine"
)

func writeContext(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "context.json")
	doc := map[string]any{
		"registration_id": 7,
		"site_id":         42,
		"failure_type":    "timeout",
		"severity_level":  3,
		"error_message":   "Timeout 30000ms exceeded waiting for selector",
		"failed_selector": "#submit",
		"failed_action":   "click",
		"page_url":        "https://site.example/register",
		"step_number":     3,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestCaptureThenStatus(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "failures.db")
	ctxPath := writeContext(t, dir)

	out, err := execute(t, "capture", "--db", db, "-i", ctxPath, "--json")
	if err != nil {
		t.Fatalf("capture: %v\n%s", err, out)
	}
	var summary engine.CycleSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("parse summary: %v\n%s", err, out)
	}
	if summary.ScenarioID == 0 || summary.AnalysisID == 0 {
		t.Fatalf("summary missing ids: %+v", summary)
	}
	if summary.Insights.RootCauseCategory == "" {
		t.Fatalf("no root cause in %+v", summary.Insights)
	}

	out, err = execute(t, "status", "--db", db)
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Scenarios") || !strings.Contains(out, "Today") {
		t.Fatalf("unexpected status output:\n%s", out)
	}
}

func TestDashboardRendersSections(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "failures.db")
	ctxPath := writeContext(t, dir)

	captureFlags.jsonOut = false // flag values persist across Execute calls
	if out, err := execute(t, "capture", "--db", db, "-i", ctxPath); err != nil {
		t.Fatalf("capture: %v\n%s", err, out)
	}

	out, err := execute(t, "dashboard", "--db", db, "--window", "24h")
	if err != nil {
		t.Fatalf("dashboard: %v\n%s", err, out)
	}
	for _, want := range []string{"Recent failures", "Top failure types", "Learning progress", "Pending recommendations", "timeout"} {
		if !strings.Contains(out, want) {
			t.Errorf("dashboard output missing %q:\n%s", want, out)
		}
	}
}

func TestCaptureRejectsBadContext(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "failures.db")
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"failure_type":"nope","error_message":"x"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if out, err := execute(t, "capture", "--db", db, "-i", path); err == nil {
		t.Fatalf("expected failure_type rejection, got:\n%s", out)
	}
}

func TestParseWindow(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "7d", want: 7 * 24 * time.Hour},
		{in: "24h", want: 24 * time.Hour},
		{in: "90m", want: 90 * time.Minute},
		{in: "", want: engine.DefaultDashboardWindow},
		{in: "yesterday", wantErr: true},
		{in: "-3d", wantErr: true},
		{in: "0h", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseWindow(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseWindow(%q): expected error, got %s", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseWindow(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseWindow(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
