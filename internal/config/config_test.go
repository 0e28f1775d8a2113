package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	body := `
db_path: /var/lib/engine/failures.db
analyzer_url: http://analyzer:8000
analyzer_timeout: 10s
similar_limit: 5
listen_addr: ":9090"
log_level: debug
log_format: json
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := &Config{
		DBPath:          "/var/lib/engine/failures.db",
		AnalyzerURL:     "http://analyzer:8000",
		AnalyzerTimeout: 10 * time.Second,
		SimilarLimit:    5,
		ListenAddr:      ":9090",
		LogLevel:        "debug",
		LogFormat:       "json",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("analyzer_url: http://analyzer:8000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AnalyzerURL != "http://analyzer:8000" {
		t.Errorf("analyzer url %q", cfg.AnalyzerURL)
	}
	if cfg.SimilarLimit != 10 || cfg.AnalyzerTimeout != 30*time.Second {
		t.Errorf("defaults not preserved: %+v", cfg)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("db_path: from-file.db\nsimilar_limit: 5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvDBPath, "from-env.db")
	t.Setenv(EnvAnalyzerTmout, "5s")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "from-env.db" {
		t.Errorf("db path %q, want env value", cfg.DBPath)
	}
	if cfg.AnalyzerTimeout != 5*time.Second {
		t.Errorf("timeout %s, want 5s", cfg.AnalyzerTimeout)
	}
	if cfg.SimilarLimit != 5 {
		t.Errorf("similar limit %d, want file value 5", cfg.SimilarLimit)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		prep func(t *testing.T) string
	}{
		{"missing explicit file", func(t *testing.T) string {
			return filepath.Join(t.TempDir(), "absent.yaml")
		}},
		{"bad yaml", func(t *testing.T) string {
			p := filepath.Join(t.TempDir(), "engine.yaml")
			os.WriteFile(p, []byte("similar_limit: [broken"), 0644)
			return p
		}},
		{"bad env duration", func(t *testing.T) string {
			t.Setenv(EnvAnalyzerTmout, "not-a-duration")
			return ""
		}},
		{"negative similar limit", func(t *testing.T) string {
			t.Setenv(EnvSimilarLimit, "-2")
			return ""
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(tc.prep(t)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
