package main

import (
	"fmt"

	"github.com/brunobozic/poll-automation-sub004/internal/analyzer"
	"github.com/brunobozic/poll-automation-sub004/internal/classify"
	"github.com/brunobozic/poll-automation-sub004/internal/config"
	"github.com/brunobozic/poll-automation-sub004/internal/engine"
	"github.com/brunobozic/poll-automation-sub004/internal/logging"
	"github.com/brunobozic/poll-automation-sub004/internal/store"
)

// runtime bundles everything a command needs after startup. llm is nil when
// no analyzer service is configured; the heuristic classifier runs instead.
type runtime struct {
	cfg    *config.Config
	store  *store.SqlStore
	engine *engine.Engine
	llm    *analyzer.LLMClient
}

// newRuntime resolves config (file, env, then flags), initializes logging,
// opens the store, and wires the engine.
func newRuntime() (*runtime, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return nil, err
	}
	if rootFlags.dbPath != "" {
		cfg.DBPath = rootFlags.dbPath
	}
	if rootFlags.logLevel != "" {
		cfg.LogLevel = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		cfg.LogFormat = rootFlags.logFormat
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logging.Init(level, cfg.LogFormat)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	rt := &runtime{cfg: cfg, store: st}

	var an analyzer.Analyzer
	if cfg.AnalyzerURL != "" {
		llm, err := analyzer.NewLLMClient(cfg.AnalyzerURL, analyzer.WithTimeout(cfg.AnalyzerTimeout))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("build analyzer client: %w", err)
		}
		rt.llm = llm
		an = llm
	} else {
		an = analyzer.NewHeuristicAnalyzer()
	}

	rt.engine = engine.New(st, an,
		classify.WithSimilarLimit(cfg.SimilarLimit),
		classify.WithTimeout(cfg.AnalyzerTimeout),
	)
	return rt, nil
}

func (r *runtime) Close() {
	if r.store != nil {
		_ = r.store.Close()
	}
}
