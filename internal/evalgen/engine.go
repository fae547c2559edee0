package evalgen

import (
	"fmt"
	"strings"

	"github.com/freeeve/uci"

	"github.com/freeeve/chesscnn/internal/record"
)

// Analyzer evaluates a single position.
type Analyzer interface {
	Analyze(fen string) (record.Eval, error)
	Close() error
}

// EngineConfig configures a UCI engine process.
type EngineConfig struct {
	Path    string // engine binary, e.g. stockfish
	Depth   int    // search depth (default 20)
	HashMB  int    // hash table size (default 256)
	Threads int    // engine threads (default 1)
}

type engineAnalyzer struct {
	engine *uci.Engine
	depth  int
}

// NewEngine starts a UCI engine and configures it for single-PV analysis.
func NewEngine(cfg EngineConfig) (Analyzer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("engine path required")
	}
	if cfg.Depth == 0 {
		cfg.Depth = 20
	}
	if cfg.HashMB == 0 {
		cfg.HashMB = 256
	}
	if cfg.Threads == 0 {
		cfg.Threads = 1
	}

	engine, err := uci.NewEngine(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	opts := uci.Options{
		Hash:    cfg.HashMB,
		Threads: cfg.Threads,
		MultiPV: 1,
		Ponder:  false,
		OwnBook: false,
	}
	if err := engine.SetOptions(opts); err != nil {
		engine.Close()
		return nil, fmt.Errorf("set options: %w", err)
	}
	return &engineAnalyzer{engine: engine, depth: cfg.Depth}, nil
}

// Analyze searches fen to the configured depth and returns the deepest
// result from White's point of view.
func (a *engineAnalyzer) Analyze(fen string) (record.Eval, error) {
	if err := a.engine.SetFEN(fen); err != nil {
		return record.Eval{}, fmt.Errorf("set FEN: %w", err)
	}
	results, err := a.engine.GoDepth(a.depth, uci.HighestDepthOnly)
	if err != nil {
		return record.Eval{}, fmt.Errorf("engine eval: %w", err)
	}
	if len(results.Results) == 0 {
		return record.Eval{}, fmt.Errorf("no results from engine")
	}

	best := results.Results[0]
	for _, r := range results.Results {
		if r.Depth > best.Depth {
			best = r
		}
	}
	return whiteEval(fen, best.Score, best.Mate, best.Depth), nil
}

func (a *engineAnalyzer) Close() error {
	a.engine.Close()
	return nil
}

// whiteEval converts a side-to-move engine score to White's point of view.
func whiteEval(fen string, score int, mate bool, depth int) record.Eval {
	if strings.Contains(fen, " b ") {
		score = -score
	}
	pv := record.PV{}
	if mate {
		pv.Mate = &score
	} else {
		pv.CP = &score
	}
	return record.Eval{PVs: []record.PV{pv}, Depth: depth}
}
