// Package evalgen labels positions with a UCI engine and writes them in
// the line format the corpus builder reads.
package evalgen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/chesscnn/internal/record"
)

// Config configures a Labeler.
type Config struct {
	Workers     int            // engine processes (default 1)
	QueueSize   int            // buffered positions per worker (default 16)
	LogInterval time.Duration  // progress log interval (default 30s)
	Logger      zerolog.Logger // Logger
}

// Stats counts the work done by a Run.
type Stats struct {
	Positions int64 // positions handed to workers
	Labeled   int64 // records written
	Failed    int64 // positions the engine could not evaluate
}

// Labeler runs a pool of analyzers over a position source. Output order
// follows completion order, not source order.
type Labeler struct {
	cfg         Config
	newAnalyzer func() (Analyzer, error)
	log         zerolog.Logger
}

// NewLabeler creates a labeler; newAnalyzer is called once per worker.
func NewLabeler(cfg Config, newAnalyzer func() (Analyzer, error)) *Labeler {
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 16
	}
	if cfg.LogInterval == 0 {
		cfg.LogInterval = 30 * time.Second
	}
	return &Labeler{cfg: cfg, newAnalyzer: newAnalyzer, log: cfg.Logger}
}

// Run labels every position from src and writes one JSON record per line
// to w. Engine failures on single positions are logged and counted; a
// failure to start an engine, read the source, or write output stops the
// run.
func (l *Labeler) Run(ctx context.Context, src Source, w io.Writer) (Stats, error) {
	var stats Stats
	g, gctx := errgroup.WithContext(ctx)

	fens := make(chan string, l.cfg.Workers*l.cfg.QueueSize)
	results := make(chan record.Record, l.cfg.Workers*l.cfg.QueueSize)

	g.Go(func() error {
		defer close(fens)
		return src(gctx, func(fen string) error {
			select {
			case fens <- fen:
				atomic.AddInt64(&stats.Positions, 1)
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	var workers sync.WaitGroup
	for i := 0; i < l.cfg.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			return l.runWorker(gctx, i, fens, results, &stats)
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	g.Go(func() error {
		enc := json.NewEncoder(w)
		lastLog := time.Now()
		for rec := range results {
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
			n := atomic.AddInt64(&stats.Labeled, 1)
			if time.Since(lastLog) > l.cfg.LogInterval {
				l.log.Info().
					Int64("labeled", n).
					Int64("failed", atomic.LoadInt64(&stats.Failed)).
					Int64("queued", atomic.LoadInt64(&stats.Positions)).
					Msg("labeling progress")
				lastLog = time.Now()
			}
		}
		return nil
	})

	err := g.Wait()
	// drain records left behind by an early error
	for range results {
	}
	return stats, err
}

func (l *Labeler) runWorker(ctx context.Context, workerID int, fens <-chan string, results chan<- record.Record, stats *Stats) error {
	log := l.log.With().Int("worker_id", workerID).Logger()

	analyzer, err := l.newAnalyzer()
	if err != nil {
		return fmt.Errorf("worker %d: %w", workerID, err)
	}
	defer analyzer.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fen, ok := <-fens:
			if !ok {
				return nil
			}
			eval, err := analyzer.Analyze(fen)
			if err != nil {
				atomic.AddInt64(&stats.Failed, 1)
				log.Warn().Err(err).Str("fen", fen).Msg("eval failed")
				continue
			}
			select {
			case results <- record.Record{FEN: fen, Evals: []record.Eval{eval}}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
