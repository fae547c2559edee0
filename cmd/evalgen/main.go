package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/klauspost/compress/zstd"

	"github.com/freeeve/chesscnn/internal/evalgen"
	"github.com/freeeve/chesscnn/internal/logx"
)

func main() {
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}

	var (
		stockfishPath = flag.String("stockfish", defaultStockfish, "path to Stockfish executable")
		fensPath      = flag.String("fens", "", "File with one FEN per line")
		pgnPath       = flag.String("pgn", "", "PGN file to take positions from (supports .zst)")
		outputPath    = flag.String("out", "", "Output file, one JSON record per line (.zst to compress)")
		depth         = flag.Int("depth", 20, "Stockfish search depth")
		threads       = flag.Int("threads", 1, "Stockfish threads per worker")
		hashMB        = flag.Int("hash", 256, "Stockfish hash MB per worker")
		workers       = flag.Int("workers", 4, "number of Stockfish processes")
		ratingMin     = flag.Int("rating-min", 0, "PGN: rating floor for both players")
		minPly        = flag.Int("min-ply", 0, "PGN: skip the first N plies of each game")
		maxPly        = flag.Int("max-ply", 0, "PGN: stop each game after N plies (0 = whole game)")
	)
	flag.Parse()

	if *outputPath == "" || (*fensPath == "") == (*pgnPath == "") {
		fmt.Fprintln(os.Stderr, "Usage: evalgen (--fens <file> | --pgn <file.pgn[.zst]>) --out <file.jsonl[.zst]> [options]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger := logx.NewLogger()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var src evalgen.Source
	var skipped int64
	if *fensPath != "" {
		f, err := os.Open(*fensPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("open FEN file")
		}
		defer f.Close()
		src = evalgen.FENSource(f, &skipped)
	} else {
		src = evalgen.PGNSource(*pgnPath, evalgen.PGNConfig{RatingMin: *ratingMin, MinPly: *minPly, MaxPly: *maxPly})
	}

	out, err := createOutput(*outputPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("create output")
	}

	engineCfg := evalgen.EngineConfig{Path: *stockfishPath, Depth: *depth, HashMB: *hashMB, Threads: *threads}
	l := evalgen.NewLabeler(evalgen.Config{Workers: *workers, Logger: logger}, func() (evalgen.Analyzer, error) {
		return evalgen.NewEngine(engineCfg)
	})

	logger.Info().
		Str("stockfish", *stockfishPath).
		Int("depth", *depth).
		Int("workers", *workers).
		Str("out", *outputPath).
		Msg("labeling started")

	stats, runErr := l.Run(ctx, src, out)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		logger.Fatal().Err(runErr).Int64("labeled", stats.Labeled).Msg("labeling failed")
	}

	logger.Info().
		Int64("positions", stats.Positions).
		Int64("labeled", stats.Labeled).
		Int64("failed", stats.Failed).
		Int64("skipped_fens", skipped).
		Msg("labeling complete")
}

// output buffers writes and optionally compresses them.
type output struct {
	f   *os.File
	zw  *zstd.Encoder
	buf *bufio.Writer
}

func createOutput(path string) (*output, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	o := &output{f: f}
	var w io.Writer = f
	if strings.HasSuffix(path, ".zst") {
		o.zw, err = zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		w = o.zw
	}
	o.buf = bufio.NewWriterSize(w, 1<<20)
	return o, nil
}

func (o *output) Write(p []byte) (int, error) { return o.buf.Write(p) }

func (o *output) Close() error {
	if err := o.buf.Flush(); err != nil {
		o.f.Close()
		return err
	}
	if o.zw != nil {
		if err := o.zw.Close(); err != nil {
			o.f.Close()
			return err
		}
	}
	return o.f.Close()
}
