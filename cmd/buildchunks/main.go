package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesscnn/internal/chunk"
	"github.com/freeeve/chesscnn/internal/cliargs"
	"github.com/freeeve/chesscnn/internal/corpus"
	"github.com/freeeve/chesscnn/internal/logx"
)

func main() {
	defaultInput := "./data/lichess_db_eval.jsonl"
	if env := os.Getenv("CHESSCNN_INPUT"); env != "" {
		defaultInput = env
	}
	defaultDataDir := "./data"
	if env := os.Getenv("CHESSCNN_DATA"); env != "" {
		defaultDataDir = env
	}

	var (
		inputPath   = flag.String("input", defaultInput, "Evaluation stream, one JSON record per line (supports .zst)")
		dataDir     = flag.String("data-dir", defaultDataDir, "Data directory; chunks go to <data-dir>/<chunkSize>chunks")
		corpusSize  = flag.Int("corpus-size", cliargs.DefaultCorpusSize, "Number of records in the input stream")
		compression = flag.String("compression", "default", "zstd level for chunk files: fastest, default, better, best")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: buildchunks [options] <numChunks> <chunkSize>")
		flag.PrintDefaults()
	}
	flag.Parse()

	args, err := cliargs.Parse(flag.Args(), *corpusSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "buildchunks: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	logger := logx.NewLogger()
	logger.Info().
		Str("input", *inputPath).
		Str("data_dir", *dataDir).
		Int("num_chunks", args.NumChunks).
		Int("chunk_size", args.ChunkSize).
		Msg("starting build")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, args, *inputPath, *dataDir, *compression); err != nil {
		logger.Error().Err(err).Msg("build failed")
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger zerolog.Logger, args cliargs.Chunks, inputPath, dataDir, compression string) error {
	s, err := chunk.Open(chunk.Config{DataDir: dataDir, ChunkSize: args.ChunkSize, Compression: compression})
	if err != nil {
		return fmt.Errorf("open chunk store: %w", err)
	}
	defer s.Close()
	s.SetLogger(func(format string, a ...any) {
		logger.Debug().Msgf(format, a...)
	})

	if err := s.AcquireLock(); err != nil {
		if errors.Is(err, chunk.ErrLocked) {
			return fmt.Errorf("%w (is another build running?)", err)
		}
		return err
	}
	defer func() {
		if err := s.ReleaseLock(); err != nil {
			logger.Error().Err(err).Msg("release build lock")
		}
	}()
	logger.Info().Str("lock", s.LockFilePath()).Msg("acquired build lock")

	in, err := corpus.OpenInput(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	source := inputPath
	if abs, err := filepath.Abs(inputPath); err == nil {
		source = abs
	}
	b, err := corpus.NewBuilder(corpus.Config{
		NumChunks: args.NumChunks,
		ChunkSize: args.ChunkSize,
		Source:    source,
		Logger:    logger,
	}, s)
	if err != nil {
		return err
	}

	res, err := b.Build(ctx, in)
	if err != nil {
		return err
	}

	onDisk, err := s.Committed()
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}

	if res.Exhausted {
		logger.Warn().
			Int64("processed", res.Processed).
			Int("committed", res.Committed).
			Int("skipped", res.Skipped).
			Int("on_disk", len(onDisk)).
			Int("requested", args.NumChunks).
			Msg("input ended before the requested number of chunks")
		return nil
	}
	logger.Info().
		Int64("processed", res.Processed).
		Int("committed", res.Committed).
		Int("skipped", res.Skipped).
		Int("on_disk", len(onDisk)).
		Str("dir", s.Dir()).
		Msgf("processed %d records", res.Processed)
	return nil
}
