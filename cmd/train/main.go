package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesscnn/internal/chunk"
	"github.com/freeeve/chesscnn/internal/cliargs"
	"github.com/freeeve/chesscnn/internal/logx"
	"github.com/freeeve/chesscnn/internal/net"
	"github.com/freeeve/chesscnn/internal/trainer"
)

type options struct {
	dataDir    string
	epochs     int
	batchSize  int
	lr         float64
	hidden     int
	split      float64
	seed       int64
	metricsDir string
	modelIn    string
	modelOut   string
	probe      string
}

func main() {
	defaultDataDir := "./data"
	if env := os.Getenv("CHESSCNN_DATA"); env != "" {
		defaultDataDir = env
	}

	var opts options
	flag.StringVar(&opts.dataDir, "data-dir", defaultDataDir, "Data directory holding <chunkSize>chunks")
	flag.IntVar(&opts.epochs, "epochs", 1, "Passes over each chunk's training split")
	flag.IntVar(&opts.batchSize, "batch-size", 256, "Positions per batch")
	flag.Float64Var(&opts.lr, "lr", 1e-4, "Adam learning rate")
	flag.IntVar(&opts.hidden, "hidden", 256, "Hidden layer width")
	flag.Float64Var(&opts.split, "split", 0.9, "Share of each chunk used for training")
	flag.Int64Var(&opts.seed, "seed", 1, "Seed for weight init and shuffling")
	flag.StringVar(&opts.metricsDir, "metrics-dir", ".", "Directory for train_loss.csv and eval_loss.csv")
	flag.StringVar(&opts.modelIn, "model-in", "", "Continue training a saved network")
	flag.StringVar(&opts.modelOut, "model-out", "model.json", "Where to save the trained network (empty = don't save)")
	flag.StringVar(&opts.probe, "probe", "", "Semicolon-separated FENs to evaluate after training")
	corpusSize := flag.Int("corpus-size", cliargs.DefaultCorpusSize, "Number of records in the input stream")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: train [options] <numChunks> <chunkSize>")
		flag.PrintDefaults()
	}
	flag.Parse()

	args, err := cliargs.Parse(flag.Args(), *corpusSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "train: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	logger := logx.NewLogger()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, args, opts); err != nil {
		logger.Error().Err(err).Msg("training failed")
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger zerolog.Logger, args cliargs.Chunks, opts options) error {
	s, err := chunk.Open(chunk.Config{DataDir: opts.dataDir, ChunkSize: args.ChunkSize, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("open chunk store: %w", err)
	}
	defer s.Close()
	if s.IsLocked() {
		logger.Warn().Str("lock", s.LockFilePath()).Msg("a chunk build is in progress")
	}

	tr, err := trainer.New(trainer.Config{
		NumChunks:     args.NumChunks,
		ChunkSize:     args.ChunkSize,
		Epochs:        opts.epochs,
		BatchSize:     opts.batchSize,
		TrainFraction: opts.split,
		Seed:          opts.seed,
		Logger:        logger,
	}, s)
	if err != nil {
		return err
	}

	var model *net.Network
	if opts.modelIn != "" {
		model, err = net.Load(opts.modelIn)
		if err != nil {
			return err
		}
		model.LearningRate = opts.lr
		logger.Info().Str("path", opts.modelIn).Int("hidden", model.Hidden).Msg("loaded network")
	} else {
		model = net.New(net.Config{Hidden: opts.hidden, LearningRate: opts.lr, Seed: opts.seed})
	}

	metrics, trainErr := tr.Train(ctx, model)

	// keep whatever was measured, even after a failure
	if len(metrics.Train) > 0 || len(metrics.Eval) > 0 {
		if err := metrics.WriteCSV(opts.metricsDir); err != nil {
			logger.Error().Err(err).Msg("write metrics")
		} else {
			logger.Info().
				Str("dir", opts.metricsDir).
				Int("batches", len(metrics.Train)).
				Int("chunks", len(metrics.Eval)).
				Msg("wrote metrics")
		}
	}
	if trainErr != nil {
		return trainErr
	}

	if opts.modelOut != "" {
		if err := model.Save(opts.modelOut); err != nil {
			return err
		}
		logger.Info().Str("path", opts.modelOut).Msg("saved network")
	}

	if opts.probe != "" {
		fens := strings.Split(opts.probe, ";")
		values, err := trainer.PredictFENs(model, fens)
		if err != nil {
			return fmt.Errorf("probe: %w", err)
		}
		for i, fen := range fens {
			logger.Info().Str("fen", strings.TrimSpace(fen)).Float32("value", values[i]).Msg("probe")
		}
	}
	return nil
}
