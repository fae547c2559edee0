// Package trainer feeds committed chunks to a model one chunk at a time.
package trainer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/chewxy/math32"
	"github.com/rs/zerolog"

	"github.com/freeeve/chesscnn/internal/chunk"
)

// Source is where the trainer reads chunks from.
type Source interface {
	Exists(index int) bool
	Load(index int) ([]chunk.Pair, error)
}

// Config configures a Trainer.
type Config struct {
	NumChunks     int
	ChunkSize     int
	Epochs        int     // passes over each chunk's training split (default 1)
	BatchSize     int     // default 256
	TrainFraction float64 // share of each chunk used for training (default 0.9)
	Seed          int64
	LogEvery      int // log training loss every N batches (default 10)
	Logger        zerolog.Logger
}

// Trainer trains a model over chunks 1..NumChunks in order.
type Trainer struct {
	cfg    Config
	src    Source
	log    zerolog.Logger
	rnd    *rand.Rand
	split  int
	batchN int
}

// New creates a trainer reading from src.
func New(cfg Config, src Source) (*Trainer, error) {
	if cfg.NumChunks < 1 {
		return nil, fmt.Errorf("num chunks must be positive, got %d", cfg.NumChunks)
	}
	if cfg.ChunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 1
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 256
	}
	if cfg.TrainFraction == 0 {
		cfg.TrainFraction = 0.9
	}
	if cfg.LogEvery == 0 {
		cfg.LogEvery = 10
	}
	if cfg.Epochs < 0 || cfg.BatchSize < 0 {
		return nil, fmt.Errorf("epochs and batch size must be positive")
	}
	if cfg.TrainFraction <= 0 || cfg.TrainFraction >= 1 {
		return nil, fmt.Errorf("train fraction must be in (0, 1), got %g", cfg.TrainFraction)
	}

	split := int(math.Floor(cfg.TrainFraction * float64(cfg.ChunkSize)))
	if split < 1 || split >= cfg.ChunkSize {
		return nil, fmt.Errorf("train fraction %g leaves an empty split for chunk size %d", cfg.TrainFraction, cfg.ChunkSize)
	}

	return &Trainer{
		cfg:   cfg,
		src:   src,
		log:   cfg.Logger,
		rnd:   rand.New(rand.NewSource(cfg.Seed)),
		split: split,
	}, nil
}

// Split returns the number of pairs per chunk used for training; the rest
// are held out for evaluation.
func (t *Trainer) Split() int { return t.split }

// Preflight checks that every chunk the run needs has been committed.
func (t *Trainer) Preflight() error {
	for i := 1; i <= t.cfg.NumChunks; i++ {
		if !t.src.Exists(i) {
			return &MissingChunkError{Index: i}
		}
	}
	return nil
}

// Train runs the preflight check and then trains model on each chunk in
// order. The model's parameters carry over from one chunk to the next.
// Metrics collected before an error are returned with it.
func (t *Trainer) Train(ctx context.Context, model Model) (*Metrics, error) {
	m := &Metrics{}
	if err := t.Preflight(); err != nil {
		return m, err
	}

	startTime := time.Now()
	t.log.Info().
		Int("num_chunks", t.cfg.NumChunks).
		Int("chunk_size", t.cfg.ChunkSize).
		Int("train", t.split).
		Int("eval", t.cfg.ChunkSize-t.split).
		Int("batch_size", t.cfg.BatchSize).
		Int("epochs", t.cfg.Epochs).
		Msg("training started")

	for index := 1; index <= t.cfg.NumChunks; index++ {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		pairs, err := t.src.Load(index)
		if err != nil {
			return m, err
		}
		if len(pairs) != t.cfg.ChunkSize {
			return m, fmt.Errorf("chunk %d has %d pairs, want %d", index, len(pairs), t.cfg.ChunkSize)
		}

		if err := t.trainChunk(ctx, model, index, pairs[:t.split], m); err != nil {
			return m, err
		}
		loss, err := t.evalChunk(ctx, model, pairs[t.split:])
		if err != nil {
			return m, fmt.Errorf("evaluate chunk %d: %w", index, err)
		}
		m.Eval = append(m.Eval, ChunkLoss{Chunk: index, Samples: len(pairs) - t.split, Loss: loss})

		t.log.Info().
			Int("chunk", index).
			Float32("eval_loss", loss).
			Int("batches", t.batchN).
			Msg("chunk complete")
	}

	t.log.Info().
		Int("batches", t.batchN).
		Dur("elapsed", time.Since(startTime)).
		Msg("training complete")
	return m, nil
}

func (t *Trainer) trainChunk(ctx context.Context, model Model, index int, train []chunk.Pair, m *Metrics) error {
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		t.shuffle(train)
		for start := 0; start < len(train); start += t.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+t.cfg.BatchSize, len(train))
			x, y := Batch(train[start:end])
			loss, err := model.Update(x, y)
			if err != nil {
				return fmt.Errorf("train chunk %d: %w", index, err)
			}
			t.batchN++
			if math32.IsNaN(loss) || math32.IsInf(loss, 0) {
				return fmt.Errorf("chunk %d batch %d: loss %v: %w", index, t.batchN, loss, ErrDiverged)
			}
			m.Train = append(m.Train, BatchLoss{Batch: t.batchN, Chunk: index, Epoch: epoch, Loss: loss})

			if t.batchN%t.cfg.LogEvery == 0 {
				t.log.Debug().
					Int("chunk", index).
					Int("epoch", epoch).
					Int("batch", t.batchN).
					Float32("loss", loss).
					Msg("train progress")
			}
		}
	}
	return nil
}

// evalChunk returns the mean batch loss over the held-out pairs.
func (t *Trainer) evalChunk(ctx context.Context, model Model, eval []chunk.Pair) (float32, error) {
	t.shuffle(eval)
	var total float32
	batches := 0
	for start := 0; start < len(eval); start += t.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		end := min(start+t.cfg.BatchSize, len(eval))
		x, y := Batch(eval[start:end])
		loss, err := model.Evaluate(x, y)
		if err != nil {
			return 0, err
		}
		if math32.IsNaN(loss) || math32.IsInf(loss, 0) {
			return 0, fmt.Errorf("loss %v: %w", loss, ErrDiverged)
		}
		total += loss
		batches++
	}
	return total / float32(batches), nil
}

func (t *Trainer) shuffle(pairs []chunk.Pair) {
	t.rnd.Shuffle(len(pairs), func(i, j int) {
		pairs[i], pairs[j] = pairs[j], pairs[i]
	})
}
