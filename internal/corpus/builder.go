// Package corpus turns a stream of evaluated positions into numbered chunks.
package corpus

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/freeeve/chesscnn/internal/chunk"
	"github.com/freeeve/chesscnn/internal/position"
	"github.com/freeeve/chesscnn/internal/record"
)

// Store is the part of the chunk store the builder writes to.
type Store interface {
	Exists(index int) bool
	Commit(index int, pairs []chunk.Pair) error
	Entry(index int) (chunk.Entry, bool)
	Record(index int, e chunk.Entry) error
}

// Config configures a Builder.
type Config struct {
	NumChunks     int            // number of chunks the corpus should hold
	ChunkSize     int            // pairs per chunk
	Source        string         // input identity stored in the manifest, usually its path
	ProgressEvery time.Duration  // progress log interval (default 10s)
	Logger        zerolog.Logger // Logger
}

// Result summarizes one Build run.
type Result struct {
	RunID     string
	Processed int64 // records encoded by this run
	Committed int   // chunks written by this run
	Skipped   int   // chunks already present
	Exhausted bool  // input ended before NumChunks*ChunkSize records
}

// Builder reads position records and commits them as chunks. A Builder
// owns its record counter and chunk buffer; use one Builder per run.
type Builder struct {
	cfg   Config
	store Store
	log   zerolog.Logger
	runID string

	ctr    int64 // records consumed from the stream, including skipped chunks
	offset int64 // bytes consumed from the stream
	buf    []chunk.Pair
}

// NewBuilder creates a builder writing to store.
func NewBuilder(cfg Config, store Store) (*Builder, error) {
	if cfg.NumChunks < 1 {
		return nil, fmt.Errorf("num chunks must be positive, got %d", cfg.NumChunks)
	}
	if cfg.ChunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ProgressEvery == 0 {
		cfg.ProgressEvery = 10 * time.Second
	}
	runID := uuid.NewString()
	return &Builder{
		cfg:   cfg,
		store: store,
		log:   cfg.Logger.With().Str("run_id", runID).Logger(),
		runID: runID,
		buf:   make([]chunk.Pair, 0, cfg.ChunkSize),
	}, nil
}

// RunID returns the identifier recorded in the manifest for chunks this
// builder commits.
func (b *Builder) RunID() string { return b.runID }

// Build consumes in until NumChunks*ChunkSize records have been accounted
// for or the stream ends. Chunks that already exist are skipped along with
// the records they hold, so chunk k always holds records
// [(k-1)*ChunkSize, k*ChunkSize) of the stream. A trailing partial chunk is
// discarded.
func (b *Builder) Build(ctx context.Context, in io.Reader) (Result, error) {
	res := Result{RunID: b.runID}
	size := int64(b.cfg.ChunkSize)
	total := int64(b.cfg.NumChunks) * size

	if seeker, ok := in.(io.Seeker); ok {
		n, err := b.seekPastCommitted(seeker)
		if err != nil {
			return res, &chunk.IOError{Op: "seek", Index: n + 1, Err: err}
		}
		res.Skipped += n
	}

	r := bufio.NewReaderSize(in, 1<<20)
	startTime := time.Now()
	lastLog := startTime

	b.log.Info().
		Int("num_chunks", b.cfg.NumChunks).
		Int("chunk_size", b.cfg.ChunkSize).
		Int64("start_record", b.ctr).
		Msg("build started")

	for b.ctr < total {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		if b.ctr%size == 0 {
			target := int(b.ctr/size) + 1
			if b.store.Exists(target) {
				n, err := b.skipLines(r, b.cfg.ChunkSize)
				if err != nil {
					return res, &chunk.IOError{Op: "skip", Index: target, Err: err}
				}
				b.ctr += int64(n)
				res.Skipped++
				b.log.Debug().Int("chunk", target).Msg("chunk exists, skipping")
				if n < b.cfg.ChunkSize {
					res.Exhausted = true
					break
				}
				continue
			}
		}

		line, err := b.readLine(r)
		if err == io.EOF {
			res.Exhausted = true
			break
		}
		if err != nil {
			return res, &chunk.IOError{Op: "read", Index: int(b.ctr/size) + 1, Err: err}
		}

		pair, err := encodeLine(line)
		if err != nil {
			return res, fmt.Errorf("record %d: %w", b.ctr, err)
		}
		b.buf = append(b.buf, pair)
		b.ctr++
		res.Processed++

		if len(b.buf) == b.cfg.ChunkSize {
			index := int(b.ctr / size)
			if err := b.commit(index); err != nil {
				return res, err
			}
			res.Committed++
		}

		if time.Since(lastLog) > b.cfg.ProgressEvery {
			elapsed := time.Since(startTime)
			b.log.Info().
				Int64("records", b.ctr).
				Int64("processed", res.Processed).
				Int("committed", res.Committed).
				Int("skipped", res.Skipped).
				Float64("records_per_sec", float64(res.Processed)/elapsed.Seconds()).
				Msg("build progress")
			lastLog = time.Now()
		}
	}

	if len(b.buf) > 0 {
		b.log.Warn().Int("records", len(b.buf)).Msg("discarding partial chunk")
		b.buf = b.buf[:0]
	}

	b.log.Info().
		Int64("records", b.ctr).
		Int64("processed", res.Processed).
		Int("committed", res.Committed).
		Int("skipped", res.Skipped).
		Bool("exhausted", res.Exhausted).
		Dur("elapsed", time.Since(startTime)).
		Msg("build complete")
	return res, nil
}

func (b *Builder) commit(index int) error {
	if err := b.store.Commit(index, b.buf); err != nil {
		return err
	}
	entry := chunk.Entry{
		FirstRecord: b.ctr - int64(len(b.buf)),
		Records:     len(b.buf),
		Source:      b.cfg.Source,
		EndOffset:   b.offset,
		RunID:       b.runID,
		CommittedAt: time.Now().UTC(),
	}
	if err := b.store.Record(index, entry); err != nil {
		b.log.Warn().Err(err).Int("chunk", index).Msg("manifest update failed")
	}
	b.buf = b.buf[:0]
	return nil
}

// seekPastCommitted jumps over the leading run of committed chunks whose
// manifest entries came from the same source, and returns how many were
// skipped.
func (b *Builder) seekPastCommitted(seeker io.Seeker) (int, error) {
	size := int64(b.cfg.ChunkSize)
	last := 0
	var end int64
	for i := 1; i <= b.cfg.NumChunks; i++ {
		if !b.store.Exists(i) {
			break
		}
		e, ok := b.store.Entry(i)
		if !ok || e.Source != b.cfg.Source || e.EndOffset < 0 ||
			e.FirstRecord != int64(i-1)*size || e.Records != b.cfg.ChunkSize {
			break
		}
		last, end = i, e.EndOffset
	}
	if last == 0 {
		return 0, nil
	}
	if _, err := seeker.Seek(end, io.SeekStart); err != nil {
		return 0, err
	}
	b.ctr = int64(last) * size
	b.offset = end
	b.log.Info().Int("chunks", last).Int64("offset", end).Msg("resuming after committed chunks")
	return last, nil
}

// readLine returns the next line without its terminator. A final line with
// no trailing newline is returned as a line; io.EOF means no more lines.
func (b *Builder) readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	b.offset += int64(len(line))
	if err == io.EOF && len(line) > 0 {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r")), nil
}

// skipLines discards up to n lines and returns how many were discarded.
func (b *Builder) skipLines(r *bufio.Reader, n int) (int, error) {
	for i := 0; i < n; i++ {
		read := 0
		for {
			frag, err := r.ReadSlice('\n')
			read += len(frag)
			b.offset += int64(len(frag))
			if errors.Is(err, bufio.ErrBufferFull) {
				continue
			}
			if err == io.EOF {
				if read > 0 {
					return i + 1, nil
				}
				return i, nil
			}
			if err != nil {
				return i, err
			}
			break
		}
	}
	return n, nil
}

func encodeLine(line []byte) (chunk.Pair, error) {
	rec, err := record.Parse(line)
	if err != nil {
		return chunk.Pair{}, err
	}
	board, err := position.Encode(rec.FEN)
	if err != nil {
		return chunk.Pair{}, err
	}
	score, err := rec.Label()
	if err != nil {
		return chunk.Pair{}, err
	}
	return chunk.Pair{Board: board, Score: score}, nil
}
