package evalgen

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chesscnn/internal/record"
)

// fakeAnalyzer scores a position by the length of its FEN and fails on
// FENs containing "fail".
type fakeAnalyzer struct {
	mu     *sync.Mutex
	closed *int
}

func (a *fakeAnalyzer) Analyze(fen string) (record.Eval, error) {
	if strings.Contains(fen, "fail") {
		return record.Eval{}, errors.New("engine crashed")
	}
	return whiteEval(fen, len(fen), false, 12), nil
}

func (a *fakeAnalyzer) Close() error {
	a.mu.Lock()
	*a.closed++
	a.mu.Unlock()
	return nil
}

func fakeFactory(closed *int) func() (Analyzer, error) {
	mu := &sync.Mutex{}
	return func() (Analyzer, error) {
		return &fakeAnalyzer{mu: mu, closed: closed}, nil
	}
}

func sliceSource(fens ...string) Source {
	return func(ctx context.Context, emit func(string) error) error {
		for _, f := range fens {
			if err := emit(f); err != nil {
				return err
			}
		}
		return nil
	}
}

func readRecords(t *testing.T, data []byte) map[string]int32 {
	t.Helper()
	out := make(map[string]int32)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		rec, err := record.Parse(sc.Bytes())
		require.NoError(t, err)
		score, err := rec.Label()
		require.NoError(t, err)
		out[rec.FEN] = score
	}
	return out
}

const (
	startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	blackFEN = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	endFEN   = "4k3/8/8/8/8/8/4P3/4K3 w - - 0 1"
)

func TestRunLabelsAllPositions(t *testing.T) {
	closed := 0
	l := NewLabeler(Config{Workers: 3, Logger: zerolog.Nop()}, fakeFactory(&closed))

	var out bytes.Buffer
	stats, err := l.Run(context.Background(), sliceSource(startFEN, blackFEN, endFEN), &out)
	require.NoError(t, err)

	assert.Equal(t, Stats{Positions: 3, Labeled: 3}, stats)
	assert.Equal(t, 3, closed)

	got := readRecords(t, out.Bytes())
	assert.Equal(t, map[string]int32{
		startFEN: int32(len(startFEN)),
		blackFEN: -int32(len(blackFEN)),
		endFEN:   int32(len(endFEN)),
	}, got)
}

func TestRunCountsFailures(t *testing.T) {
	closed := 0
	l := NewLabeler(Config{Workers: 2, Logger: zerolog.Nop()}, fakeFactory(&closed))

	var out bytes.Buffer
	stats, err := l.Run(context.Background(), sliceSource(startFEN, "fail", endFEN), &out)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Positions)
	assert.Equal(t, int64(2), stats.Labeled)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Len(t, readRecords(t, out.Bytes()), 2)
}

func TestRunEngineStartFailure(t *testing.T) {
	boom := errors.New("no such engine")
	l := NewLabeler(Config{Workers: 2, Logger: zerolog.Nop()}, func() (Analyzer, error) { return nil, boom })

	_, err := l.Run(context.Background(), sliceSource(startFEN, endFEN), &bytes.Buffer{})
	assert.ErrorIs(t, err, boom)
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRunWriteFailure(t *testing.T) {
	closed := 0
	l := NewLabeler(Config{Workers: 2, Logger: zerolog.Nop()}, fakeFactory(&closed))

	fens := make([]string, 200)
	for i := range fens {
		fens[i] = endFEN
	}
	_, err := l.Run(context.Background(), sliceSource(fens...), failWriter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRunCanceled(t *testing.T) {
	closed := 0
	l := NewLabeler(Config{Workers: 2, Logger: zerolog.Nop()}, fakeFactory(&closed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	endless := func(ctx context.Context, emit func(string) error) error {
		for {
			if err := emit(endFEN); err != nil {
				return err
			}
		}
	}
	_, err := l.Run(ctx, endless, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWhiteEval(t *testing.T) {
	e := whiteEval(blackFEN, 35, false, 20)
	require.Len(t, e.PVs, 1)
	require.NotNil(t, e.PVs[0].CP)
	assert.Equal(t, -35, *e.PVs[0].CP)
	assert.Nil(t, e.PVs[0].Mate)
	assert.Equal(t, 20, e.Depth)

	e = whiteEval(startFEN, -3, true, 20)
	require.NotNil(t, e.PVs[0].Mate)
	assert.Equal(t, -3, *e.PVs[0].Mate)
	score, err := record.Normalize([]record.Eval{e})
	require.NoError(t, err)
	assert.Equal(t, int32(-record.MateScore), score)
}

func TestFENSource(t *testing.T) {
	input := strings.Join([]string{
		"# opening suite",
		startFEN,
		"",
		"not/a/fen",
		"  " + endFEN + "  ",
	}, "\n")

	var skipped int64
	var got []string
	err := FENSource(strings.NewReader(input), &skipped)(context.Background(), func(fen string) error {
		got = append(got, fen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{startFEN, endFEN}, got)
	assert.Equal(t, int64(1), skipped)
}

func TestPGNSource(t *testing.T) {
	game := `[Event "Test"]
[White "A"]
[Black "B"]
[WhiteElo "2100"]
[BlackElo "2200"]
[Result "1-0"]

1. e4 e5 1-0

`
	low := strings.Replace(game, `[BlackElo "2200"]`, `[BlackElo "1500"]`, 1)
	path := filepath.Join(t.TempDir(), "games.pgn")
	require.NoError(t, os.WriteFile(path, []byte(game+game+low), 0644))

	var got []string
	err := PGNSource(path, PGNConfig{RatingMin: 2000})(context.Background(), func(fen string) error {
		got = append(got, fen)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3, "start, after e4, after e5; duplicates removed")
	assert.True(t, strings.HasPrefix(got[0], "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w"), got[0])
	assert.True(t, strings.HasPrefix(got[1], "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b"), got[1])

	got = got[:0]
	err = PGNSource(path, PGNConfig{MinPly: 1, MaxPly: 1})(context.Background(), func(fen string) error {
		got = append(got, fen)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
