package net_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/freeeve/chesscnn/internal/chunk"
	"github.com/freeeve/chesscnn/internal/net"
	"github.com/freeeve/chesscnn/internal/position"
	"github.com/freeeve/chesscnn/internal/trainer"
)

var _ trainer.Model = (*net.Network)(nil)

func batch(t *testing.T, score int32, fens ...string) (*tensor.Dense, *tensor.Dense) {
	t.Helper()
	pairs := make([]chunk.Pair, len(fens))
	for i, fen := range fens {
		board, err := position.Encode(fen)
		require.NoError(t, err)
		pairs[i] = chunk.Pair{Board: board, Score: score}
	}
	return trainer.Batch(pairs)
}

var testFENs = []string{
	"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
	"4k3/8/8/8/8/8/4P3/4K3 w - - 0 1",
	"r1bqkb1r/pppp1ppp/2n2n2/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 4 4",
}

func TestDeterministicInit(t *testing.T) {
	x, _ := batch(t, 0, testFENs...)
	a, err := net.New(net.Config{Hidden: 8, Seed: 3}).Predict(x)
	require.NoError(t, err)
	b, err := net.New(net.Config{Hidden: 8, Seed: 3}).Predict(x)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 3)
}

func TestUpdateReducesLoss(t *testing.T) {
	n := net.New(net.Config{Hidden: 16, LearningRate: 0.01, Seed: 1})
	x, y := batch(t, 50, testFENs...)

	initial, err := n.Evaluate(x, y)
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		_, err := n.Update(x, y)
		require.NoError(t, err)
	}
	final, err := n.Evaluate(x, y)
	require.NoError(t, err)
	assert.Less(t, final, initial/2)
}

func TestEvaluateDoesNotTrain(t *testing.T) {
	n := net.New(net.Config{Hidden: 8, Seed: 2})
	x, y := batch(t, 100, testFENs...)
	a, err := n.Evaluate(x, y)
	require.NoError(t, err)
	b, err := n.Evaluate(x, y)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUpdateReturnsLoss(t *testing.T) {
	n := net.New(net.Config{Hidden: 8, Seed: 2})
	x, y := batch(t, 100, testFENs...)
	want, err := n.Evaluate(x, y)
	require.NoError(t, err)
	got, err := n.Update(x, y)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-4)
}

func TestShapeErrors(t *testing.T) {
	n := net.New(net.Config{Hidden: 4})
	x, y := batch(t, 0, testFENs...)

	short := tensor.New(tensor.WithShape(2), tensor.WithBacking([]float32{1, 2}))
	_, err := n.Evaluate(x, short)
	assert.Error(t, err)

	wrong := tensor.New(tensor.WithShape(3, 10), tensor.WithBacking(make([]float32, 30)))
	_, err = n.Predict(wrong)
	assert.Error(t, err)

	doubles := tensor.New(tensor.WithShape(3, 384), tensor.WithBacking(make([]float64, 3*384)))
	_, err = n.Update(doubles, y)
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	n := net.New(net.Config{Hidden: 8, LearningRate: 0.01, Seed: 9})
	x, y := batch(t, 42, testFENs...)
	_, err := n.Update(x, y)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, n.Save(path))

	loaded, err := net.Load(path)
	require.NoError(t, err)
	want, err := n.Predict(x)
	require.NoError(t, err)
	got, err := loaded.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 0.01, loaded.LearningRate)

	_, err = net.Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
