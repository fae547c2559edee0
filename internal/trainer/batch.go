package trainer

import (
	"gorgonia.org/tensor"

	"github.com/freeeve/chesscnn/internal/chunk"
	"github.com/freeeve/chesscnn/internal/position"
)

// Batch converts pairs into model inputs shaped [n, 6, 8, 8] and labels
// shaped [n].
func Batch(pairs []chunk.Pair) (x, y *tensor.Dense) {
	xs := make([]float32, 0, len(pairs)*position.Size)
	ys := make([]float32, len(pairs))
	for i := range pairs {
		xs = pairs[i].Board.AppendFloat32(xs)
		ys[i] = float32(pairs[i].Score)
	}
	x = tensor.New(
		tensor.WithShape(len(pairs), position.Planes, position.Ranks, position.Files),
		tensor.WithBacking(xs),
	)
	y = tensor.New(tensor.WithShape(len(pairs)), tensor.WithBacking(ys))
	return x, y
}

// PredictFENs encodes positions and returns the model's value for each.
func PredictFENs(m Model, fens []string) ([]float32, error) {
	pairs := make([]chunk.Pair, len(fens))
	for i, fen := range fens {
		board, err := position.Encode(fen)
		if err != nil {
			return nil, err
		}
		pairs[i].Board = board
	}
	x, _ := Batch(pairs)
	return m.Predict(x)
}
