// Package net is a small fully connected value network trained with Adam
// on mean absolute error.
package net

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"

	"github.com/freeeve/chesscnn/internal/position"
)

// Config configures a Network.
type Config struct {
	Hidden       int     // hidden layer width (default 256)
	LearningRate float64 // Adam step size (default 1e-4)
	Seed         int64
}

// Network maps a [6,8,8] position tensor through one ReLU hidden layer to
// a single value.
type Network struct {
	Inputs       int       `json:"inputs"`
	Hidden       int       `json:"hidden"`
	LearningRate float64   `json:"learning_rate"`
	W1           []float64 `json:"w1"` // column major: input i owns W1[i*Hidden : (i+1)*Hidden]
	B1           []float64 `json:"b1"`
	W2           []float64 `json:"w2"`
	B2           float64   `json:"b2"`

	params []*param
	step   int

	// per-sample scratch
	active []input
	pre    []float64
	h      []float64
	dh     []float64
}

type input struct {
	index int
	value float64
}

// New creates a network with uniformly initialized weights.
func New(cfg Config) *Network {
	if cfg.Hidden == 0 {
		cfg.Hidden = 256
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 1e-4
	}
	n := &Network{
		Inputs:       position.Size,
		Hidden:       cfg.Hidden,
		LearningRate: cfg.LearningRate,
		W1:           make([]float64, position.Size*cfg.Hidden),
		B1:           make([]float64, cfg.Hidden),
		W2:           make([]float64, cfg.Hidden),
	}
	rnd := rand.New(rand.NewSource(cfg.Seed))
	initUniform(rnd, n.W1, 1/math.Sqrt(float64(n.Inputs)))
	initUniform(rnd, n.W2, 1/math.Sqrt(float64(n.Hidden)))
	n.init()
	return n
}

func (n *Network) init() {
	n.params = []*param{
		newParam(n.W1),
		newParam(n.B1),
		newParam(n.W2),
		newParam([]float64{0}),
	}
	n.pre = make([]float64, n.Hidden)
	n.h = make([]float64, n.Hidden)
	n.dh = make([]float64, n.Hidden)
}

func initUniform(rnd *rand.Rand, data []float64, max float64) {
	for i := range data {
		data[i] = (rnd.Float64() - 0.5) * 2 * max
	}
}

// Predict returns the network's value for every position in x.
func (n *Network) Predict(x *tensor.Dense) ([]float32, error) {
	xs, batch, err := n.inputs(x)
	if err != nil {
		return nil, err
	}
	out := make([]float32, batch)
	for i := 0; i < batch; i++ {
		out[i] = float32(n.forward(xs[i*n.Inputs : (i+1)*n.Inputs]))
	}
	return out, nil
}

// Evaluate returns the mean absolute error on a batch.
func (n *Network) Evaluate(x, y *tensor.Dense) (float32, error) {
	xs, ys, err := n.batch(x, y)
	if err != nil {
		return 0, err
	}
	var total float64
	for i := range ys {
		total += math.Abs(n.forward(xs[i*n.Inputs:(i+1)*n.Inputs]) - float64(ys[i]))
	}
	return float32(total / float64(len(ys))), nil
}

// Update takes one Adam step on the mean absolute error of a batch and
// returns the loss before the step.
func (n *Network) Update(x, y *tensor.Dense) (float32, error) {
	xs, ys, err := n.batch(x, y)
	if err != nil {
		return 0, err
	}
	g1, gb1, g2, gb2 := n.params[0].grad, n.params[1].grad, n.params[2].grad, n.params[3].grad

	scale := 1 / float64(len(ys))
	var total float64
	for i := range ys {
		diff := n.forward(xs[i*n.Inputs:(i+1)*n.Inputs]) - float64(ys[i])
		total += math.Abs(diff)

		// d|out-y|/dout, averaged over the batch
		g := sign(diff) * scale
		if g == 0 {
			continue
		}
		gb2[0] += g
		floats.AddScaled(g2, g, n.h)

		for j := range n.dh {
			if n.pre[j] > 0 {
				n.dh[j] = g * n.W2[j]
			} else {
				n.dh[j] = 0
			}
		}
		floats.Add(gb1, n.dh)
		for _, in := range n.active {
			col := g1[in.index*n.Hidden : (in.index+1)*n.Hidden]
			floats.AddScaled(col, in.value, n.dh)
		}
	}

	n.step++
	for _, p := range n.params[:3] {
		p.apply(n.LearningRate, n.step)
	}
	b2 := n.params[3]
	b2.value[0] = n.B2
	b2.apply(n.LearningRate, n.step)
	n.B2 = b2.value[0]

	return float32(total / float64(len(ys))), nil
}

// forward computes the output for one position and leaves the hidden
// activations in the scratch buffers.
func (n *Network) forward(x []float32) float64 {
	n.active = n.active[:0]
	for i, v := range x {
		if v != 0 {
			n.active = append(n.active, input{index: i, value: float64(v)})
		}
	}
	copy(n.pre, n.B1)
	for _, in := range n.active {
		floats.AddScaled(n.pre, in.value, n.W1[in.index*n.Hidden:(in.index+1)*n.Hidden])
	}
	for j, v := range n.pre {
		n.h[j] = math.Max(v, 0)
	}
	return floats.Dot(n.W2, n.h) + n.B2
}

func (n *Network) inputs(x *tensor.Dense) ([]float32, int, error) {
	if x == nil {
		return nil, 0, errors.New("nil input tensor")
	}
	shape := x.Shape()
	if len(shape) < 2 || shape.TotalSize()/shape[0] != n.Inputs {
		return nil, 0, errors.Errorf("input shape %v does not hold %d features per position", shape, n.Inputs)
	}
	xs, ok := x.Data().([]float32)
	if !ok {
		return nil, 0, errors.Errorf("input dtype %v, want float32", x.Dtype())
	}
	return xs, shape[0], nil
}

func (n *Network) batch(x, y *tensor.Dense) ([]float32, []float32, error) {
	xs, batch, err := n.inputs(x)
	if err != nil {
		return nil, nil, err
	}
	if y == nil {
		return nil, nil, errors.New("nil label tensor")
	}
	ys, ok := y.Data().([]float32)
	if !ok {
		return nil, nil, errors.Errorf("label dtype %v, want float32", y.Dtype())
	}
	if len(ys) != batch {
		return nil, nil, errors.Errorf("%d labels for %d positions", len(ys), batch)
	}
	if batch == 0 {
		return nil, nil, errors.New("empty batch")
	}
	return xs, ys, nil
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
