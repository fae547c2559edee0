package net

import "math"

const (
	beta1   = 0.9
	beta2   = 0.999
	epsilon = 1e-8
)

// param pairs a parameter slice with its accumulated gradient and Adam
// moments.
type param struct {
	value []float64
	grad  []float64
	m1    []float64
	m2    []float64
}

func newParam(value []float64) *param {
	return &param{
		value: value,
		grad:  make([]float64, len(value)),
		m1:    make([]float64, len(value)),
		m2:    make([]float64, len(value)),
	}
}

// apply takes one bias-corrected Adam step and clears the gradient.
func (p *param) apply(lr float64, step int) {
	c1 := 1 - math.Pow(beta1, float64(step))
	c2 := 1 - math.Pow(beta2, float64(step))
	for i, g := range p.grad {
		p.m1[i] = p.m1[i]*beta1 + g*(1-beta1)
		p.m2[i] = p.m2[i]*beta2 + g*g*(1-beta2)
		p.value[i] -= lr * (p.m1[i] / c1) / (math.Sqrt(p.m2[i]/c2) + epsilon)
		p.grad[i] = 0
	}
}
