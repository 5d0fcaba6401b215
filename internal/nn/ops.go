package nn

import (
	"fmt"
	"math"
)

// ReLU clamps negative values to zero in place and returns x.
func ReLU(x *Activation) *Activation {
	for i, v := range x.Data {
		if v < 0 {
			x.Data[i] = 0
		}
	}
	return x
}

// Tanh applies the hyperbolic tangent in place and returns x.
func Tanh(x *Activation) *Activation {
	for i, v := range x.Data {
		x.Data[i] = float32(math.Tanh(float64(v)))
	}
	return x
}

// Add sums y into x element-wise and returns x.
func Add(x, y *Activation) (*Activation, error) {
	if x.N != y.N || x.C != y.C || x.H != y.H || x.W != y.W {
		return nil, fmt.Errorf("%w: cannot add %s to %s", ErrShape, y.shape(), x.shape())
	}
	for i, v := range y.Data {
		x.Data[i] += v
	}
	return x, nil
}
