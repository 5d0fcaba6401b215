package nn

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Linear is a fully connected layer, y = W·x + b, with W stored as
// [out][in].
type Linear struct {
	In, Out int
	Weight  *Param
	Bias    *Param
}

// NewLinear creates a layer with zeroed weights and bias.
func NewLinear(name string, in, out int) *Linear {
	return &Linear{
		In:     in,
		Out:    out,
		Weight: NewParam(name+".weight", true, out, in),
		Bias:   NewParam(name+".bias", true, out),
	}
}

// FanIn returns the input width.
func (l *Linear) FanIn() int { return l.In }

// Params returns the layer's parameters.
func (l *Linear) Params() []*Param {
	return []*Param{l.Weight, l.Bias}
}

// Forward applies the layer to each batch element of x, treating the
// element's C*H*W values as one flat vector. The result has shape (N,Out,1,1).
func (l *Linear) Forward(x *Activation) (*Activation, error) {
	if x.SampleSize() != l.In {
		return nil, fmt.Errorf("%w: %s expects %d inputs, got %s", ErrShape, l.Weight.Name, l.In, x.shape())
	}
	out := NewActivation(x.N, l.Out, 1, 1)
	w := blas32.General{Rows: l.Out, Cols: l.In, Stride: l.In, Data: l.Weight.Data}
	forEachSample(x.N, func(i int) {
		dst := out.Sample(i)
		copy(dst, l.Bias.Data)
		blas32.Gemv(blas.NoTrans, 1, w,
			blas32.Vector{N: l.In, Inc: 1, Data: x.Sample(i)},
			1, blas32.Vector{N: l.Out, Inc: 1, Data: dst})
	})
	return out, nil
}
