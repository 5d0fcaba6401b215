// Package nn provides the float32 layer primitives the evaluation network is
// built from: bias-free same-padding convolutions, batch normalization,
// affine layers and the element-wise activations. Matrix work goes through
// gonum's blas32; batch elements are processed independently so a sample's
// result never depends on the batch it was evaluated in.
package nn

import (
	"errors"
	"fmt"
)

// ErrShape is returned when an input does not match a layer's expected shape.
var ErrShape = errors.New("nn: shape mismatch")

// Mode selects how batch normalization obtains its statistics.
type Mode uint8

const (
	// Inference normalizes with the frozen running estimates.
	Inference Mode = iota
	// Training normalizes with the statistics of the batch being evaluated.
	Training
)

func (m Mode) String() string {
	if m == Training {
		return "training"
	}
	return "inference"
}

// Activation is a batch of feature maps in NCHW layout.
type Activation struct {
	N, C, H, W int
	Data       []float32
}

// NewActivation allocates a zeroed activation.
func NewActivation(n, c, h, w int) *Activation {
	return &Activation{N: n, C: c, H: h, W: w, Data: make([]float32, n*c*h*w)}
}

// Area returns the spatial size of one feature map.
func (a *Activation) Area() int {
	return a.H * a.W
}

// SampleSize returns the number of values per batch element.
func (a *Activation) SampleSize() int {
	return a.C * a.H * a.W
}

// Sample returns the values of batch element i.
func (a *Activation) Sample(i int) []float32 {
	n := a.SampleSize()
	return a.Data[i*n : (i+1)*n]
}

// Clone returns a deep copy.
func (a *Activation) Clone() *Activation {
	b := *a
	b.Data = append([]float32(nil), a.Data...)
	return &b
}

func (a *Activation) shape() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", a.N, a.C, a.H, a.W)
}

// Param is a named weight tensor. Non-trainable params hold running
// statistics.
type Param struct {
	Name      string
	Shape     []int
	Data      []float32
	Trainable bool
}

// NewParam allocates a zeroed parameter.
func NewParam(name string, trainable bool, shape ...int) *Param {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Param{Name: name, Shape: shape, Data: make([]float32, n), Trainable: trainable}
}

// Len returns the number of scalars in the parameter.
func (p *Param) Len() int {
	return len(p.Data)
}

// Fill sets every element to v.
func (p *Param) Fill(v float32) {
	for i := range p.Data {
		p.Data[i] = v
	}
}

// SameShape reports whether shape matches the parameter's shape.
func (p *Param) SameShape(shape []int) bool {
	if len(shape) != len(p.Shape) {
		return false
	}
	for i := range shape {
		if shape[i] != p.Shape[i] {
			return false
		}
	}
	return true
}
