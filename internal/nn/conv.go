package nn

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Conv2D is a bias-free, stride-1 convolution with same padding, so the
// output keeps the input's spatial size. Weight layout is
// [out][in][kernel][kernel].
type Conv2D struct {
	In, Out, Kernel int
	Weight          *Param
}

// NewConv2D creates a convolution with zeroed weights. Kernel must be odd.
func NewConv2D(name string, in, out, kernel int) *Conv2D {
	return &Conv2D{
		In:     in,
		Out:    out,
		Kernel: kernel,
		Weight: NewParam(name+".weight", true, out, in, kernel, kernel),
	}
}

// FanIn returns the number of inputs feeding each output value.
func (c *Conv2D) FanIn() int {
	return c.In * c.Kernel * c.Kernel
}

// Params returns the layer's parameters.
func (c *Conv2D) Params() []*Param {
	return []*Param{c.Weight}
}

// Forward convolves every batch element of x.
func (c *Conv2D) Forward(x *Activation) (*Activation, error) {
	if x.C != c.In {
		return nil, fmt.Errorf("%w: %s expects %d input channels, got %s", ErrShape, c.Weight.Name, c.In, x.shape())
	}
	out := NewActivation(x.N, c.Out, x.H, x.W)
	area := x.Area()
	k := c.FanIn()

	w := blas32.General{Rows: c.Out, Cols: k, Stride: k, Data: c.Weight.Data}
	forEachSample(x.N, func(i int) {
		src := x.Sample(i)
		if c.Kernel != 1 {
			src = im2col(src, x.C, x.H, x.W, c.Kernel)
		}
		cols := blas32.General{Rows: k, Cols: area, Stride: area, Data: src}
		dst := blas32.General{Rows: c.Out, Cols: area, Stride: area, Data: out.Sample(i)}
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, w, cols, 0, dst)
	})
	return out, nil
}

// im2col unrolls every kernel window of a single CHW sample into a
// [c*kernel*kernel][h*w] matrix, zero-filling outside the board.
func im2col(src []float32, c, h, w, kernel int) []float32 {
	pad := kernel / 2
	area := h * w
	cols := make([]float32, c*kernel*kernel*area)
	row := 0
	for ch := 0; ch < c; ch++ {
		plane := src[ch*area : (ch+1)*area]
		for ky := 0; ky < kernel; ky++ {
			for kx := 0; kx < kernel; kx++ {
				dst := cols[row*area : (row+1)*area]
				for y := 0; y < h; y++ {
					iy := y + ky - pad
					if iy < 0 || iy >= h {
						continue
					}
					for x := 0; x < w; x++ {
						ix := x + kx - pad
						if ix < 0 || ix >= w {
							continue
						}
						dst[y*w+x] = plane[iy*w+ix]
					}
				}
				row++
			}
		}
	}
	return cols
}
