package nn

import (
	"fmt"
	"math"
)

// DefaultEps is added to the variance before taking the square root.
const DefaultEps = 1e-5

// BatchNorm2D normalizes each channel, then applies a learned scale and
// shift. In Inference mode it uses the running estimates; in Training mode
// it uses the current batch's biased statistics. Forward never mutates the
// layer; running estimates change only through Update.
type BatchNorm2D struct {
	C           int
	Eps         float64
	Weight      *Param // scale
	Bias        *Param // shift
	RunningMean *Param
	RunningVar  *Param
}

// NewBatchNorm2D creates a layer with scale 1, shift 0, running mean 0 and
// running variance 1.
func NewBatchNorm2D(name string, c int) *BatchNorm2D {
	bn := &BatchNorm2D{
		C:           c,
		Eps:         DefaultEps,
		Weight:      NewParam(name+".weight", true, c),
		Bias:        NewParam(name+".bias", true, c),
		RunningMean: NewParam(name+".running_mean", false, c),
		RunningVar:  NewParam(name+".running_var", false, c),
	}
	bn.Weight.Fill(1)
	bn.RunningVar.Fill(1)
	return bn
}

// Params returns the layer's parameters, trainable ones first.
func (bn *BatchNorm2D) Params() []*Param {
	return []*Param{bn.Weight, bn.Bias, bn.RunningMean, bn.RunningVar}
}

// Forward normalizes x according to mode and returns a new activation.
func (bn *BatchNorm2D) Forward(x *Activation, mode Mode) (*Activation, error) {
	if x.C != bn.C {
		return nil, fmt.Errorf("%w: %s expects %d channels, got %s", ErrShape, bn.Weight.Name, bn.C, x.shape())
	}

	var mean, variance []float64
	if mode == Training {
		mean, variance = bn.batchStats(x)
	} else {
		mean = make([]float64, bn.C)
		variance = make([]float64, bn.C)
		for c := 0; c < bn.C; c++ {
			mean[c] = float64(bn.RunningMean.Data[c])
			variance[c] = float64(bn.RunningVar.Data[c])
		}
	}

	scale := make([]float32, bn.C)
	shift := make([]float32, bn.C)
	for c := 0; c < bn.C; c++ {
		inv := 1 / math.Sqrt(variance[c]+bn.Eps)
		scale[c] = float32(inv * float64(bn.Weight.Data[c]))
		shift[c] = float32(float64(bn.Bias.Data[c]) - mean[c]*inv*float64(bn.Weight.Data[c]))
	}

	out := NewActivation(x.N, x.C, x.H, x.W)
	area := x.Area()
	forEachSample(x.N, func(i int) {
		src, dst := x.Sample(i), out.Sample(i)
		for c := 0; c < x.C; c++ {
			s, b := scale[c], shift[c]
			for j := c * area; j < (c+1)*area; j++ {
				dst[j] = src[j]*s + b
			}
		}
	})
	return out, nil
}

// batchStats returns the per-channel mean and biased variance of x.
func (bn *BatchNorm2D) batchStats(x *Activation) (mean, variance []float64) {
	mean = make([]float64, x.C)
	variance = make([]float64, x.C)
	area := x.Area()
	count := float64(x.N * area)

	for c := 0; c < x.C; c++ {
		var sum float64
		for i := 0; i < x.N; i++ {
			for _, v := range x.Sample(i)[c*area : (c+1)*area] {
				sum += float64(v)
			}
		}
		m := sum / count

		var sq float64
		for i := 0; i < x.N; i++ {
			for _, v := range x.Sample(i)[c*area : (c+1)*area] {
				d := float64(v) - m
				sq += d * d
			}
		}
		mean[c] = m
		variance[c] = sq / count
	}
	return mean, variance
}

// Update folds the statistics of x into the running estimates:
// running = (1-momentum)*running + momentum*batch, using the unbiased
// batch variance.
func (bn *BatchNorm2D) Update(x *Activation, momentum float64) error {
	if x.C != bn.C {
		return fmt.Errorf("%w: %s expects %d channels, got %s", ErrShape, bn.Weight.Name, bn.C, x.shape())
	}
	mean, variance := bn.batchStats(x)
	n := float64(x.N * x.Area())
	for c := 0; c < bn.C; c++ {
		v := variance[c]
		if n > 1 {
			v *= n / (n - 1)
		}
		rm, rv := float64(bn.RunningMean.Data[c]), float64(bn.RunningVar.Data[c])
		bn.RunningMean.Data[c] = float32((1-momentum)*rm + momentum*mean[c])
		bn.RunningVar.Data[c] = float32((1-momentum)*rv + momentum*v)
	}
	return nil
}
