package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// InitUniform fills p with samples from U(-1/sqrt(fanIn), 1/sqrt(fanIn)).
func InitUniform(p *Param, fanIn int, src rand.Source) {
	bound := 1 / math.Sqrt(float64(fanIn))
	u := distuv.Uniform{Min: -bound, Max: bound, Src: src}
	for i := range p.Data {
		p.Data[i] = float32(u.Rand())
	}
}

// NewSource returns the deterministic random source used for weight
// initialization.
func NewSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}
