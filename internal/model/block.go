package model

import (
	"fmt"

	"github.com/hailam/chessnet/internal/nn"
)

// normFunc applies one batch-norm layer. Evaluation and calibration differ
// only in how they do this.
type normFunc func(bn *nn.BatchNorm2D, x *nn.Activation) (*nn.Activation, error)

// ResidualBlock computes relu(bn2(conv2(relu(bn1(conv1(x))))) + x).
type ResidualBlock struct {
	Conv1 *nn.Conv2D
	BN1   *nn.BatchNorm2D
	Conv2 *nn.Conv2D
	BN2   *nn.BatchNorm2D
}

func newResidualBlock(i, filters int) *ResidualBlock {
	prefix := fmt.Sprintf("residual_blocks.%d.", i)
	return &ResidualBlock{
		Conv1: nn.NewConv2D(prefix+"conv1", filters, filters, 3),
		BN1:   nn.NewBatchNorm2D(prefix+"bn1", filters),
		Conv2: nn.NewConv2D(prefix+"conv2", filters, filters, 3),
		BN2:   nn.NewBatchNorm2D(prefix+"bn2", filters),
	}
}

// Params returns the block's tensors in state-dict order.
func (b *ResidualBlock) Params() []*nn.Param {
	var ps []*nn.Param
	ps = append(ps, b.Conv1.Params()...)
	ps = append(ps, b.BN1.Params()...)
	ps = append(ps, b.Conv2.Params()...)
	ps = append(ps, b.BN2.Params()...)
	return ps
}

func (b *ResidualBlock) forward(x *nn.Activation, norm normFunc) (*nn.Activation, error) {
	y, err := b.Conv1.Forward(x)
	if err != nil {
		return nil, err
	}
	if y, err = norm(b.BN1, y); err != nil {
		return nil, err
	}
	nn.ReLU(y)
	if y, err = b.Conv2.Forward(y); err != nil {
		return nil, err
	}
	if y, err = norm(b.BN2, y); err != nil {
		return nil, err
	}
	if _, err = nn.Add(y, x); err != nil {
		return nil, err
	}
	return nn.ReLU(y), nil
}
