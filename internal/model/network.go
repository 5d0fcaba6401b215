// Package model implements the residual policy/value network: a
// convolutional trunk of residual blocks feeding a policy head that scores
// all 4096 (from, to) square pairs and a value head that scores the
// position for the side to move.
package model

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/hailam/chessnet/internal/device"
	"github.com/hailam/chessnet/internal/nn"
	"github.com/hailam/chessnet/internal/planes"
)

// Head sizes.
const (
	PolicySize   = planes.PlaneArea * planes.PlaneArea // from*64 + to
	policyPlanes = 2
	valuePlanes  = 1
	valueHidden  = 256
)

// DefaultMomentum is the running-statistics momentum used by Calibrate.
const DefaultMomentum = 0.1

// Output holds the raw heads for a batch: Policy is (B,4096) logits and
// Value is (B,1) in [-1,1] from the side to move's perspective.
type Output struct {
	Policy *tensor.Dense
	Value  *tensor.Dense
}

// Network is the evaluation network. Evaluate only reads parameters, so
// concurrent calls are safe as long as nothing mutates the network
// (Calibrate, ReadWeights) at the same time.
type Network struct {
	cfg Config
	dev device.Device

	initialConv *nn.Conv2D
	initialBN   *nn.BatchNorm2D
	blocks      []*ResidualBlock

	policyConv *nn.Conv2D
	policyBN   *nn.BatchNorm2D
	policyFC   *nn.Linear

	valueConv *nn.Conv2D
	valueBN   *nn.BatchNorm2D
	valueFC1  *nn.Linear
	valueFC2  *nn.Linear
}

// Option customizes a Network.
type Option func(*Network)

// WithDevice places output tensors on dev.
func WithDevice(dev device.Device) Option {
	return func(n *Network) { n.dev = dev }
}

// New builds a network with freshly initialized parameters.
func New(cfg Config, opts ...Option) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := cfg.Filters
	n := &Network{
		cfg:         cfg,
		dev:         device.Default(),
		initialConv: nn.NewConv2D("initial_conv", planes.NumPlanes, f, 3),
		initialBN:   nn.NewBatchNorm2D("initial_bn", f),
		policyConv:  nn.NewConv2D("policy_conv", f, policyPlanes, 1),
		policyBN:    nn.NewBatchNorm2D("policy_bn", policyPlanes),
		policyFC:    nn.NewLinear("policy_fc", policyPlanes*planes.PlaneArea, PolicySize),
		valueConv:   nn.NewConv2D("value_conv", f, valuePlanes, 1),
		valueBN:     nn.NewBatchNorm2D("value_bn", valuePlanes),
		valueFC1:    nn.NewLinear("value_fc1", valuePlanes*planes.PlaneArea, valueHidden),
		valueFC2:    nn.NewLinear("value_fc2", valueHidden, 1),
	}
	for i := 0; i < cfg.Blocks; i++ {
		n.blocks = append(n.blocks, newResidualBlock(i, f))
	}
	for _, opt := range opts {
		opt(n)
	}
	n.initialize()
	return n, nil
}

// initialize draws conv and linear parameters from U(±1/sqrt(fan_in)).
// Batch-norm layers keep their constructor defaults.
func (n *Network) initialize() {
	src := nn.NewSource(n.cfg.Seed)
	convs := []*nn.Conv2D{n.initialConv}
	for _, b := range n.blocks {
		convs = append(convs, b.Conv1, b.Conv2)
	}
	convs = append(convs, n.policyConv, n.valueConv)
	for _, c := range convs {
		nn.InitUniform(c.Weight, c.FanIn(), src)
	}
	for _, l := range []*nn.Linear{n.policyFC, n.valueFC1, n.valueFC2} {
		nn.InitUniform(l.Weight, l.FanIn(), src)
		nn.InitUniform(l.Bias, l.FanIn(), src)
	}
}

// Config returns the dimensions the network was built with.
func (n *Network) Config() Config { return n.cfg }

// Device returns the compute target output tensors are bound to.
func (n *Network) Device() device.Device { return n.dev }

// Parameters lists every named tensor, buffers included, in state-dict
// order.
func (n *Network) Parameters() []*nn.Param {
	var ps []*nn.Param
	ps = append(ps, n.initialConv.Params()...)
	ps = append(ps, n.initialBN.Params()...)
	for _, b := range n.blocks {
		ps = append(ps, b.Params()...)
	}
	ps = append(ps, n.policyConv.Params()...)
	ps = append(ps, n.policyBN.Params()...)
	ps = append(ps, n.policyFC.Params()...)
	ps = append(ps, n.valueConv.Params()...)
	ps = append(ps, n.valueBN.Params()...)
	ps = append(ps, n.valueFC1.Params()...)
	ps = append(ps, n.valueFC2.Params()...)
	return ps
}

// ParameterCount returns the number of trainable scalars. Batch-norm
// running statistics are not counted.
func (n *Network) ParameterCount() int {
	total := 0
	for _, p := range n.Parameters() {
		if p.Trainable {
			total += p.Len()
		}
	}
	return total
}

// Evaluate runs a (B,18,8,8) float32 batch through the network. In
// Inference mode each element's result is independent of the rest of the
// batch.
func (n *Network) Evaluate(x *tensor.Dense, mode nn.Mode) (Output, error) {
	in, err := activationOf(x)
	if err != nil {
		return Output{}, err
	}
	return n.forward(in, func(bn *nn.BatchNorm2D, a *nn.Activation) (*nn.Activation, error) {
		return bn.Forward(a, mode)
	})
}

// Calibrate runs a training-mode pass over x and folds each batch-norm
// layer's batch statistics into its running estimates with the given
// momentum. It mutates the network.
func (n *Network) Calibrate(x *tensor.Dense, momentum float64) error {
	if !(momentum > 0 && momentum <= 1) {
		return fmt.Errorf("model: momentum must be in (0, 1], got %v", momentum)
	}
	in, err := activationOf(x)
	if err != nil {
		return err
	}
	_, err = n.forward(in, func(bn *nn.BatchNorm2D, a *nn.Activation) (*nn.Activation, error) {
		if err := bn.Update(a, momentum); err != nil {
			return nil, err
		}
		return bn.Forward(a, nn.Training)
	})
	return err
}

func (n *Network) forward(x *nn.Activation, norm normFunc) (Output, error) {
	h, err := n.initialConv.Forward(x)
	if err != nil {
		return Output{}, err
	}
	if h, err = norm(n.initialBN, h); err != nil {
		return Output{}, err
	}
	nn.ReLU(h)
	for _, b := range n.blocks {
		if h, err = b.forward(h, norm); err != nil {
			return Output{}, err
		}
	}

	policy, err := n.policy(h, norm)
	if err != nil {
		return Output{}, fmt.Errorf("policy head: %w", err)
	}
	value, err := n.value(h, norm)
	if err != nil {
		return Output{}, fmt.Errorf("value head: %w", err)
	}

	return Output{
		Policy: tensor.New(
			tensor.WithShape(x.N, PolicySize),
			tensor.WithBacking(policy.Data),
			tensor.WithEngine(n.dev.Engine()),
		),
		Value: tensor.New(
			tensor.WithShape(x.N, 1),
			tensor.WithBacking(value.Data),
			tensor.WithEngine(n.dev.Engine()),
		),
	}, nil
}

func (n *Network) policy(h *nn.Activation, norm normFunc) (*nn.Activation, error) {
	p, err := n.policyConv.Forward(h)
	if err != nil {
		return nil, err
	}
	if p, err = norm(n.policyBN, p); err != nil {
		return nil, err
	}
	return n.policyFC.Forward(nn.ReLU(p))
}

func (n *Network) value(h *nn.Activation, norm normFunc) (*nn.Activation, error) {
	v, err := n.valueConv.Forward(h)
	if err != nil {
		return nil, err
	}
	if v, err = norm(n.valueBN, v); err != nil {
		return nil, err
	}
	if v, err = n.valueFC1.Forward(nn.ReLU(v)); err != nil {
		return nil, err
	}
	if v, err = n.valueFC2.Forward(nn.ReLU(v)); err != nil {
		return nil, err
	}
	return nn.Tanh(v), nil
}

// activationOf checks that x is a (B,18,8,8) float32 batch and wraps its
// data without copying.
func activationOf(x *tensor.Dense) (*nn.Activation, error) {
	if x == nil {
		return nil, fmt.Errorf("%w: nil input", nn.ErrShape)
	}
	if x.Dtype() != tensor.Float32 {
		return nil, fmt.Errorf("%w: want float32 input, got %v", nn.ErrShape, x.Dtype())
	}
	shape := x.Shape()
	if len(shape) != 4 || shape[0] < 1 || shape[1] != planes.NumPlanes || shape[2] != planes.Size || shape[3] != planes.Size {
		return nil, fmt.Errorf("%w: want (B, %d, %d, %d), got %v", nn.ErrShape, planes.NumPlanes, planes.Size, planes.Size, shape)
	}
	if x.IsView() {
		x = x.Materialize().(*tensor.Dense)
	}
	data := x.Data().([]float32)
	return &nn.Activation{N: shape[0], C: shape[1], H: shape[2], W: shape[3], Data: data}, nil
}
