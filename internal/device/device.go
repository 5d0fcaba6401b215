// Package device models compute targets as opaque tokens. A device decides
// where tensors live (through its tensor engine), never what they hold.
package device

import (
	"fmt"
	"strings"

	"gorgonia.org/tensor"
)

// Kind identifies a class of compute target.
type Kind uint8

const (
	CPU Kind = iota
	CUDA
	Metal
)

// String returns the short name used in configs and logs.
func (k Kind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	case Metal:
		return "metal"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind parses a device name as written in config files.
// "mps" is accepted as an alias for metal.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return CPU, nil
	case "cuda", "gpu":
		return CUDA, nil
	case "metal", "mps":
		return Metal, nil
	}
	return CPU, fmt.Errorf("unknown device %q", s)
}

// priority orders kinds from most to least preferred.
var priority = [...]Kind{Metal, CUDA, CPU}

// Device is a compute target handed to the encoder and the network.
type Device struct {
	kind   Kind
	engine tensor.Engine
}

// Default returns general-purpose execution on the host.
func Default() Device {
	return Device{kind: CPU, engine: tensor.StdEng{}}
}

// New wraps a caller-provided tensor engine as a device of the given kind.
// A nil engine falls back to the standard host engine.
func New(kind Kind, eng tensor.Engine) Device {
	if eng == nil {
		eng = tensor.StdEng{}
	}
	return Device{kind: kind, engine: eng}
}

// Kind returns the device kind.
func (d Device) Kind() Kind {
	return d.kind
}

// Engine returns the tensor engine backing this device.
func (d Device) Engine() tensor.Engine {
	if d.engine == nil {
		return tensor.StdEng{}
	}
	return d.engine
}

func (d Device) String() string {
	return d.kind.String()
}

// Select picks the most capable device among the available candidates:
// Metal, then CUDA, then CPU. With no candidates it returns Default().
func Select(available ...Device) Device {
	for _, k := range priority {
		for _, d := range available {
			if d.kind == k {
				return d
			}
		}
	}
	return Default()
}

// Prefer returns the first available device of the wanted kind, falling
// back to Select when none matches.
func Prefer(want Kind, available ...Device) Device {
	for _, d := range available {
		if d.kind == want {
			return d
		}
	}
	return Select(available...)
}

// Available lists the devices this build can execute on.
func Available() []Device {
	return []Device{Default()}
}

// Resolve turns a preference into a device. An empty preference or "auto"
// selects by priority among the available devices; a named kind goes
// through Prefer.
func Resolve(prefer string, available ...Device) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(prefer)) {
	case "", "auto":
		return Select(available...), nil
	}
	kind, err := ParseKind(prefer)
	if err != nil {
		return Default(), err
	}
	return Prefer(kind, available...), nil
}
