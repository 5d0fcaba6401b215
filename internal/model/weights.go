package model

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/hailam/chessnet/internal/nn"
)

// Weight stream format constants
const (
	MagicNumber = 0x54454E43 // "CNET"
	Version     = 1
)

// StreamHeader opens every weight stream.
type StreamHeader struct {
	Magic   uint32
	Version uint32
	Blocks  uint32
	Filters uint32
	Tensors uint32
}

// WriteWeights serializes every parameter, buffers included.
// Stream format (little-endian):
//   - Header: Magic, Version, Blocks, Filters, Tensors (uint32 each)
//   - Per tensor: name length (uint16), name, rank (uint8),
//     dims (uint32 each), values (float32 each)
func (n *Network) WriteWeights(w io.Writer) error {
	bw := bufio.NewWriter(w)
	params := n.Parameters()
	header := StreamHeader{
		Magic:   MagicNumber,
		Version: Version,
		Blocks:  uint32(n.cfg.Blocks),
		Filters: uint32(n.cfg.Filters),
		Tensors: uint32(len(params)),
	}
	if err := binary.Write(bw, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, p := range params {
		if err := writeTensor(bw, p); err != nil {
			return fmt.Errorf("failed to write %s: %w", p.Name, err)
		}
	}
	return bw.Flush()
}

func writeTensor(w io.Writer, p *nn.Param) error {
	if err := binary.Write(w, binary.LittleEndian, uint16(len(p.Name))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, p.Name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(len(p.Shape))); err != nil {
		return err
	}
	for _, d := range p.Shape {
		if err := binary.Write(w, binary.LittleEndian, uint32(d)); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, p.Data)
}

// ReadWeights loads a stream written by WriteWeights. Nothing is modified
// unless the whole stream matches this network: dimensions that differ
// yield ErrConfigMismatch, a tensor whose name or shape differs yields
// nn.ErrShape.
func (n *Network) ReadWeights(r io.Reader) error {
	br := bufio.NewReader(r)

	var header StreamHeader
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if header.Magic != MagicNumber {
		return fmt.Errorf("invalid magic number: expected %x, got %x", MagicNumber, header.Magic)
	}
	if header.Version != Version {
		return fmt.Errorf("unsupported version: expected %d, got %d", Version, header.Version)
	}
	if int(header.Blocks) != n.cfg.Blocks || int(header.Filters) != n.cfg.Filters {
		return fmt.Errorf("%w: stream is %dx%d, network is %s",
			ErrConfigMismatch, header.Blocks, header.Filters, n.cfg)
	}

	params := n.Parameters()
	if int(header.Tensors) != len(params) {
		return fmt.Errorf("%w: stream has %d tensors, network has %d", nn.ErrShape, header.Tensors, len(params))
	}

	scratch := make([][]float32, len(params))
	for i, p := range params {
		data, err := readTensor(br, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p.Name, err)
		}
		scratch[i] = data
	}

	for i, p := range params {
		copy(p.Data, scratch[i])
	}
	return nil
}

func readTensor(r io.Reader, want *nn.Param) ([]float32, error) {
	var nameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return nil, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, err
	}
	if string(name) != want.Name {
		return nil, fmt.Errorf("%w: found tensor %q", nn.ErrShape, name)
	}

	var rank uint8
	if err := binary.Read(r, binary.LittleEndian, &rank); err != nil {
		return nil, err
	}
	shape := make([]int, rank)
	for i := range shape {
		var d uint32
		if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
			return nil, err
		}
		shape[i] = int(d)
	}
	if !want.SameShape(shape) {
		return nil, fmt.Errorf("%w: shape %v, want %v", nn.ErrShape, shape, want.Shape)
	}

	data := make([]float32, want.Len())
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, err
	}
	return data, nil
}

// SaveWeights writes the weight stream to a file.
func (n *Network) SaveWeights(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create weights file: %w", err)
	}
	if err := n.WriteWeights(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadWeights reads a weight stream from a file.
func (n *Network) LoadWeights(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open weights file: %w", err)
	}
	defer f.Close()
	return n.ReadWeights(f)
}
