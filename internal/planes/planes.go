// Package planes encodes chess positions as stacks of binary 8x8 planes,
// the input format of the evaluation network.
//
// Layout ([plane][rank][file], rank 0 = rank 1, file 0 = a-file):
//
//	0-5   White pawn, knight, bishop, rook, queen, king
//	6-11  Black pawn, knight, bishop, rook, queen, king
//	12    side to move (all ones when White is to move)
//	13-16 castling rights: White K, White Q, Black K, Black Q
//	17    en-passant target file (whole column set)
//
// The layout is a compatibility contract with trained weights and stored
// encodings. Do not reorder.
package planes

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/hailam/chessnet/internal/board"
	"github.com/hailam/chessnet/internal/device"
)

// Plane geometry
const (
	NumPlanes = 18
	Size      = 8
	PlaneArea = Size * Size
	Volume    = NumPlanes * PlaneArea
)

// Plane indices
const (
	WhitePieceOffset = 0
	BlackPieceOffset = 6
	SideToMovePlane  = 12
	WhiteKingSide    = 13
	WhiteQueenSide   = 14
	BlackKingSide    = 15
	BlackQueenSide   = 16
	EnPassantPlane   = 17
)

// Position is what the encoder needs from a rules engine.
type Position interface {
	PieceAt(sq board.Square) board.Piece
	Turn() board.Color
	HasCastlingRight(c board.Color, kingSide bool) bool
	EnPassantSquare() board.Square
}

// Planes is one encoded position.
type Planes [NumPlanes][Size][Size]float32

// Encode maps a position to its planes. It is a pure function of the
// position's state.
func Encode(pos Position) Planes {
	var p Planes
	placePieces(&p, pos)
	fillStatePlanes(&p, pos)
	return p
}

// placePieces sets one cell of planes 0-11 per occupied square.
func placePieces(p *Planes, pos Position) {
	for sq := board.A1; sq <= board.H8; sq++ {
		piece := pos.PieceAt(sq)
		if piece == board.NoPiece {
			continue
		}
		offset := WhitePieceOffset
		if piece.Color() == board.Black {
			offset = BlackPieceOffset
		}
		p[offset+int(piece.Type())][sq.Rank()][sq.File()] = 1
	}
}

// fillStatePlanes writes the broadcast planes 12-17.
func fillStatePlanes(p *Planes, pos Position) {
	if pos.Turn() == board.White {
		fillPlane(p, SideToMovePlane)
	}

	rights := [...]struct {
		plane    int
		color    board.Color
		kingSide bool
	}{
		{WhiteKingSide, board.White, true},
		{WhiteQueenSide, board.White, false},
		{BlackKingSide, board.Black, true},
		{BlackQueenSide, board.Black, false},
	}
	for _, r := range rights {
		if pos.HasCastlingRight(r.color, r.kingSide) {
			fillPlane(p, r.plane)
		}
	}

	if ep := pos.EnPassantSquare(); ep.IsValid() {
		file := ep.File()
		for rank := 0; rank < Size; rank++ {
			p[EnPassantPlane][rank][file] = 1
		}
	}
}

func fillPlane(p *Planes, plane int) {
	for rank := range p[plane] {
		for file := range p[plane][rank] {
			p[plane][rank][file] = 1
		}
	}
}

// Flatten returns the planes as a channel-major float32 slice.
func (p *Planes) Flatten() []float32 {
	out := make([]float32, 0, Volume)
	for c := range p {
		for r := range p[c] {
			out = append(out, p[c][r][:]...)
		}
	}
	return out
}

// Sum returns the number of set cells in planes [from, to).
func (p *Planes) Sum(from, to int) int {
	n := 0
	for c := from; c < to; c++ {
		for r := range p[c] {
			for _, v := range p[c][r] {
				if v != 0 {
					n++
				}
			}
		}
	}
	return n
}

// Tensor returns the planes as an (18,8,8) float32 dense tensor.
func (p *Planes) Tensor() *tensor.Dense {
	return tensor.New(
		tensor.WithShape(NumPlanes, Size, Size),
		tensor.WithBacking(p.Flatten()),
	)
}

// EncodeOn encodes pos and places the result on dev.
func EncodeOn(pos Position, dev device.Device) *tensor.Dense {
	p := Encode(pos)
	return tensor.New(
		tensor.WithShape(NumPlanes, Size, Size),
		tensor.WithBacking(p.Flatten()),
		tensor.WithEngine(dev.Engine()),
	)
}

// Batch stacks encoded positions into a (B,18,8,8) tensor.
func Batch(ps ...Planes) (*tensor.Dense, error) {
	if len(ps) == 0 {
		return nil, fmt.Errorf("planes: empty batch")
	}
	data := make([]float32, 0, len(ps)*Volume)
	for i := range ps {
		data = append(data, ps[i].Flatten()...)
	}
	return tensor.New(
		tensor.WithShape(len(ps), NumPlanes, Size, Size),
		tensor.WithBacking(data),
	), nil
}

// FromTensor decodes an (18,8,8) float32 tensor back into planes.
func FromTensor(t *tensor.Dense) (Planes, error) {
	var p Planes
	if !t.Shape().Eq(tensor.Shape{NumPlanes, Size, Size}) {
		return p, fmt.Errorf("planes: want shape (18, 8, 8), got %v", t.Shape())
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return p, fmt.Errorf("planes: want float32 data, got %v", t.Dtype())
	}
	for i, v := range data {
		p[i/PlaneArea][(i%PlaneArea)/Size][i%Size] = v
	}
	return p, nil
}
