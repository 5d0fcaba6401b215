package board

import (
	"fmt"
	"strings"
)

// CastlingRights represents the available castling options.
type CastlingRights uint8

const (
	WhiteKingSideCastle  CastlingRights = 1 << iota // K
	WhiteQueenSideCastle                            // Q
	BlackKingSideCastle                             // k
	BlackQueenSideCastle                            // q
	NoCastling           CastlingRights = 0
	AllCastling          CastlingRights = WhiteKingSideCastle | WhiteQueenSideCastle | BlackKingSideCastle | BlackQueenSideCastle
)

// castleRight maps a color and wing to its flag.
func castleRight(c Color, kingSide bool) CastlingRights {
	switch {
	case c == White && kingSide:
		return WhiteKingSideCastle
	case c == White:
		return WhiteQueenSideCastle
	case kingSide:
		return BlackKingSideCastle
	default:
		return BlackQueenSideCastle
	}
}

// String returns the FEN castling rights string.
func (cr CastlingRights) String() string {
	if cr == NoCastling {
		return "-"
	}
	var sb strings.Builder
	for i, ch := range "KQkq" {
		if cr&(1<<i) != 0 {
			sb.WriteRune(ch)
		}
	}
	return sb.String()
}

// CanCastle returns true if the given side can castle in the given direction.
func (cr CastlingRights) CanCastle(c Color, kingSide bool) bool {
	return cr&castleRight(c, kingSide) != 0
}

// Position is a snapshot of a chess game state. It holds exactly what the
// encoder reads plus the move counters needed for FEN round trips.
type Position struct {
	// Piece bitboards: [Color][PieceType]
	Pieces   [2][6]Bitboard
	Occupied [2]Bitboard

	SideToMove     Color
	CastlingRights CastlingRights
	EnPassant      Square // Target square for en passant, NoSquare if none
	HalfMoveClock  int
	FullMoveNumber int
}

// NewPosition creates the starting position.
func NewPosition() *Position {
	pos, _ := ParseFEN(StartFEN)
	return pos
}

// EmptyPosition returns a board with no pieces, White to move and no rights.
func EmptyPosition() *Position {
	return &Position{
		EnPassant:      NoSquare,
		FullMoveNumber: 1,
	}
}

// Copy creates a deep copy of the position.
func (p *Position) Copy() *Position {
	newPos := *p
	return &newPos
}

// PieceAt returns the piece at the given square, or NoPiece if empty.
func (p *Position) PieceAt(sq Square) Piece {
	bb := SquareBB(sq)
	for c := White; c <= Black; c++ {
		if p.Occupied[c]&bb == 0 {
			continue
		}
		for pt := Pawn; pt <= King; pt++ {
			if p.Pieces[c][pt]&bb != 0 {
				return NewPiece(pt, c)
			}
		}
	}
	return NoPiece
}

// Turn returns the side to move.
func (p *Position) Turn() Color {
	return p.SideToMove
}

// HasCastlingRight reports whether c still holds the given castling permission.
func (p *Position) HasCastlingRight(c Color, kingSide bool) bool {
	return p.CastlingRights.CanCastle(c, kingSide)
}

// EnPassantSquare returns the en-passant target square, NoSquare if none.
func (p *Position) EnPassantSquare() Square {
	return p.EnPassant
}

// Put places a piece on a square, replacing whatever stood there.
func (p *Position) Put(piece Piece, sq Square) {
	p.Remove(sq)
	if piece == NoPiece {
		return
	}
	bb := SquareBB(sq)
	p.Pieces[piece.Color()][piece.Type()] |= bb
	p.Occupied[piece.Color()] |= bb
}

// Remove clears a square and returns the piece that stood on it.
func (p *Position) Remove(sq Square) Piece {
	piece := p.PieceAt(sq)
	if piece == NoPiece {
		return NoPiece
	}
	bb := SquareBB(sq)
	p.Pieces[piece.Color()][piece.Type()] &^= bb
	p.Occupied[piece.Color()] &^= bb
	return piece
}

// Equal reports whether two positions describe the same game state:
// placement, side to move, castling rights and en-passant target.
// Move counters are history and are ignored.
func (p *Position) Equal(o *Position) bool {
	return p.Pieces == o.Pieces &&
		p.SideToMove == o.SideToMove &&
		p.CastlingRights == o.CastlingRights &&
		p.EnPassant == o.EnPassant
}

// String returns a visual representation of the position.
func (p *Position) String() string {
	var sb strings.Builder
	sb.WriteByte('\n')
	for rank := 7; rank >= 0; rank-- {
		fmt.Fprintf(&sb, "%d  ", rank+1)
		for file := 0; file < 8; file++ {
			piece := p.PieceAt(NewSquare(file, rank))
			if piece == NoPiece {
				sb.WriteString(". ")
			} else {
				sb.WriteString(piece.String() + " ")
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("\n   a b c d e f g h\n\n")
	fmt.Fprintf(&sb, "Side to move: %s\n", p.SideToMove)
	fmt.Fprintf(&sb, "Castling: %s\n", p.CastlingRights)
	fmt.Fprintf(&sb, "En passant: %s\n", p.EnPassant)
	return sb.String()
}
