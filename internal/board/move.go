package board

import "fmt"

// Move encodes a chess move in 16 bits:
// bits 0-5:   from square (0-63)
// bits 6-11:  to square (0-63)
// bits 12-13: promotion piece (0=Knight, 1=Bishop, 2=Rook, 3=Queen)
// bits 14-15: flags (0=normal, 1=promotion, 2=en passant, 3=castling)
type Move uint16

// Move flags
const (
	FlagNormal    uint16 = 0 << 14
	FlagPromotion uint16 = 1 << 14
	FlagEnPassant uint16 = 2 << 14
	FlagCastling  uint16 = 3 << 14
)

// NoMove represents an invalid or null move.
const NoMove Move = 0

// NewMove creates a normal move.
func NewMove(from, to Square) Move {
	return Move(from) | Move(to)<<6
}

// NewPromotion creates a promotion move.
func NewPromotion(from, to Square, promo PieceType) Move {
	return Move(from) | Move(to)<<6 | Move(promo-Knight)<<12 | Move(FlagPromotion)
}

// From returns the origin square.
func (m Move) From() Square {
	return Square(m & 0x3F)
}

// To returns the destination square.
func (m Move) To() Square {
	return Square((m >> 6) & 0x3F)
}

// Flag returns the move flag.
func (m Move) Flag() uint16 {
	return uint16(m) & 0xC000
}

// Promotion returns the promotion piece type (only valid if IsPromotion() is true).
func (m Move) Promotion() PieceType {
	return PieceType((m>>12)&3) + Knight
}

// IsPromotion returns true if this is a promotion move.
func (m Move) IsPromotion() bool {
	return m.Flag() == FlagPromotion
}

// IsCastling returns true if this is a castling move.
func (m Move) IsCastling() bool {
	return m.Flag() == FlagCastling
}

// IsEnPassant returns true if this is an en passant capture.
func (m Move) IsEnPassant() bool {
	return m.Flag() == FlagEnPassant
}

// Index returns the flat from*64+to index used by the policy head.
// Promotions to different pieces share one index.
func (m Move) Index() int {
	return int(m.From())*64 + int(m.To())
}

// String returns the UCI format of the move (e.g., "e2e4", "e7e8q").
func (m Move) String() string {
	if m == NoMove {
		return "0000"
	}
	s := m.From().String() + m.To().String()
	if m.IsPromotion() {
		s += string("nbrq"[m.Promotion()-Knight])
	}
	return s
}

// ParseMove parses a UCI move string against pos, detecting castling and
// en passant from the moving piece.
func ParseMove(s string, pos *Position) (Move, error) {
	if len(s) != 4 && len(s) != 5 {
		return NoMove, fmt.Errorf("invalid move string: %s", s)
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return NoMove, err
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return NoMove, err
	}

	if len(s) == 5 {
		var promo PieceType
		switch s[4] {
		case 'n':
			promo = Knight
		case 'b':
			promo = Bishop
		case 'r':
			promo = Rook
		case 'q':
			promo = Queen
		default:
			return NoMove, fmt.Errorf("invalid promotion piece: %c", s[4])
		}
		return NewPromotion(from, to, promo), nil
	}

	piece := pos.PieceAt(from)
	if piece == NoPiece {
		return NoMove, fmt.Errorf("no piece at %s", from)
	}
	switch {
	case piece.Type() == King && (int(to)-int(from) == 2 || int(from)-int(to) == 2):
		return NewMove(from, to) | Move(FlagCastling), nil
	case piece.Type() == Pawn && to == pos.EnPassant:
		return NewMove(from, to) | Move(FlagEnPassant), nil
	}
	return NewMove(from, to), nil
}

// rookHome lists the rook squares whose vacancy removes a castling right,
// with the king square the same right depends on.
var rookHome = [...]struct {
	sq    Square
	king  Square
	color Color
	right CastlingRights
}{
	{A1, E1, White, WhiteQueenSideCastle},
	{H1, E1, White, WhiteKingSideCastle},
	{A8, E8, Black, BlackQueenSideCastle},
	{H8, E8, Black, BlackKingSideCastle},
}

// clearStaleCastling drops every right whose king or rook is not on its
// home square. Such a right can never be exercised.
func (p *Position) clearStaleCastling() {
	for _, home := range rookHome {
		if !p.Pieces[home.color][King].IsSet(home.king) || !p.Pieces[home.color][Rook].IsSet(home.sq) {
			p.CastlingRights &^= home.right
		}
	}
}

// MakeMove applies m to the position. The move is trusted: legality is the
// caller's concern. Castling rights, the en-passant target and the move
// counters are kept current.
func (p *Position) MakeMove(m Move) error {
	from, to := m.From(), m.To()
	piece := p.PieceAt(from)
	if piece == NoPiece {
		return fmt.Errorf("no piece at %s", from)
	}
	us := piece.Color()
	if us != p.SideToMove {
		return fmt.Errorf("%s piece on %s moved with %s to move", us, from, p.SideToMove)
	}
	pt := piece.Type()

	// The target lives for exactly one reply.
	p.EnPassant = NoSquare

	captured := p.Remove(to)
	if m.IsEnPassant() {
		capSq := to - 8
		if us == Black {
			capSq = to + 8
		}
		captured = p.Remove(capSq)
	}

	p.Remove(from)
	if m.IsPromotion() {
		p.Put(NewPiece(m.Promotion(), us), to)
	} else {
		p.Put(piece, to)
	}

	if m.IsCastling() {
		rank := from.Rank()
		rookFrom, rookTo := NewSquare(0, rank), NewSquare(3, rank)
		if to > from {
			rookFrom, rookTo = NewSquare(7, rank), NewSquare(5, rank)
		}
		p.Put(p.Remove(rookFrom), rookTo)
	}

	if pt == King {
		p.CastlingRights &^= castleRight(us, true) | castleRight(us, false)
	}
	for _, home := range rookHome {
		if from == home.sq || to == home.sq {
			p.CastlingRights &^= home.right
		}
	}

	if pt == Pawn && (int(to)-int(from) == 16 || int(from)-int(to) == 16) {
		p.EnPassant = Square((int(from) + int(to)) / 2)
	}

	if pt == Pawn || captured != NoPiece {
		p.HalfMoveClock = 0
	} else {
		p.HalfMoveClock++
	}
	if us == Black {
		p.FullMoveNumber++
	}
	p.SideToMove = us.Other()
	return nil
}

// PlayUCI parses and applies a sequence of UCI moves.
func (p *Position) PlayUCI(moves ...string) error {
	for _, s := range moves {
		m, err := ParseMove(s, p)
		if err != nil {
			return fmt.Errorf("move %q: %w", s, err)
		}
		if err := p.MakeMove(m); err != nil {
			return fmt.Errorf("move %q: %w", s, err)
		}
	}
	return nil
}
