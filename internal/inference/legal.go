package inference

import (
	"github.com/dylhunn/dragontoothmg"

	"github.com/hailam/chessnet/internal/board"
)

// legalMove is one policy entry. Under-promotions share their index with
// the queen promotion and are reported once.
type legalMove struct {
	uci   string
	index int
}

// legalMoves lists the distinct policy indices reachable by a legal move.
// Positions without exactly one king per side have no defined move set.
func legalMoves(pos *board.Position) []legalMove {
	if pos.Pieces[board.White][board.King].PopCount() != 1 ||
		pos.Pieces[board.Black][board.King].PopCount() != 1 {
		return nil
	}

	b := dragontoothmg.ParseFen(pos.ToFEN())
	moves := b.GenerateLegalMoves()

	seen := make(map[int]bool, len(moves))
	out := make([]legalMove, 0, len(moves))
	for i := range moves {
		m := moves[i]
		idx := int(m.From())*64 + int(m.To())
		uci := m.String()
		if m.Promote() > 0 {
			uci = uci[:4] + "q"
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, legalMove{uci: uci, index: idx})
	}
	return out
}
