package board

import "testing"

func TestFENRoundTrip(t *testing.T) {
	fens := []string{
		StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2",
		"8/8/8/8/8/8/8/8 w - - 0 1",
		"4k3/8/8/8/8/8/8/4K3 b - - 12 40",
	}

	for _, fen := range fens {
		t.Run(fen, func(t *testing.T) {
			pos, err := ParseFEN(fen)
			if err != nil {
				t.Fatalf("ParseFEN: %v", err)
			}
			if got := pos.ToFEN(); got != fen {
				t.Errorf("ToFEN() = %q, want %q", got, fen)
			}
		})
	}
}

func TestParseFENErrors(t *testing.T) {
	bad := []string{
		"",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP w KQkq -",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x KQkq -",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQxq -",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq e4",
		"rnbqkbnr/pppppppp/9/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -",
	}
	for _, fen := range bad {
		if _, err := ParseFEN(fen); err == nil {
			t.Errorf("ParseFEN(%q) succeeded, want error", fen)
		}
	}
}

func TestParseFENClearsStaleCastling(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		want CastlingRights
	}{
		{"kings only", "4k3/8/8/8/8/8/8/4K3 w KQkq - 0 1", NoCastling},
		{"no rooks", "4k3/8/8/8/8/8/8/R3K3 w KQkq - 0 1", WhiteQueenSideCastle},
		{"king moved", "r3k2r/8/8/8/8/8/8/R4K1R w KQkq - 0 1", BlackKingSideCastle | BlackQueenSideCastle},
		{"black rook on h8 missing", "r3k3/8/8/8/8/8/8/R3K2R b KQkq - 0 1", WhiteKingSideCastle | WhiteQueenSideCastle | BlackQueenSideCastle},
		{"wrong colour rook", "R3k2r/8/8/8/8/8/8/4K3 w kq - 0 1", BlackKingSideCastle},
		{"intact", "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1", AllCastling},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pos, err := ParseFEN(tc.fen)
			if err != nil {
				t.Fatal(err)
			}
			if pos.CastlingRights != tc.want {
				t.Errorf("castling = %s, want %s", pos.CastlingRights, tc.want)
			}
		})
	}

	a, _ := ParseFEN("4k3/8/8/8/8/8/8/4K3 w KQkq - 0 1")
	b, _ := ParseFEN("4k3/8/8/8/8/8/8/4K3 w - - 0 1")
	if !a.Equal(b) {
		t.Error("unusable castling rights make otherwise equal positions differ")
	}
}

func TestPieceAt(t *testing.T) {
	pos := NewPosition()

	tests := []struct {
		sq   Square
		want Piece
	}{
		{E1, WhiteKing},
		{D8, BlackQueen},
		{A2, WhitePawn},
		{G8, BlackKnight},
		{E4, NoPiece},
	}
	for _, tc := range tests {
		if got := pos.PieceAt(tc.sq); got != tc.want {
			t.Errorf("PieceAt(%s) = %v, want %v", tc.sq, got, tc.want)
		}
	}
}

func TestEnPassantLifetime(t *testing.T) {
	pos := NewPosition()

	if err := pos.PlayUCI("e2e4"); err != nil {
		t.Fatal(err)
	}
	if pos.EnPassant != E3 {
		t.Fatalf("after e2e4 en passant = %s, want e3", pos.EnPassant)
	}

	if err := pos.PlayUCI("g8f6"); err != nil {
		t.Fatal(err)
	}
	if pos.EnPassant != NoSquare {
		t.Errorf("en passant survived a reply: %s", pos.EnPassant)
	}
}

func TestEnPassantCapture(t *testing.T) {
	pos := NewPosition()
	if err := pos.PlayUCI("e2e4", "a7a6", "e4e5", "d7d5", "e5d6"); err != nil {
		t.Fatal(err)
	}
	if pos.PieceAt(D5) != NoPiece {
		t.Errorf("captured pawn still on d5")
	}
	if pos.PieceAt(D6) != WhitePawn {
		t.Errorf("d6 = %v, want white pawn", pos.PieceAt(D6))
	}
	if pos.HalfMoveClock != 0 {
		t.Errorf("half-move clock = %d after capture", pos.HalfMoveClock)
	}
}

func TestCastlingRightsUpdates(t *testing.T) {
	tests := []struct {
		name  string
		fen   string
		moves []string
		want  CastlingRights
	}{
		{"king move", "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1", []string{"e1e2"}, BlackKingSideCastle | BlackQueenSideCastle},
		{"h rook move", "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1", []string{"h1h2"}, AllCastling &^ WhiteKingSideCastle},
		{"a rook move", "r3k2r/8/8/8/8/8/8/R3K2R b KQkq - 0 1", []string{"a8a7"}, AllCastling &^ BlackQueenSideCastle},
		{"rook captured", "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1", []string{"h1h8"}, WhiteQueenSideCastle | BlackQueenSideCastle},
		{"castle kingside", "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1", []string{"e1g1"}, BlackKingSideCastle | BlackQueenSideCastle},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pos, err := ParseFEN(tc.fen)
			if err != nil {
				t.Fatal(err)
			}
			if err := pos.PlayUCI(tc.moves...); err != nil {
				t.Fatal(err)
			}
			if pos.CastlingRights != tc.want {
				t.Errorf("castling = %s, want %s", pos.CastlingRights, tc.want)
			}
		})
	}
}

func TestCastlingMovesRook(t *testing.T) {
	pos, err := ParseFEN("r3k2r/8/8/8/8/8/8/R3K2R b KQkq - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	if err := pos.PlayUCI("e8c8"); err != nil {
		t.Fatal(err)
	}
	if pos.PieceAt(D8) != BlackRook || pos.PieceAt(C8) != BlackKing || pos.PieceAt(A8) != NoPiece {
		t.Errorf("unexpected queenside castle result:%s", pos)
	}
}

func TestPromotion(t *testing.T) {
	pos, err := ParseFEN("8/P3k3/8/8/8/8/8/4K3 w - - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	if err := pos.PlayUCI("a7a8q"); err != nil {
		t.Fatal(err)
	}
	if pos.PieceAt(A8) != WhiteQueen {
		t.Errorf("a8 = %v, want white queen", pos.PieceAt(A8))
	}
	if pos.Pieces[White][Pawn] != Empty {
		t.Errorf("promoted pawn left on its bitboard")
	}
}

func TestMakeMoveWrongSide(t *testing.T) {
	pos := NewPosition()
	if err := pos.PlayUCI("e7e5"); err == nil {
		t.Error("moving a black pawn with white to move succeeded")
	}
}

func TestEqualIgnoresHistory(t *testing.T) {
	a := NewPosition()
	b := NewPosition()
	if err := a.PlayUCI("g1f3", "g8f6", "f3g1", "f6g8"); err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Error("knight shuffle changed game state")
	}
	if a.HalfMoveClock == b.HalfMoveClock {
		t.Error("expected counters to differ")
	}
}

func TestMoveIndex(t *testing.T) {
	m := NewMove(E2, E4)
	if got, want := m.Index(), int(E2)*64+int(E4); got != want {
		t.Errorf("Index() = %d, want %d", got, want)
	}
	if NewPromotion(A7, A8, Queen).Index() != NewPromotion(A7, A8, Knight).Index() {
		t.Error("promotions should share a policy index")
	}
	if s := NewPromotion(A7, A8, Rook).String(); s != "a7a8r" {
		t.Errorf("String() = %q", s)
	}
}
