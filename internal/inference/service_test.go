package inference

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/hailam/chessnet/internal/board"
	"github.com/hailam/chessnet/internal/logging"
	"github.com/hailam/chessnet/internal/model"
)

func newService(t *testing.T, opts Options) *Service {
	t.Helper()
	net, err := model.New(model.Config{Blocks: 1, Filters: 8, Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	return New(net, opts, logging.Nop())
}

func evaluateOne(t *testing.T, s *Service, fen string) Result {
	t.Helper()
	res, err := s.Evaluate(context.Background(), []string{fen})
	if err != nil {
		t.Fatalf("Evaluate(%q): %v", fen, err)
	}
	return res[0]
}

func TestEvaluateStartPosition(t *testing.T) {
	s := newService(t, Options{})
	res := evaluateOne(t, s, board.StartFEN)

	if res.LegalMoves != 20 || len(res.Moves) != 20 {
		t.Fatalf("legal moves = %d, listed %d, want 20", res.LegalMoves, len(res.Moves))
	}
	if res.Value < -1 || res.Value > 1 {
		t.Errorf("value = %v", res.Value)
	}

	var sum float64
	for i, m := range res.Moves {
		sum += m.Prob
		if i > 0 && m.Prob > res.Moves[i-1].Prob {
			t.Errorf("moves not sorted at %d", i)
		}
		from, err := board.ParseSquare(m.UCI[:2])
		if err != nil {
			t.Fatal(err)
		}
		to, _ := board.ParseSquare(m.UCI[2:4])
		if m.Index != from.Index()*64+to.Index() {
			t.Errorf("%s: index %d", m.UCI, m.Index)
		}
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("probabilities sum to %v", sum)
	}
}

func TestTopMoves(t *testing.T) {
	s := newService(t, Options{TopMoves: 3})
	res := evaluateOne(t, s, board.StartFEN)
	if res.LegalMoves != 20 || len(res.Moves) != 3 {
		t.Fatalf("legal = %d, listed = %d", res.LegalMoves, len(res.Moves))
	}

	all := evaluateOne(t, newService(t, Options{}), board.StartFEN)
	for i := range res.Moves {
		if res.Moves[i] != all.Moves[i] {
			t.Errorf("top move %d = %+v, want %+v", i, res.Moves[i], all.Moves[i])
		}
	}
}

func TestPromotionsShareIndex(t *testing.T) {
	s := newService(t, Options{})
	res := evaluateOne(t, s, "8/P6k/8/8/8/8/8/K7 w - - 0 1")

	// Ka1 has three moves; the four a8 promotions collapse into one.
	if res.LegalMoves != 4 {
		t.Fatalf("legal moves = %d, want 4", res.LegalMoves)
	}
	var found bool
	for _, m := range res.Moves {
		if m.UCI == "a7a8q" {
			found = true
			if m.Index != 48*64+56 {
				t.Errorf("index = %d", m.Index)
			}
		}
	}
	if !found {
		t.Errorf("queen promotion missing: %+v", res.Moves)
	}
}

func TestNoLegalMoves(t *testing.T) {
	s := newService(t, Options{})
	tests := []struct {
		name string
		fen  string
	}{
		{"checkmate", "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"},
		{"stalemate", "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"},
		{"no kings", "8/8/8/8/8/8/8/8 w - - 0 1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := evaluateOne(t, s, tc.fen)
			if res.LegalMoves != 0 || len(res.Moves) != 0 {
				t.Errorf("got %d legal moves", res.LegalMoves)
			}
			if res.Value < -1 || res.Value > 1 {
				t.Errorf("value = %v", res.Value)
			}
		})
	}
}

func TestNoCastlingWithoutRooks(t *testing.T) {
	s := newService(t, Options{})
	res := evaluateOne(t, s, "4k3/8/8/8/8/8/8/4K3 w KQkq - 0 1")

	if res.LegalMoves != 5 {
		t.Errorf("legal moves = %d, want 5", res.LegalMoves)
	}
	for _, m := range res.Moves {
		if m.UCI == "e1g1" || m.UCI == "e1c1" {
			t.Errorf("castling move %s listed without a rook", m.UCI)
		}
	}
	if res.FEN != "4k3/8/8/8/8/8/8/4K3 w - - 0 1" {
		t.Errorf("FEN = %q", res.FEN)
	}
}

func TestBatchMatchesSingle(t *testing.T) {
	s := newService(t, Options{})
	fens := []string{
		board.StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"rnbqkbnr/ppp1pppp/8/3pP3/8/8/PPPP1PPP/RNBQKBNR w KQkq d6 0 3",
	}
	batch, err := s.Evaluate(context.Background(), fens)
	if err != nil {
		t.Fatal(err)
	}
	for i, fen := range fens {
		one := evaluateOne(t, s, fen)
		if one.Value != batch[i].Value || len(one.Moves) != len(batch[i].Moves) {
			t.Fatalf("%s: single and batched results differ", fen)
		}
		for j := range one.Moves {
			if one.Moves[j] != batch[i].Moves[j] {
				t.Fatalf("%s: move %d differs", fen, j)
			}
		}
	}
}

func TestEvaluateErrors(t *testing.T) {
	s := newService(t, Options{MaxBatch: 2})
	ctx := context.Background()

	if _, err := s.Evaluate(ctx, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("empty: err = %v", err)
	}
	if _, err := s.Evaluate(ctx, []string{board.StartFEN, board.StartFEN, board.StartFEN}); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("too large: err = %v", err)
	}
	if _, err := s.Evaluate(ctx, []string{board.StartFEN, "not a fen"}); !errors.Is(err, ErrInvalidFEN) {
		t.Errorf("invalid: err = %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.Evaluate(cancelled, []string{board.StartFEN}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: err = %v", err)
	}
}

func TestCalibrateChangesEvaluation(t *testing.T) {
	s := newService(t, Options{})
	ctx := context.Background()
	before := evaluateOne(t, s, board.StartFEN)

	fens := []string{board.StartFEN, "4k3/8/8/8/8/8/8/4K3 w - - 0 1", "r3k2r/8/8/8/8/8/8/R3K2R b KQkq - 0 1"}
	if err := s.Calibrate(ctx, fens, model.DefaultMomentum); err != nil {
		t.Fatal(err)
	}
	after := evaluateOne(t, s, board.StartFEN)
	if before.Value == after.Value && before.Moves[0] == after.Moves[0] {
		t.Error("calibration had no effect")
	}
}

func TestReplaceDuringEvaluation(t *testing.T) {
	s := newService(t, Options{TopMoves: 1})
	other, err := model.New(model.Config{Blocks: 0, Filters: 4, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if _, err := s.Evaluate(context.Background(), []string{board.StartFEN}); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	old := s.Replace(other)
	wg.Wait()

	if old.Config().Filters != 8 || s.Info().Config.Filters != 4 {
		t.Errorf("Replace: old %s, current %+v", old.Config(), s.Info().Config)
	}
	if s.Info().Parameters != other.ParameterCount() {
		t.Error("Info reports the wrong parameter count")
	}
}
