// Package inference serves position evaluations from a shared network.
//
// A Service turns FEN strings into policy/value results: it encodes the
// positions, runs one batched inference pass, masks the policy to the legal
// moves of each position and normalizes it. Evaluations share a read lock;
// replacing or calibrating the network takes the write lock.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"

	"github.com/hailam/chessnet/internal/board"
	"github.com/hailam/chessnet/internal/model"
	"github.com/hailam/chessnet/internal/nn"
	"github.com/hailam/chessnet/internal/planes"
)

var (
	ErrEmptyBatch    = errors.New("inference: no positions")
	ErrBatchTooLarge = errors.New("inference: batch too large")
	ErrInvalidFEN    = errors.New("inference: invalid FEN")
)

// MoveProb is one legal move with its policy score.
type MoveProb struct {
	UCI   string  `json:"uci"`
	Index int     `json:"index"`
	Prob  float64 `json:"prob"`
	Logit float32 `json:"logit"`
}

// Result is the evaluation of one position.
type Result struct {
	FEN        string     `json:"fen"`
	Value      float32    `json:"value"`
	LegalMoves int        `json:"legal_moves"`
	Moves      []MoveProb `json:"moves"`
}

// Options tune a Service.
type Options struct {
	// MaxBatch bounds the positions per call. 0 means unbounded.
	MaxBatch int
	// TopMoves limits the moves per result. 0 keeps every legal move.
	TopMoves int
}

// Service evaluates positions with a shared network.
type Service struct {
	mu   sync.RWMutex
	net  *model.Network
	opts Options
	log  zerolog.Logger
}

// New returns a service around net.
func New(net *model.Network, opts Options, log zerolog.Logger) *Service {
	return &Service{
		net:  net,
		opts: opts,
		log:  log.With().Str("component", "inference").Logger(),
	}
}

// Info describes the loaded network.
type Info struct {
	Config     model.Config `json:"config"`
	Parameters int          `json:"parameters"`
	Device     string       `json:"device"`
}

// Info reports the current network's dimensions.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		Config:     s.net.Config(),
		Parameters: s.net.ParameterCount(),
		Device:     s.net.Device().String(),
	}
}

// Replace swaps in a new network once in-flight evaluations finish and
// returns the previous one.
func (s *Service) Replace(net *model.Network) *model.Network {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.net
	s.net = net
	s.log.Info().Str("config", net.Config().String()).Msg("network replaced")
	return old
}

// parse decodes and validates a batch of FENs.
func (s *Service) parse(fens []string) ([]*board.Position, error) {
	if len(fens) == 0 {
		return nil, ErrEmptyBatch
	}
	if s.opts.MaxBatch > 0 && len(fens) > s.opts.MaxBatch {
		return nil, fmt.Errorf("%w: %d positions, limit %d", ErrBatchTooLarge, len(fens), s.opts.MaxBatch)
	}
	positions := make([]*board.Position, len(fens))
	for i, fen := range fens {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			return nil, fmt.Errorf("%w: position %d: %v", ErrInvalidFEN, i, err)
		}
		positions[i] = pos
	}
	return positions, nil
}

func encodeBatch(positions []*board.Position) (*tensor.Dense, error) {
	encoded := make([]planes.Planes, len(positions))
	for i, pos := range positions {
		encoded[i] = planes.Encode(pos)
	}
	return planes.Batch(encoded...)
}

// Evaluate scores every position in one batched pass.
func (s *Service) Evaluate(ctx context.Context, fens []string) ([]Result, error) {
	positions, err := s.parse(fens)
	if err != nil {
		return nil, err
	}

	x, err := encodeBatch(positions)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out, err := s.net.Evaluate(x, nn.Inference)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	logits := out.Policy.Data().([]float32)
	values := out.Value.Data().([]float32)
	results := make([]Result, len(positions))
	for i, pos := range positions {
		row := logits[i*model.PolicySize : (i+1)*model.PolicySize]
		results[i] = s.result(pos, row, values[i])
	}
	s.log.Debug().Int("batch", len(fens)).Msg("evaluated")
	return results, nil
}

// result masks one policy row to the legal moves and normalizes it.
func (s *Service) result(pos *board.Position, row []float32, value float32) Result {
	legal := legalMoves(pos)
	res := Result{FEN: pos.ToFEN(), Value: value, LegalMoves: len(legal)}
	if len(legal) == 0 {
		return res
	}

	masked := make([]float64, len(legal))
	for i, m := range legal {
		masked[i] = float64(row[m.index])
	}
	lse := floats.LogSumExp(masked)

	moves := make([]MoveProb, len(legal))
	for i, m := range legal {
		moves[i] = MoveProb{
			UCI:   m.uci,
			Index: m.index,
			Prob:  math.Exp(masked[i] - lse),
			Logit: row[m.index],
		}
	}
	slices.SortFunc(moves, func(a, b MoveProb) int {
		switch {
		case a.Prob > b.Prob:
			return -1
		case a.Prob < b.Prob:
			return 1
		}
		return a.Index - b.Index
	})
	if k := s.opts.TopMoves; k > 0 && len(moves) > k {
		moves = moves[:k]
	}
	res.Moves = moves
	return res
}

// Calibrate refreshes the network's batch-norm running statistics from
// the given positions. Evaluations wait until it finishes.
func (s *Service) Calibrate(ctx context.Context, fens []string, momentum float64) error {
	positions, err := s.parse(fens)
	if err != nil {
		return err
	}
	x, err := encodeBatch(positions)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.net.Calibrate(x, momentum); err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	s.log.Info().Int("positions", len(fens)).Float64("momentum", momentum).Msg("running statistics updated")
	return nil
}
