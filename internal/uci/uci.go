// Package uci plays the network's policy through the Universal Chess
// Interface protocol. There is no search: "go" answers with the most
// probable legal move of the current position.
package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hailam/chessnet/internal/board"
	"github.com/hailam/chessnet/internal/inference"
)

// UCI implements the Universal Chess Interface protocol.
type UCI struct {
	svc      *inference.Service
	position *board.Position
	out      io.Writer
	log      zerolog.Logger
}

// New creates a new UCI protocol handler writing replies to out.
func New(svc *inference.Service, out io.Writer, log zerolog.Logger) *UCI {
	return &UCI{
		svc:      svc,
		position: board.NewPosition(),
		out:      out,
		log:      log.With().Str("component", "uci").Logger(),
	}
}

// Run reads commands from in until "quit" or end of input.
func (u *UCI) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "uci":
			u.handleUCI()
		case "isready":
			fmt.Fprintln(u.out, "readyok")
		case "ucinewgame":
			u.position = board.NewPosition()
		case "position":
			u.handlePosition(args)
		case "go":
			u.handleGo(ctx)
		case "stop":
			// "go" answers synchronously, so there is never a search to stop.
		case "quit":
			return nil
		case "setoption":
			u.info("no options supported")
		// Debug commands
		case "d":
			fmt.Fprintln(u.out, u.position.String())
			fmt.Fprintf(u.out, "Fen: %s\n", u.position.ToFEN())
		default:
			u.info("unknown command: " + cmd)
		}
	}
	return scanner.Err()
}

func (u *UCI) info(msg string) {
	fmt.Fprintf(u.out, "info string %s\n", msg)
}

// handleUCI responds to the "uci" command.
func (u *UCI) handleUCI() {
	fmt.Fprintln(u.out, "id name ChessNet")
	fmt.Fprintln(u.out, "id author ChessNet Team")
	fmt.Fprintln(u.out, "uciok")
}

// handlePosition parses and sets up a position.
// Formats:
//   - position startpos
//   - position startpos moves e2e4 e7e5
//   - position fen <fen>
//   - position fen <fen> moves e2e4
//
// On error the previous position is kept.
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	moveStart := len(args)
	for i, arg := range args {
		if arg == "moves" {
			moveStart = i
			break
		}
	}

	var pos *board.Position
	switch args[0] {
	case "startpos":
		pos = board.NewPosition()
	case "fen":
		var err error
		pos, err = board.ParseFEN(strings.Join(args[1:moveStart], " "))
		if err != nil {
			u.info(fmt.Sprintf("Invalid FEN: %v", err))
			return
		}
	default:
		return
	}

	if moveStart < len(args) {
		if err := pos.PlayUCI(args[moveStart+1:]...); err != nil {
			u.info(fmt.Sprintf("Invalid move: %v", err))
			return
		}
	}
	u.position = pos
}

// handleGo evaluates the current position and replies with its best move.
func (u *UCI) handleGo(ctx context.Context) {
	results, err := u.svc.Evaluate(ctx, []string{u.position.ToFEN()})
	if err != nil {
		u.log.Error().Err(err).Msg("evaluate")
		u.info(fmt.Sprintf("evaluation failed: %v", err))
		fmt.Fprintln(u.out, "bestmove 0000")
		return
	}

	res := results[0]
	if len(res.Moves) == 0 {
		fmt.Fprintf(u.out, "info depth 0 score cp %d\n", Centipawns(res.Value))
		fmt.Fprintln(u.out, "bestmove 0000")
		return
	}
	best := res.Moves[0]
	fmt.Fprintf(u.out, "info depth 1 nodes 1 score cp %d pv %s\n", Centipawns(res.Value), best.UCI)
	fmt.Fprintf(u.out, "bestmove %s\n", best.UCI)
}

// Centipawns maps a value in [-1, 1] to a centipawn score.
func Centipawns(v float32) int {
	x := math.Max(-0.999, math.Min(0.999, float64(v)))
	return int(math.Round(111.714640912 * math.Tan(1.5620688421*x)))
}
