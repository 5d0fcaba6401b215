// Command chessnet creates, inspects and serves chess evaluation networks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/hailam/chessnet/internal/board"
	"github.com/hailam/chessnet/internal/checkpoint"
	"github.com/hailam/chessnet/internal/config"
	"github.com/hailam/chessnet/internal/inference"
	"github.com/hailam/chessnet/internal/logging"
	"github.com/hailam/chessnet/internal/model"
	"github.com/hailam/chessnet/internal/server"
	"github.com/hailam/chessnet/internal/uci"
)

const version = "0.1.0"

const usage = `usage: chessnet <command> [flags] [args]

commands:
  init        create a freshly initialized network and store it
  eval        evaluate FEN positions (default: the starting position)
  calibrate   refresh batch-norm statistics from FEN positions
  serve       run the HTTP/WebSocket evaluation server
  uci         play the network's policy over UCI on stdin/stdout
  info        list stored checkpoints
  export      write a checkpoint's weights to a file
  import      store weights read from a file

run "chessnet <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	commands := map[string]func(*env, []string) error{
		"init":      runInit,
		"eval":      runEval,
		"calibrate": runCalibrate,
		"serve":     runServe,
		"uci":       runUCI,
		"info":      runInfo,
		"export":    runExport,
		"import":    runImport,
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "chessnet: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	e, args, err := setup(os.Args[1], os.Args[2:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "chessnet:", err)
		os.Exit(1)
	}
	err = run(e, args)
	e.close()
	if err != nil {
		e.log.Error().Err(err).Msg(os.Args[1] + " failed")
		os.Exit(1)
	}
}

// env is the state every command shares.
type env struct {
	cfg   config.Config
	log   zerolog.Logger
	store *checkpoint.Store
	name  string
	stop  func()
}

func (e *env) close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.log.Warn().Err(err).Msg("closing checkpoint store")
		}
	}
	if e.stop != nil {
		e.stop()
	}
}

// setup parses the common flags, loads the config and opens the store.
func setup(cmd string, args []string) (*env, []string, error) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "", "config file (default: <data dir>/config.toml)")
	name := fs.String("name", "", "checkpoint name (default: storage.checkpoint from config)")
	cpuprofile := fs.String("cpuprofile", "", "write cpu profile to file")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	e := &env{
		cfg:  cfg,
		log:  logging.New(cfg.Log.Level, cfg.Log.Pretty),
		name: cfg.Storage.Checkpoint,
	}
	if *name != "" {
		e.name = *name
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return nil, nil, fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("could not start CPU profile: %w", err)
		}
		e.stop = func() {
			pprof.StopCPUProfile()
			f.Close()
		}
	}

	dir, err := cfg.CheckpointDir()
	if err != nil {
		e.close()
		return nil, nil, err
	}
	if e.store, err = checkpoint.Open(dir, e.log); err != nil {
		e.close()
		return nil, nil, err
	}
	return e, fs.Args(), nil
}

// network loads the named checkpoint. A missing checkpoint yields a freshly
// initialized network from the config so eval works out of the box.
func (e *env) network() (*model.Network, error) {
	dev := e.cfg.ResolveDevice()
	net, meta, err := e.store.OpenNetwork(e.name, model.WithDevice(dev))
	if errors.Is(err, checkpoint.ErrNotFound) {
		e.log.Warn().Str("name", e.name).Msg("checkpoint not found, using a freshly initialized network")
		return model.New(e.cfg.Model, model.WithDevice(dev))
	}
	if err != nil {
		return nil, err
	}
	e.log.Info().Str("name", meta.Name).Str("id", meta.ID).Str("config", meta.Config().String()).Msg("checkpoint loaded")
	return net, nil
}

func (e *env) service(net *model.Network) *inference.Service {
	return inference.New(net, inference.Options{
		MaxBatch: e.cfg.Server.MaxBatch,
		TopMoves: e.cfg.Server.TopMoves,
	}, e.log)
}

func runInit(e *env, args []string) error {
	if _, err := e.store.Get(e.name); err == nil && (len(args) == 0 || args[0] != "force") {
		return fmt.Errorf("checkpoint %q already exists (pass \"force\" to replace it)", e.name)
	}
	net, err := model.New(e.cfg.Model, model.WithDevice(e.cfg.ResolveDevice()))
	if err != nil {
		return err
	}
	meta, err := e.store.Save(e.name, net)
	if err != nil {
		return err
	}
	fmt.Printf("created %s (%s, %d parameters)\n", meta.Name, meta.Config(), meta.Parameters)
	return nil
}

func fensOrStart(args []string) []string {
	if len(args) == 0 {
		return []string{board.StartFEN}
	}
	return args
}

func runEval(e *env, args []string) error {
	net, err := e.network()
	if err != nil {
		return err
	}
	results, err := e.service(net).Evaluate(context.Background(), fensOrStart(args))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, r := range results {
		fmt.Fprintf(w, "%s\nvalue\t%+.4f (cp %d)\nlegal moves\t%d\n", r.FEN, r.Value, uci.Centipawns(r.Value), r.LegalMoves)
		for _, m := range r.Moves {
			fmt.Fprintf(w, "  %s\t%.4f\t(logit %+.3f)\n", m.UCI, m.Prob, m.Logit)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func runCalibrate(e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("calibrate needs at least one FEN")
	}
	net, err := e.network()
	if err != nil {
		return err
	}
	if err := e.service(net).Calibrate(context.Background(), args, model.DefaultMomentum); err != nil {
		return err
	}
	_, err = e.store.Save(e.name, net)
	return err
}

func runServe(e *env, args []string) error {
	net, err := e.network()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return server.New(e.cfg.Server.Addr, e.service(net), version, e.log).Run(ctx)
}

func runUCI(e *env, args []string) error {
	net, err := e.network()
	if err != nil {
		return err
	}
	return uci.New(e.service(net), os.Stdout, e.log).Run(context.Background(), os.Stdin)
}

func runInfo(e *env, args []string) error {
	metas, err := e.store.List()
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println("no checkpoints")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCONFIG\tPARAMETERS\tSIZE\tCREATED\tID")
	for _, m := range metas {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			m.Name, m.Config(), m.Parameters, m.Size, m.Created.Format("2006-01-02 15:04"), m.ID)
	}
	return w.Flush()
}

func runExport(e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("export needs an output file")
	}
	net, _, err := e.store.OpenNetwork(e.name)
	if err != nil {
		return err
	}
	return net.SaveWeights(args[0])
}

func runImport(e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("import needs an input file")
	}
	net, err := model.New(e.cfg.Model)
	if err != nil {
		return err
	}
	if err := net.LoadWeights(args[0]); err != nil {
		return err
	}
	meta, err := e.store.Save(e.name, net)
	if err != nil {
		return err
	}
	fmt.Printf("imported %s as %s (%s)\n", args[0], meta.Name, meta.Config())
	return nil
}
