package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/bcap/stepper/chain"
	"github.com/bcap/stepper/cmd"
	"github.com/bcap/stepper/handler"
	"github.com/bcap/stepper/manifest"
	"github.com/bcap/stepper/runner"
)

type Args struct {
	Manifest    string        `arg:"positional" help:"The manifest file (yaml, or json when ending in .json). Not needed with --server"`
	Input       string        `arg:"-i,--input" default:"-" help:"The JSON input file. Use \"-\" to read it from stdin"`
	Tag         string        `arg:"-t,--tag" help:"Sets the tag of the input, selecting the chain to run"`
	Server      string        `arg:"-s,--server,env:STEPPER_SERVER" help:"Runs the input on a stepper server at this base URL instead of locally"`
	RunID       string        `arg:"--run-id" help:"Run id to use. Generated when not set"`
	Concurrency int           `arg:"-c,--concurrency" default:"0" help:"Steps run at once by parallel capabilities that set no concurrency. 0 means all of them"`
	Timeout     time.Duration `arg:"--timeout" default:"0" help:"Aborts the run after this long. 0 means no timeout"`
	Check       bool          `arg:"--check" help:"Only builds the manifest and lists its chains"`
	Verbose     bool          `arg:"-v,--verbose" help:"Logs every step"`
	Profile     string        `arg:"--profile" help:"Enables profiling for the given mode. Available modes at cmd/profile.go"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	args := parseArgs()
	logger := cmd.ConfigureLogging(args.Verbose)

	if args.Profile != "" {
		stopper, err := cmd.ProfileStart(args.Profile, ".")
		cmd.ExitOnErr(err)
		defer stopper.Stop()
	}

	stopSignals := cmd.InstallSignalHandler(
		func(signal os.Signal) {
			log.Printf("interrupted by %v, aborting run", signal)
			cancel()
		},
		os.Interrupt,
	)
	defer stopSignals()

	if args.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, args.Timeout)
		defer timeoutCancel()
	}
	if args.RunID != "" {
		ctx = runner.ContextWithRunID(ctx, args.RunID)
	}

	if args.Check {
		check(args, logger)
		return
	}

	input := readInput(args.Input)
	if args.Tag != "" {
		input = input.Merge(chain.TagKey, args.Tag)
	}

	var result chain.Accumulator
	var err error
	if args.Server != "" {
		result, err = runRemote(ctx, args, input)
	} else {
		result, err = runLocal(ctx, args, logger, input)
	}
	if err != nil {
		// deferred calls do not run past os.Exit
		cancel()
		stopSignals()
		cmd.ExitOnErr(err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	cmd.ExitOnErr(encoder.Encode(result))
}

func parseArgs() Args {
	var args Args
	parser := arg.MustParse(&args)
	if args.Manifest == "" && args.Server == "" {
		parser.Fail("a manifest is required unless --server is set")
	}
	return args
}

func build(args Args, logger *slog.Logger) *manifest.Bundle {
	def, err := manifest.Load(args.Manifest)
	cmd.ExitOnErr(err)
	bundle, err := def.Build(nil, runner.WithLogger(logger), runner.WithConcurrency(args.Concurrency))
	cmd.ExitOnErr(err)
	return bundle
}

func check(args Args, logger *slog.Logger) {
	bundle := build(args, logger)
	defer bundle.Close()
	dispatcher, err := runner.NewDispatcher(runner.New(bundle.Registry, runner.WithLogger(logger)), bundle.Chains...)
	cmd.ExitOnErr(err)
	for _, tag := range dispatcher.Tags() {
		c, _ := dispatcher.Chain(tag)
		fmt.Printf("%s: %v\n", tag, c.Keys())
	}
}

func runLocal(ctx context.Context, args Args, logger *slog.Logger, input chain.Accumulator) (chain.Accumulator, error) {
	bundle := build(args, logger)
	defer bundle.Close()

	dispatcher, err := runner.NewDispatcher(runner.New(bundle.Registry, runner.WithLogger(logger)), bundle.Chains...)
	if err != nil {
		return nil, err
	}
	return dispatcher.RunByTag(ctx, input)
}

func runRemote(ctx context.Context, args Args, input chain.Accumulator) (chain.Accumulator, error) {
	result, runID, err := handler.Run(ctx, nil, args.Server, input, args.RunID)
	if runID != "" {
		log.Printf("run %s on %s", runID, args.Server)
	}
	return result, err
}

func readInput(location string) chain.Accumulator {
	var input io.Reader = os.Stdin
	if location != "-" {
		file, err := os.Open(location)
		cmd.ExitOnErr(err)
		defer file.Close()
		input = file
	}
	data, err := io.ReadAll(input)
	cmd.ExitOnErr(err)

	var acc chain.Accumulator
	err = json.Unmarshal(data, &acc)
	cmd.ExitOnErr(err)
	if acc == nil {
		acc = chain.Accumulator{}
	}
	return acc
}
