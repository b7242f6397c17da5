package main

import (
	"context"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/bcap/stepper/cmd"
	"github.com/bcap/stepper/handler"
	"github.com/bcap/stepper/manifest"
	"github.com/bcap/stepper/metrics"
	"github.com/bcap/stepper/runner"
	srv "github.com/bcap/stepper/server"
)

type Args struct {
	ListenAddress   string        `arg:"-l,--listen,env:LISTEN_ADDRESS" default:":8080" help:"Which address to listen to"`
	Manifest        string        `arg:"-m,--manifest,required,env:STEPPER_MANIFEST" help:"The manifest file with the chains to serve"`
	Concurrency     int           `arg:"-c,--concurrency,env:STEPPER_CONCURRENCY" default:"0" help:"Steps run at once by parallel capabilities that set no concurrency. 0 means all of them"`
	ShutdownTimeout time.Duration `arg:"--shutdown-timeout" default:"5s" help:"How long in flight runs get to finish on shutdown"`
	Verbose         bool          `arg:"-v,--verbose,env:STEPPER_VERBOSE" help:"Logs every step"`
	Profile         string        `arg:"--profile" help:"Enables profiling for the given mode. Available modes at cmd/profile.go"`
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

	m := metrics.New()
	runnerOpts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithMetrics(m),
		runner.WithConcurrency(args.Concurrency),
	}

	def, err := manifest.Load(args.Manifest)
	cmd.ExitOnErr(err)
	bundle, err := def.Build(nil, runnerOpts...)
	cmd.ExitOnErr(err)
	defer bundle.Close()

	r := runner.New(bundle.Registry, runnerOpts...)
	dispatcher, err := runner.NewDispatcher(r, bundle.Chains...)
	cmd.ExitOnErr(err)

	server := srv.Server{}
	addr, err := server.Listen(ctx, args.ListenAddress)
	cmd.ExitOnErr(err)

	log.Printf("stepper server running with pid %v and listening on %v, serving chains %v", os.Getpid(), addr.AddrPort(), dispatcher.Tags())

	cmd.InstallSignalHandler(
		func(signal os.Signal) {
			log.Printf("stepper server interrupted by %v, shutting down", signal)
			if err := server.ShutdownWithTimeout(args.ShutdownTimeout); err != nil {
				log.Printf("shutdown did not complete: %v", err)
			}
			cancel()
		},
		os.Interrupt, syscall.SIGTERM,
	)

	err = server.Serve(handler.New(dispatcher, handler.WithMetrics(m)))
	if !srv.IsClosedError(err) {
		cmd.ExitOnErr(err)
	}
	<-ctx.Done()
	log.Printf("stepper server successfully shutdown, %d steps still outstanding", r.Outstanding())
}

func parseArgs() Args {
	var args Args
	arg.MustParse(&args)
	return args
}
