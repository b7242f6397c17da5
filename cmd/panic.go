package cmd

import (
	"log"
	"os"

	"github.com/bcap/stepper/chain"
)

const (
	ExitFailure     = 1
	ExitConfigError = 2
)

// ExitCode is the process exit code for err: configuration errors exit with
// ExitConfigError, anything else with ExitFailure
func ExitCode(err error) int {
	if chain.IsConfigError(err) {
		return ExitConfigError
	}
	return ExitFailure
}

func ExitOnErr(err error) {
	if err != nil {
		log.Printf("fatal error: %v", err)
		os.Exit(ExitCode(err))
	}
}
