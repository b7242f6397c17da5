package cmd

import (
	"os"
	"os/signal"
)

// InstallSignalHandler calls fn once, on the first of signals received. The
// returned function uninstalls the handler
func InstallSignalHandler(fn func(os.Signal), signals ...os.Signal) func() {
	c := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(c, signals...)
	go func() {
		select {
		case sig := <-c:
			fn(sig)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(c)
		close(done)
	}
}
