package main

import (
	"context"
	"os"
	"os/signal"
)

// interruptSignals defines the signals to catch in order to pause a running
// search cleanly.
var interruptSignals = []os.Signal{os.Interrupt}

// shutdownListener listens for OS signals such as SIGINT (Ctrl+C) and returns
// a context that is canceled when one is received.
func shutdownListener() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		interruptChannel := make(chan os.Signal, 1)
		signal.Notify(interruptChannel, interruptSignals...)

		sig := <-interruptChannel
		kldrLog.Infof("Received signal (%s).  Pausing...", sig)
		cancel()

		// Listen for repeated signals and display a message so the user
		// knows the pause is in progress and the process is not hung.
		for sig := range interruptChannel {
			kldrLog.Infof("Received signal (%s).  Already pausing...", sig)
		}
	}()
	return ctx
}
