package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// setupSignalHandler returns a context that is cancelled when a shutdown
// signal is received
func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	// SIGINT (Ctrl+C), SIGTERM (termination), and SIGPIPE (broken pipe)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGPIPE)

	go func() {
		select {
		case sig := <-sigChan:
			fmt.Fprintf(os.Stderr, "\nReceived signal: %v\n", sig)
			// For SIGPIPE, we don't announce a shutdown as it's often a closed pager
			if sig != syscall.SIGPIPE {
				fmt.Fprintf(os.Stderr, "Initiating graceful shutdown...\n")
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
