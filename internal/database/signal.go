package database

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownContext derives a context from parent that is cancelled on SIGINT
// or SIGTERM, so running scans stop and connections can be closed. onSignal,
// if set, runs before cancellation. Call stop to release the handler.
func ShutdownContext(parent context.Context, onSignal func(os.Signal)) (ctx context.Context, stop context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			if onSignal != nil {
				onSignal(sig)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
