// Package shutdown turns termination signals into context cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
)

// Notify relays the platform's termination signals to ch.
func Notify(ch chan<- os.Signal) {
	signal.Notify(ch, signals...)
}

// Context returns a copy of parent that is cancelled on the first
// termination signal. A second signal falls through to the default
// handler and kills the process.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(parent, signals...)
	go func() {
		<-ctx.Done()
		// restore default behaviour so a stuck teardown can still be interrupted
		signal.Reset(signals...)
	}()
	return ctx, cancel
}
