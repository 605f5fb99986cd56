package drainhub

import (
	"context"
	"os"
	"os/signal"
)

// WithSignals returns a copy of the parent context that will be canceled by
// signal(s). If no signals are provided, any incoming signal will cause
// cancel. Otherwise, just the provided signals will.
//
// Example of useful signals might be: [syscall.SIGINT], [syscall.SIGTERM].
//
// Note: this method will start internal monitoring goroutine.
func WithSignals(ctx context.Context, sig ...os.Signal) (context.Context, context.CancelFunc) {
	chSignals := make(chan os.Signal, 1)
	return withSignals(ctx, chSignals, sig...)
}

func withSignals(ctx context.Context, chSignals chan os.Signal, sig ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	signal.Notify(chSignals, sig...)

	// function invoke cancel once a signal arrived OR parent context is done:
	go func() {
		defer signal.Stop(chSignals)
		defer cancel()

		select {
		case <-chSignals:
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
