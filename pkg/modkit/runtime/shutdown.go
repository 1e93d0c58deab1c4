package runtime

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/modcrafter77/hyperspot/pkg/logger"
)

// ShutdownMode selects how the runtime decides when to stop.
type ShutdownMode int

const (
	// ShutdownSignals cancels on SIGINT/SIGTERM.
	ShutdownSignals ShutdownMode = iota
	// ShutdownContext uses an externally supplied context directly.
	ShutdownContext
	// ShutdownChannel cancels when an external channel is closed.
	ShutdownChannel
)

// ShutdownOptions configures the shutdown controller. Exactly one mode is
// chosen at startup.
type ShutdownOptions struct {
	Mode ShutdownMode

	// Ctx is the external cancellation context for ShutdownContext.
	Ctx context.Context

	// Ch is the external completion channel for ShutdownChannel.
	Ch <-chan struct{}
}

// Signals returns the OS-signal shutdown configuration.
func Signals() ShutdownOptions {
	return ShutdownOptions{Mode: ShutdownSignals}
}

// FromContext returns a shutdown configuration driven by an external context.
func FromContext(ctx context.Context) ShutdownOptions {
	return ShutdownOptions{Mode: ShutdownContext, Ctx: ctx}
}

// FromChannel returns a shutdown configuration driven by an external channel.
func FromChannel(ch <-chan struct{}) ShutdownOptions {
	return ShutdownOptions{Mode: ShutdownChannel, Ch: ch}
}

// shutdownContext builds the root cancellation context for the selected mode.
// The returned stop function releases mode-specific resources.
func shutdownContext(opts ShutdownOptions) (context.Context, context.CancelFunc) {
	switch opts.Mode {
	case ShutdownContext:
		if opts.Ctx == nil {
			return context.WithCancel(context.Background())
		}
		ctx, cancel := context.WithCancel(opts.Ctx)
		logger.Log.Info("Shutdown: external context controls the lifecycle")
		return ctx, cancel

	case ShutdownChannel:
		ctx, cancel := context.WithCancel(context.Background())
		if opts.Ch != nil {
			go func() {
				<-opts.Ch
				logger.Log.Info("Shutdown: external channel completed")
				cancel()
			}()
		}
		return ctx, cancel

	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-ctx.Done()
			logger.Log.Info("Shutdown: signal received, initiating graceful shutdown")
		}()
		return ctx, stop
	}
}
