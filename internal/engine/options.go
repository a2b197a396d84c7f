package engine

import (
	"log/slog"
	"time"
)

// DefaultQueueSize is the handoff buffer between the backend and the
// dispatch goroutine.
const DefaultQueueSize = 1024

// Option configures an Engine.
type Option func(*Engine)

// WithQueueSize sets the handoff buffer size. Events delivered while it is
// full are dropped and counted.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithErrorHandler receives callback failures and hook loss. It runs on the
// dispatch goroutine and should return quickly.
func WithErrorHandler(fn func(error)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.onError = fn
		}
	}
}

// WithLogger sets the logger used by the default error handler and for
// lifecycle debug messages.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock replaces time.Now for event timestamps and multi-press timing.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
