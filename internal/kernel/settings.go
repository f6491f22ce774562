package kernel

import (
	"context"
	"log/slog"
	"time"
)

type settings struct {
	hookTimeout     time.Duration
	shutdownTimeout time.Duration
	// defaults applied to subscriptions that leave fields at zero
	queueSize      int
	workers        int
	handlerTimeout time.Duration

	logger *slog.Logger
	report func(ctx context.Context, scope string, err error)
}

// Option customizes a Kernel built by New.
type Option func(*settings)

func newSettings(options []Option) settings {
	s := settings{
		hookTimeout:     5 * time.Second,
		shutdownTimeout: 10 * time.Second,
		queueSize:       256,
		workers:         1,
		handlerTimeout:  3 * time.Second,
		logger:          slog.Default(),
	}
	for _, option := range options {
		option(&s)
	}
	if s.report == nil {
		logger := s.logger
		s.report = func(ctx context.Context, scope string, err error) {
			logger.ErrorContext(ctx, "kernel background failure", "scope", scope, "error", err)
		}
	}

	return s
}

// WithLogger sets the logger used for background failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAsyncErrorHandler replaces logging of background failures, such as
// handler errors and dropped events, with handler.
func WithAsyncErrorHandler(handler func(ctx context.Context, scope string, err error)) Option {
	return func(s *settings) {
		if handler != nil {
			s.report = handler
		}
	}
}

// WithModuleHookTimeout bounds each OnRegister, OnStart and OnShutdown call.
func WithModuleHookTimeout(timeout time.Duration) Option {
	return positiveDuration(timeout, func(s *settings) *time.Duration { return &s.hookTimeout })
}

// WithShutdownTimeout bounds the whole teardown after Run stops.
func WithShutdownTimeout(timeout time.Duration) Option {
	return positiveDuration(timeout, func(s *settings) *time.Duration { return &s.shutdownTimeout })
}

// WithDefaultHandlerTimeout bounds one handler call when the subscription
// does not set its own timeout.
func WithDefaultHandlerTimeout(timeout time.Duration) Option {
	return positiveDuration(timeout, func(s *settings) *time.Duration { return &s.handlerTimeout })
}

// WithDefaultSubscriptionBuffer sets the default queue size per subscription.
func WithDefaultSubscriptionBuffer(size int) Option {
	return func(s *settings) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDefaultSubscriptionWorkers sets the default worker count per subscription.
func WithDefaultSubscriptionWorkers(workers int) Option {
	return func(s *settings) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

func positiveDuration(value time.Duration, field func(*settings) *time.Duration) Option {
	return func(s *settings) {
		if value > 0 {
			*field(s) = value
		}
	}
}
