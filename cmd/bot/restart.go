package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"

	"sandwich/pkg/sandwich"
)

var errRestartRequested = errors.New("restart requested")

// processRestarter stops the kernel run and, once shutdown completes,
// replaces the process image with a fresh copy of the binary.
type processRestarter struct {
	logger  *slog.Logger
	cancel  context.CancelCauseFunc
	pending atomic.Bool

	executable func() (string, error)
	execve     func(argv0 string, argv []string, envv []string) error
}

func newProcessRestarter(logger *slog.Logger, cancel context.CancelCauseFunc) *processRestarter {
	return &processRestarter{
		logger:     logger,
		cancel:     cancel,
		executable: os.Executable,
		execve:     syscall.Exec,
	}
}

// RequestRestart cancels the run context with a restart cause.
func (r *processRestarter) RequestRestart(ctx context.Context, reason string) error {
	if !r.pending.CompareAndSwap(false, true) {
		return nil
	}
	r.logger.InfoContext(ctx, "restart requested", "reason", reason)
	r.cancel(errRestartRequested)

	return nil
}

func (r *processRestarter) requested() bool {
	return r.pending.Load()
}

func (r *processRestarter) exec() error {
	binary, err := r.executable()
	if err != nil {
		return fmt.Errorf("restart resolve executable: %w", err)
	}
	r.logger.Info("restarting", "binary", binary)

	if err := r.execve(binary, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("restart exec %s: %w", binary, err)
	}

	return nil
}

var _ sandwich.Restarter = (*processRestarter)(nil)
