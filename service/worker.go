/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/leadforge/siteapi/log"
)

// ErrPeriodicWorkerStop may be returned by the underlying worker to stop PeriodicWorker's loop.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker")

// Worker performs some (usually long-running) work until the context is canceled.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run implements Worker.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorkerOpts contains optional parameters for PeriodicWorker.
type PeriodicWorkerOpts struct {
	InitialDelay time.Duration

	// IntervalDelayFunc overrides the constant interval, e.g. to back off after errors.
	IntervalDelayFunc func(worker Worker, err error) time.Duration
}

// PeriodicWorker runs the underlying worker with a delay between runs.
// Errors of a single run are logged and do not stop the loop.
type PeriodicWorker struct {
	worker   Worker
	interval time.Duration
	logger   log.FieldLogger
	opts     PeriodicWorkerOpts
}

// NewPeriodicWorker creates a new PeriodicWorker with a constant interval.
func NewPeriodicWorker(worker Worker, interval time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, interval, logger, PeriodicWorkerOpts{})
}

// NewPeriodicWorkerWithOpts creates a new PeriodicWorker with options.
func NewPeriodicWorkerWithOpts(
	worker Worker, interval time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	return &PeriodicWorker{worker: worker, interval: interval, logger: logger, opts: opts}
}

// Run runs the loop until ctx is canceled or the worker returns ErrPeriodicWorkerStop.
func (pw *PeriodicWorker) Run(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			buf := make([]byte, 8192)
			buf = buf[:runtime.Stack(buf, false)]
			pw.logger.Error(fmt.Sprintf("panic in periodic worker: %+v", p), log.Bytes("stack", buf))
			panic(p)
		}
		pw.logger.Info("periodic worker stopped")
	}()

	pw.logger.Info("starting periodic worker",
		log.Duration("initial_delay", pw.opts.InitialDelay), log.Duration("interval", pw.interval))

	timer := time.NewTimer(pw.opts.InitialDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		runErr := pw.worker.Run(ctx)
		if errors.Is(runErr, ErrPeriodicWorkerStop) {
			return nil
		}
		if runErr != nil {
			pw.logger.Error("periodic worker run failed", log.Error(runErr))
		}

		next := pw.interval
		if pw.opts.IntervalDelayFunc != nil {
			next = pw.opts.IntervalDelayFunc(pw.worker, runErr)
		}
		timer.Reset(next)
	}
}
