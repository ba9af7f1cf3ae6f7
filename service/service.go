/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leadforge/siteapi/log"
)

// DefaultShutdownSignals are the OS signals that make the service stop gracefully.
var DefaultShutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Opts represents an options for Service.
type Opts struct {
	ShutdownSignals []os.Signal
}

// Service starts a unit, registers its metrics
// and stops it gracefully when a shutdown signal is received or the context is canceled.
type Service struct {
	Unit    Unit
	Logger  log.FieldLogger
	Signals chan os.Signal
	Opts    Opts
}

// New creates a new Service listening for DefaultShutdownSignals.
func New(logger log.FieldLogger, unit Unit) *Service {
	return NewWithOpts(logger, unit, Opts{ShutdownSignals: DefaultShutdownSignals})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	return &Service{Unit: unit, Logger: logger, Signals: make(chan os.Signal, 1), Opts: opts}
}

// Start is StartContext with the background context.
func (s *Service) Start() error {
	return s.StartContext(context.Background())
}

// StartContext runs the unit in a separate goroutine and blocks until
// a fatal error, a shutdown signal or the context cancellation.
func (s *Service) StartContext(ctx context.Context) error {
	if mr, ok := s.Unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	if len(s.Opts.ShutdownSignals) != 0 {
		signal.Notify(s.Signals, s.Opts.ShutdownSignals...)
		defer signal.Stop(s.Signals)
	}

	fatalErr := make(chan error, 1)
	go s.Unit.Start(fatalErr)

	select {
	case err := <-fatalErr:
		s.Logger.Error("service fatal error", log.Error(err))
		return fmt.Errorf("fatal error: %w", err)
	case sig := <-s.Signals:
		s.Logger.Info("service got signal", log.String("signal", sig.String()))
	case <-ctx.Done():
		s.Logger.Info("context is canceled, service will be stopped")
	}

	if err := s.Unit.Stop(true); err != nil {
		return fmt.Errorf("stop service gracefully: %w", err)
	}
	s.Logger.Info("service stopped")
	return nil
}
