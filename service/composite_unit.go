/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"strings"
	"sync"
)

// CompositeUnit starts and stops several units as one.
type CompositeUnit struct {
	Units []Unit
}

var _ Unit = (*CompositeUnit)(nil)
var _ MetricsRegisterer = (*CompositeUnit)(nil)

// NewCompositeUnit creates a new composite unit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// Start starts all units concurrently and returns when every Start has returned,
// or as soon as one of them reports a fatal error.
// In the latter case all units are stopped non-gracefully and a *CompositeUnitError
// with the fatal error and the stop errors (if any) is sent to fatalErr.
func (cu *CompositeUnit) Start(fatalErr chan<- error) {
	if len(cu.Units) == 0 {
		return
	}

	failed := make(chan error, len(cu.Units))
	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for _, u := range cu.Units {
		go func(u Unit) {
			defer wg.Done()
			unitErr := make(chan error, 1)
			u.Start(unitErr)
			select {
			case err := <-unitErr:
				failed <- err
			default:
			}
		}(u)
	}

	allReturned := make(chan struct{})
	go func() {
		wg.Wait()
		close(allReturned)
	}()

	var firstErr error
	select {
	case firstErr = <-failed:
	case <-allReturned:
		select {
		case firstErr = <-failed:
		default:
			return
		}
	}

	errs := []error{firstErr}
	var stopErr *CompositeUnitError
	if err := cu.Stop(false); errors.As(err, &stopErr) {
		errs = append(errs, stopErr.UnitErrors...)
	}
	fatalErr <- &CompositeUnitError{UnitErrors: errs}
}

// Stop stops all units concurrently and collects their errors into a single *CompositeUnitError.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	errs := make([]error, len(cu.Units))
	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for i, u := range cu.Units {
		go func(i int, u Unit) {
			defer wg.Done()
			errs[i] = u.Stop(gracefully)
		}(i, u)
	}
	wg.Wait()

	var unitErrs []error
	for _, err := range errs {
		if err != nil {
			unitErrs = append(unitErrs, err)
		}
	}
	if len(unitErrs) != 0 {
		return &CompositeUnitError{UnitErrors: unitErrs}
	}
	return nil
}

// MustRegisterMetrics registers metrics of every unit that has them.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics unregisters metrics of every unit that has them.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}

// CompositeUnitError contains errors of the units in a CompositeUnit.
type CompositeUnitError struct {
	UnitErrors []error
}

func (e *CompositeUnitError) Error() string {
	msgs := make([]string, 0, len(e.UnitErrors))
	for _, err := range e.UnitErrors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap makes errors.Is and errors.As look into every unit error.
func (e *CompositeUnitError) Unwrap() []error {
	return e.UnitErrors
}
