/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"
)

type mockUnit struct {
	name     string
	running  *atomic.Int32
	stopCh   chan struct{}
	startErr error
	stopErr  bool

	startCalled               atomic.Int32
	stopCalled                atomic.Int32
	stopGracefullyCalled      atomic.Int32
	mustRegisterMetricsCalled atomic.Int32
	unregisterMetricsCalled   atomic.Int32
}

func newMockUnit(name string, running *atomic.Int32) *mockUnit {
	return &mockUnit{name: name, running: running, stopCh: make(chan struct{}, 1)}
}

func (u *mockUnit) Start(fatalErr chan<- error) {
	u.startCalled.Inc()
	if u.startErr != nil {
		fatalErr <- u.startErr
		return
	}
	u.running.Inc()
	<-u.stopCh
	u.running.Dec()
}

func (u *mockUnit) Stop(gracefully bool) error {
	u.stopCalled.Inc()
	if gracefully {
		u.stopGracefullyCalled.Inc()
	}
	select {
	case u.stopCh <- struct{}{}:
	default:
	}
	if u.stopErr {
		return fmt.Errorf("%s: stop failed", u.name)
	}
	return nil
}

func (u *mockUnit) MustRegisterMetrics() { u.mustRegisterMetricsCalled.Inc() }

func (u *mockUnit) UnregisterMetrics() { u.unregisterMetricsCalled.Inc() }

func waitTrue(cond func() bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errors.New("condition was not met in time")
}
