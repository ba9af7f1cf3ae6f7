/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestCompositeUnit_StartStop(t *testing.T) {
	var running atomic.Int32
	units := []*mockUnit{newMockUnit("a", &running), newMockUnit("b", &running), newMockUnit("c", &running)}
	cu := NewCompositeUnit(units[0], units[1], units[2])

	cu.MustRegisterMetrics()
	fatalErr := make(chan error, 1)
	go cu.Start(fatalErr)
	require.NoError(t, waitTrue(func() bool { return running.Load() == 3 }, 3*time.Second))

	require.NoError(t, cu.Stop(true))
	require.NoError(t, waitTrue(func() bool { return running.Load() == 0 }, 3*time.Second))
	cu.UnregisterMetrics()

	for _, u := range units {
		require.Equal(t, int32(1), u.startCalled.Load())
		require.Equal(t, int32(1), u.stopGracefullyCalled.Load())
		require.Equal(t, int32(1), u.mustRegisterMetricsCalled.Load())
		require.Equal(t, int32(1), u.unregisterMetricsCalled.Load())
	}
	require.Empty(t, fatalErr)
}

func TestCompositeUnit_StopErrors(t *testing.T) {
	var running atomic.Int32
	a, b := newMockUnit("a", &running), newMockUnit("b", &running)
	a.stopErr, b.stopErr = true, true
	err := NewCompositeUnit(a, b).Stop(false)

	var cuErr *CompositeUnitError
	require.ErrorAs(t, err, &cuErr)
	require.Len(t, cuErr.UnitErrors, 2)
	require.Contains(t, err.Error(), "a: stop failed")
	require.Contains(t, err.Error(), "b: stop failed")
}

func TestCompositeUnit_FatalErrorStopsOthers(t *testing.T) {
	var running atomic.Int32
	healthy := newMockUnit("healthy", &running)
	broken := newMockUnit("broken", &running)
	broken.startErr = errors.New("listen failed")
	healthy.stopErr = true

	fatalErr := make(chan error, 1)
	NewCompositeUnit(healthy, broken).Start(fatalErr)

	err := <-fatalErr
	require.ErrorIs(t, err, broken.startErr)
	require.Contains(t, err.Error(), "healthy: stop failed")
	require.Equal(t, int32(1), healthy.stopCalled.Load())
	require.Equal(t, int32(0), healthy.stopGracefullyCalled.Load())
}
