package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AllHealthy(t *testing.T) {
	m := NewManager(time.Minute)
	m.Register(NewFuncChecker("upstream", true, func(ctx context.Context) error { return nil }))
	m.Register(NewFuncChecker("linkstore", true, func(ctx context.Context) error { return nil }))

	r := m.Run(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	require.Len(t, r.Checks, 2)
}

func TestManager_OptionalFailureDegradesNotCritical(t *testing.T) {
	m := NewManager(time.Minute)
	m.Register(NewFuncChecker("model_adapter", false, func(ctx context.Context) error { return errors.New("unreachable") }))

	r := m.Run(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
}

func TestManager_RequiredFailureIsDegradedUntilGraceWindowElapses(t *testing.T) {
	m := NewManager(50 * time.Millisecond)
	failing := true
	m.Register(NewFuncChecker("upstream", true, func(ctx context.Context) error {
		if failing {
			return errors.New("down")
		}
		return nil
	}))

	r := m.Run(context.Background())
	assert.Equal(t, StatusDegraded, r.Status, "a fresh failure should not immediately be critical")

	time.Sleep(60 * time.Millisecond)
	r = m.Run(context.Background())
	assert.Equal(t, StatusCritical, r.Status, "a required probe failing past the grace window is critical")
}

func TestManager_RecoveryResetsFailingSince(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	fail := true
	m.Register(NewFuncChecker("upstream", true, func(ctx context.Context) error {
		if fail {
			return errors.New("down")
		}
		return nil
	}))

	m.Run(context.Background())
	time.Sleep(20 * time.Millisecond)
	fail = false
	r := m.Run(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)

	fail = true
	r = m.Run(context.Background())
	assert.Equal(t, StatusDegraded, r.Status, "failure window must restart after a recovery, not carry over")
}

func TestQueueDepthChecker_AlwaysHealthy(t *testing.T) {
	c := NewQueueDepthChecker(func() map[string]int {
		return map[string]int{"queued": 3, "running": 1}
	})
	r := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
}
