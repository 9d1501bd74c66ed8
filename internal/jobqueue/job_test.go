package jobqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_MatchesStateDiagram(t *testing.T) {
	cases := []struct {
		from, to State
		legal    bool
	}{
		{StateQueued, StateRunning, true},
		{StateQueued, StateCancelled, true},
		{StateQueued, StateFailed, false},
		{StateRunning, StateSucceeded, true},
		{StateRunning, StateFailed, true},
		{StateRunning, StateCancelled, true},
		{StateRunning, StatePaused, true},
		{StatePaused, StateRunning, true},
		{StatePaused, StateCancelled, true},
		{StatePaused, StateSucceeded, false},
		{StateSucceeded, StateRunning, false},
		{StateFailed, StateQueued, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.legal, canTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestJobTransition_ResetsProgressEnteringRunning(t *testing.T) {
	j := newJob("/a.mp4", PriorityNormal, nil)
	j.Progress = 42
	j.State = StateQueued

	require.NoError(t, j.transition(StateRunning))
	assert.Equal(t, 0, j.Progress)
}

func TestJobTransition_RejectsIllegalEdge(t *testing.T) {
	j := newJob("/a.mp4", PriorityNormal, nil)
	err := j.transition(StateSucceeded)
	assert.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StateSucceeded.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.True(t, StateCancelled.IsTerminal())
	assert.False(t, StateQueued.IsTerminal())
	assert.False(t, StateRunning.IsTerminal())
	assert.False(t, StatePaused.IsTerminal())
}
