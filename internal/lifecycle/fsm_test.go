package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from  types.RunStatus
		to    types.RunStatus
		valid bool
	}{
		{types.RunPending, types.RunRunning, true},
		{types.RunPending, types.RunFailed, true},
		{types.RunPending, types.RunCompleted, false},
		{types.RunRunning, types.RunCompleted, true},
		{types.RunRunning, types.RunPartial, true},
		{types.RunRunning, types.RunFailed, true},
		{types.RunRunning, types.RunPending, false},
		{types.RunCompleted, types.RunFailed, false},
		{types.RunPartial, types.RunRunning, false},
		{types.RunFailed, types.RunPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.valid, CanTransition(tt.from, tt.to))
			err := Transition(tt.from, tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(types.RunCompleted))
	assert.True(t, IsTerminal(types.RunPartial))
	assert.True(t, IsTerminal(types.RunFailed))
	assert.False(t, IsTerminal(types.RunPending))
	assert.False(t, IsTerminal(types.RunRunning))
}

func TestComponentTransitions(t *testing.T) {
	assert.True(t, CanTransitionComponent(types.ComponentPending, types.ComponentRunning))
	assert.True(t, CanTransitionComponent(types.ComponentPending, types.ComponentSkipped))
	assert.True(t, CanTransitionComponent(types.ComponentRunning, types.ComponentFailed))
	assert.False(t, CanTransitionComponent(types.ComponentRunning, types.ComponentSkipped))
	assert.False(t, CanTransitionComponent(types.ComponentSucceeded, types.ComponentRunning))
	assert.Error(t, TransitionComponent(types.ComponentSkipped, types.ComponentRunning))

	assert.True(t, ComponentTerminal(types.ComponentSkipped))
	assert.False(t, ComponentTerminal(types.ComponentRunning))
}

func TestRunOutcome(t *testing.T) {
	critical := map[string]bool{"facts": true}
	ok := types.ComponentResult{Name: "rollup", Status: types.ComponentSucceeded}

	assert.Equal(t, types.RunCompleted, RunOutcome([]types.ComponentResult{ok}, critical))
	assert.Equal(t, types.RunPartial, RunOutcome([]types.ComponentResult{
		ok, {Name: "affinity", Status: types.ComponentFailed},
	}, critical))
	assert.Equal(t, types.RunFailed, RunOutcome([]types.ComponentResult{
		{Name: "facts", Status: types.ComponentFailed},
		{Name: "rollup", Status: types.ComponentSkipped},
	}, critical))
	assert.Equal(t, types.RunCompleted, RunOutcome(nil, critical))
}
