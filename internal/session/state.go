// Copyright dSPACE GmbH. All rights reserved.

package session

import (
	"fmt"
	"sync"

	cosim "github.com/dspace-group/veos-cosim-go"
)

// stateMachine guards a cosim.SimulationState behind the transition rules
// already encoded on the type itself, so every session endpoint enforces
// the same Unloaded -> Stopped -> Running <-> Paused; any -> Terminated
// shape.
type stateMachine struct {
	mu    sync.RWMutex
	state cosim.SimulationState
}

func newStateMachine(initial cosim.SimulationState) *stateMachine {
	return &stateMachine{state: initial}
}

func (m *stateMachine) Get() cosim.SimulationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// transition moves to next if allowed, returning an error wrapping
// ErrInvalidArgument otherwise.
func (m *stateMachine) transition(next cosim.SimulationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.CanTransition(next) {
		return fmt.Errorf("%w: cannot transition from %s to %s", cosim.ErrInvalidArgument, m.state, next)
	}
	m.state = next
	return nil
}
