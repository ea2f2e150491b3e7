// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package capability

import (
	"sync"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// State is the lifecycle state of a loaded bundle.
type State string

const (
	StateDiscovered State = "discovered"
	StateLoading    State = "loading"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
	StateErrored    State = "errored"
)

// validTransitions defines allowed state transitions as an adjacency list.
// Stopped and errored bundles may be loaded again.
var validTransitions = map[State]map[State]bool{
	StateDiscovered: {
		StateLoading: true,
		StateErrored: true,
	},
	StateLoading: {
		StateRunning: true,
		StateErrored: true,
	},
	StateRunning: {
		StateStopping: true,
		StateErrored:  true,
	},
	StateStopping: {
		StateStopped: true,
		StateErrored: true,
	},
	StateStopped: {
		StateLoading: true,
	},
	StateErrored: {
		StateLoading: true,
	},
}

// ValidTransition returns true if transitioning from one state to another is allowed.
func ValidTransition(from, to State) bool {
	return validTransitions[from][to]
}

// Instance tracks the lifecycle of one bundle.
type Instance struct {
	mu    sync.RWMutex
	name  string
	state State
	err   error
}

// NewInstance creates an instance in the discovered state.
func NewInstance(name string) *Instance {
	return &Instance{name: name, state: StateDiscovered}
}

func (i *Instance) Name() string {
	return i.name
}

func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Err returns the error that moved the instance into the errored state.
func (i *Instance) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.err
}

// TransitionTo attempts to transition to a new state. Returns an error if the
// transition is not valid.
func (i *Instance) TransitionTo(next State) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !ValidTransition(i.state, next) {
		return pawerr.Errorf(pawerr.CodeCapabilityTransitionInvalid,
			"invalid state transition for %s: %s -> %s", i.name, i.state, next)
	}
	i.state = next
	if next != StateErrored {
		i.err = nil
	}
	return nil
}

// Fail moves the instance into the errored state from wherever it is.
func (i *Instance) Fail(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = StateErrored
	i.err = err
}
