// Copyright dSPACE GmbH. All rights reserved.

// Package session wires the byte channel, wire protocol, I/O buffer, and
// bus buffer layers into the two endpoints of a co-simulation session: a
// Server (owning the simulation's authoritative step loop) and a Client
// (driving or observing it via callbacks or polling).
package session

import (
	cosim "github.com/dspace-group/veos-cosim-go"
)

// Callbacks are the session-lifecycle and payload-delivery hooks a client
// registers before running a callback-based co-simulation. Any field may
// be left nil; a nil callback is simply not invoked.
type Callbacks struct {
	SimulationStarted     func(simulationTime cosim.SimulationTime)
	SimulationStopped     func(simulationTime cosim.SimulationTime)
	SimulationTerminated  func(simulationTime cosim.SimulationTime, reason cosim.TerminateReason)
	SimulationPaused      func(simulationTime cosim.SimulationTime)
	SimulationContinued   func(simulationTime cosim.SimulationTime)
	SimulationBeginStep   func(simulationTime cosim.SimulationTime)
	SimulationEndStep     func(simulationTime cosim.SimulationTime)
	IncomingSignalChanged func(simulationTime cosim.SimulationTime, signal cosim.IoSignal, value []byte)
	CanMessageReceived    func(simulationTime cosim.SimulationTime, controller cosim.CanController, message cosim.CanMessage)
	LinMessageReceived    func(simulationTime cosim.SimulationTime, controller cosim.LinController, message cosim.LinMessage)
	EthMessageReceived    func(simulationTime cosim.SimulationTime, controller cosim.EthController, message cosim.EthMessage)
}

func (cb Callbacks) fireSimulationStarted(t cosim.SimulationTime) {
	if cb.SimulationStarted != nil {
		cb.SimulationStarted(t)
	}
}

func (cb Callbacks) fireSimulationStopped(t cosim.SimulationTime) {
	if cb.SimulationStopped != nil {
		cb.SimulationStopped(t)
	}
}

func (cb Callbacks) fireSimulationTerminated(t cosim.SimulationTime, reason cosim.TerminateReason) {
	if cb.SimulationTerminated != nil {
		cb.SimulationTerminated(t, reason)
	}
}

func (cb Callbacks) fireSimulationPaused(t cosim.SimulationTime) {
	if cb.SimulationPaused != nil {
		cb.SimulationPaused(t)
	}
}

func (cb Callbacks) fireSimulationContinued(t cosim.SimulationTime) {
	if cb.SimulationContinued != nil {
		cb.SimulationContinued(t)
	}
}

func (cb Callbacks) fireBeginStep(t cosim.SimulationTime) {
	if cb.SimulationBeginStep != nil {
		cb.SimulationBeginStep(t)
	}
}

func (cb Callbacks) fireEndStep(t cosim.SimulationTime) {
	if cb.SimulationEndStep != nil {
		cb.SimulationEndStep(t)
	}
}
