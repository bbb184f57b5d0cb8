// Copyright dSPACE GmbH. All rights reserved.

// Package cosim defines the shared data model of the co-simulation
// transport and coordination runtime: simulation time, opaque identifiers,
// enums carried on the wire, and the session state machine. It has no
// network or shared-memory dependency; those live under internal/.
package cosim

import (
	"fmt"
	"time"
)

// SimulationTime is signed nanoseconds, monotonic per session.
type SimulationTime int64

func (t SimulationTime) String() string {
	return time.Duration(t).String()
}

// IoSignalId, BusControllerId and BusMessageId are opaque 32-bit handles,
// unique within a session.
type (
	IoSignalId      uint32
	BusControllerId uint32
	BusMessageId    uint32
)

func (id IoSignalId) String() string      { return fmt.Sprintf("IoSignal(%d)", uint32(id)) }
func (id BusControllerId) String() string { return fmt.Sprintf("BusController(%d)", uint32(id)) }
func (id BusMessageId) String() string    { return fmt.Sprintf("BusMessage(%d)", uint32(id)) }

// CoSimType distinguishes which end of a session an object represents.
type CoSimType uint32

const (
	CoSimTypeClient CoSimType = iota
	CoSimTypeServer
)

// ConnectionKind selects the transport backend for a session.
type ConnectionKind uint32

const (
	ConnectionKindRemote ConnectionKind = iota
	ConnectionKindLocal
)

func (k ConnectionKind) String() string {
	if k == ConnectionKindLocal {
		return "Local"
	}
	return "Remote"
}

// Command is the lifecycle command carried in StepOk and used to unblock a
// client waiting on Ping while the server is not running.
type Command uint32

const (
	CommandNone Command = iota
	CommandStep
	CommandStart
	CommandStop
	CommandTerminate
	CommandPause
	CommandContinue
	CommandTerminateFinished
	CommandPing
)

func (c Command) String() string {
	switch c {
	case CommandStep:
		return "Step"
	case CommandStart:
		return "Start"
	case CommandStop:
		return "Stop"
	case CommandTerminate:
		return "Terminate"
	case CommandPause:
		return "Pause"
	case CommandContinue:
		return "Continue"
	case CommandTerminateFinished:
		return "TerminateFinished"
	case CommandPing:
		return "Ping"
	default:
		return "None"
	}
}

// Severity of a log-worthy event raised through the registered logger.
type Severity uint32

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	SeverityTrace
)

// TerminateReason travels in the Terminate frame.
type TerminateReason uint32

const (
	TerminateReasonFinished TerminateReason = iota
	TerminateReasonError
)

func (r TerminateReason) String() string {
	if r == TerminateReasonError {
		return "Error"
	}
	return "Finished"
}

// SimulationState is the session state machine:
// Unloaded -> Stopped -> Running <-> Paused; any -> Terminated.
type SimulationState uint32

const (
	SimulationStateUnloaded SimulationState = iota
	SimulationStateStopped
	SimulationStateRunning
	SimulationStatePaused
	SimulationStateTerminated
)

func (s SimulationState) String() string {
	switch s {
	case SimulationStateStopped:
		return "Stopped"
	case SimulationStateRunning:
		return "Running"
	case SimulationStatePaused:
		return "Paused"
	case SimulationStateTerminated:
		return "Terminated"
	default:
		return "Unloaded"
	}
}

// CanTransition reports whether the state machine allows moving from s to
// next.
func (s SimulationState) CanTransition(next SimulationState) bool {
	if next == SimulationStateTerminated {
		return true
	}
	switch s {
	case SimulationStateUnloaded:
		return next == SimulationStateStopped
	case SimulationStateStopped:
		return next == SimulationStateRunning
	case SimulationStateRunning:
		return next == SimulationStatePaused || next == SimulationStateStopped
	case SimulationStatePaused:
		return next == SimulationStateRunning || next == SimulationStateStopped
	default:
		return false
	}
}

// ProtocolVersion is negotiated at Connect time as min(client, server).
type ProtocolVersion uint32

const (
	ProtocolVersion1 ProtocolVersion = 1
	ProtocolVersion2 ProtocolVersion = 2

	// CurrentProtocolVersion is the highest version this implementation speaks.
	CurrentProtocolVersion = ProtocolVersion2
)

// SupportsFlexRay reports whether FlexRay catalogs/messages are present on
// the wire at this negotiated version.
func (v ProtocolVersion) SupportsFlexRay() bool { return v >= ProtocolVersion2 }

// SupportsPingRoundTrip reports whether PingOk carries a round-trip
// nanoseconds field at this negotiated version. Ping carries no such field
// at any version.
func (v ProtocolVersion) SupportsPingRoundTrip() bool { return v >= ProtocolVersion2 }
