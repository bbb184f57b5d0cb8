// Copyright dSPACE GmbH. All rights reserved.

package protocol

import (
	cosim "github.com/dspace-group/veos-cosim-go"
)

// SerializeFunc appends one payload section (I/O signal changes or bus
// messages) to an already-open frame. DeserializeFunc does the inverse,
// given the simulation time carried in the frame header. The protocol
// layer never interprets these bytes itself; internal/iobuffer and
// internal/busbuffer supply the closures.
type (
	SerializeFunc   func(w *Writer) error
	DeserializeFunc func(r *Reader, t cosim.SimulationTime) error
)

// SendStep writes a Step frame: frame kind, simulation time, then the I/O
// and bus payload sections in that fixed order.
func SendStep(w *Writer, t cosim.SimulationTime, serializeIoData, serializeBusMessages SerializeFunc) error {
	if err := WriteFrameKind(w, FrameStep); err != nil {
		return err
	}
	if err := writeSimulationTime(w, t); err != nil {
		return err
	}
	if err := serializeIoData(w); err != nil {
		return err
	}
	if err := serializeBusMessages(w); err != nil {
		return err
	}
	return w.EndWrite()
}

// ReadStep decodes the fixed header of a Step frame (past its frame kind
// tag) and invokes the supplied closures, in wire order, to consume the
// variable-length I/O and bus payload sections. The caller is responsible
// for calling Reader.EndRead once both have returned.
func ReadStep(r *Reader, deserializeIoData, deserializeBusMessages DeserializeFunc) (cosim.SimulationTime, error) {
	t, err := readSimulationTime(r)
	if err != nil {
		return 0, err
	}
	if err := deserializeIoData(r, t); err != nil {
		return t, err
	}
	if err := deserializeBusMessages(r, t); err != nil {
		return t, err
	}
	return t, nil
}

// SendStepOk writes a StepOk frame: frame kind, the simulation time the
// step advanced to, the command the sender wants the peer to act on next,
// then the I/O and bus payload sections.
func SendStepOk(w *Writer, nextSimulationTime cosim.SimulationTime, command cosim.Command, serializeIoData, serializeBusMessages SerializeFunc) error {
	if err := WriteFrameKind(w, FrameStepOk); err != nil {
		return err
	}
	if err := writeSimulationTime(w, nextSimulationTime); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(command)); err != nil {
		return err
	}
	if err := serializeIoData(w); err != nil {
		return err
	}
	if err := serializeBusMessages(w); err != nil {
		return err
	}
	return w.EndWrite()
}

// ReadStepOk decodes the fixed header of a StepOk frame (past its frame
// kind tag) and invokes the supplied closures to consume the payload
// sections, returning the next simulation time and the command the sender
// asked the peer to act on.
func ReadStepOk(r *Reader, deserializeIoData, deserializeBusMessages DeserializeFunc) (cosim.SimulationTime, cosim.Command, error) {
	t, err := readSimulationTime(r)
	if err != nil {
		return 0, 0, err
	}
	cmd, err := r.ReadUint32()
	if err != nil {
		return t, 0, err
	}
	command := cosim.Command(cmd)
	if err := deserializeIoData(r, t); err != nil {
		return t, command, err
	}
	if err := deserializeBusMessages(r, t); err != nil {
		return t, command, err
	}
	return t, command, nil
}
