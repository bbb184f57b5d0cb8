// Copyright dSPACE GmbH. All rights reserved.

package protocol

import (
	cosim "github.com/dspace-group/veos-cosim-go"
)

// sendSimulationTimeFrame/readSimulationTimeFrame send and read the common shape of Start/Stop/Pause/
// Continue: frame kind followed by one SimulationTime field.

func sendSimulationTimeFrame(w *Writer, kind FrameKind, t cosim.SimulationTime) error {
	if err := WriteFrameKind(w, kind); err != nil {
		return err
	}
	if err := writeSimulationTime(w, t); err != nil {
		return err
	}
	return w.EndWrite()
}

func readSimulationTimeFrame(r *Reader) (cosim.SimulationTime, error) {
	return readSimulationTime(r)
}

// SendStart writes a Start frame.
func SendStart(w *Writer, t cosim.SimulationTime) error { return sendSimulationTimeFrame(w, FrameStart, t) }

// ReadStart decodes a Start frame past its frame kind tag.
func ReadStart(r *Reader) (cosim.SimulationTime, error) { return readSimulationTimeFrame(r) }

// SendStop writes a Stop frame.
func SendStop(w *Writer, t cosim.SimulationTime) error { return sendSimulationTimeFrame(w, FrameStop, t) }

// ReadStop decodes a Stop frame past its frame kind tag.
func ReadStop(r *Reader) (cosim.SimulationTime, error) { return readSimulationTimeFrame(r) }

// SendPause writes a Pause frame.
func SendPause(w *Writer, t cosim.SimulationTime) error { return sendSimulationTimeFrame(w, FramePause, t) }

// ReadPause decodes a Pause frame past its frame kind tag.
func ReadPause(r *Reader) (cosim.SimulationTime, error) { return readSimulationTimeFrame(r) }

// SendContinue writes a Continue frame.
func SendContinue(w *Writer, t cosim.SimulationTime) error {
	return sendSimulationTimeFrame(w, FrameContinue, t)
}

// ReadContinue decodes a Continue frame past its frame kind tag.
func ReadContinue(r *Reader) (cosim.SimulationTime, error) { return readSimulationTimeFrame(r) }

// TerminateFrame is the Terminate command payload: the simulation time at
// which the session ended and why.
type TerminateFrame struct {
	SimulationTime cosim.SimulationTime
	Reason         cosim.TerminateReason
}

// SendTerminate writes a Terminate frame.
func SendTerminate(w *Writer, f TerminateFrame) error {
	if err := WriteFrameKind(w, FrameTerminate); err != nil {
		return err
	}
	if err := writeSimulationTime(w, f.SimulationTime); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(f.Reason)); err != nil {
		return err
	}
	return w.EndWrite()
}

// ReadTerminate decodes a Terminate frame past its frame kind tag.
func ReadTerminate(r *Reader) (TerminateFrame, error) {
	var f TerminateFrame
	t, err := readSimulationTime(r)
	if err != nil {
		return f, err
	}
	f.SimulationTime = t
	reason, err := r.ReadUint32()
	if err != nil {
		return f, err
	}
	f.Reason = cosim.TerminateReason(reason)
	return f, nil
}

// SendPing writes a Ping frame using the codec negotiated for this
// connection.
func SendPing(w *Writer, codec Codec, p PingFrame) error {
	if err := WriteFrameKind(w, FramePing); err != nil {
		return err
	}
	if err := codec.SendPing(w, p); err != nil {
		return err
	}
	return w.EndWrite()
}

// ReadPing decodes a Ping frame past its frame kind tag.
func ReadPing(r *Reader, codec Codec) (PingFrame, error) { return codec.ReadPing(r) }

// SendPingOk writes a PingOk frame using the codec negotiated for this
// connection (it gates whether the round-trip field is present).
func SendPingOk(w *Writer, codec Codec, p PingOkFrame) error {
	if err := WriteFrameKind(w, FramePingOk); err != nil {
		return err
	}
	if err := codec.SendPingOk(w, p); err != nil {
		return err
	}
	return w.EndWrite()
}

// ReadPingOk decodes a PingOk frame past its frame kind tag.
func ReadPingOk(r *Reader, codec Codec) (PingOkFrame, error) { return codec.ReadPingOk(r) }
