// Copyright dSPACE GmbH. All rights reserved.

package protocol

import (
	"fmt"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
)

// Writer and Reader alias the channel package's framing primitives so the
// rest of this package does not need to import it under a local name.
type (
	Writer = channel.Writer
	Reader = channel.Reader
)

// Codec encodes and decodes the handshake and lifecycle frames whose wire
// shape depends on the negotiated protocol version. Step/StepOk and the
// port-mapper frames are version-independent and are handled directly by
// the functions in step.go and portmapper.go.
type Codec interface {
	Version() cosim.ProtocolVersion
	SendConnectOk(w *Writer, info ConnectOkInfo) error
	ReadConnectOk(r *Reader) (ConnectOkInfo, error)
	SendPing(w *Writer, p PingFrame) error
	ReadPing(r *Reader) (PingFrame, error)
	SendPingOk(w *Writer, p PingOkFrame) error
	ReadPingOk(r *Reader) (PingOkFrame, error)
}

// NewCodec returns the Codec implementation for version, mirroring the
// reference runtime's CreateProtocol(negotiatedVersion) factory: V2 adds
// a FlexRay controller catalog to ConnectOk and a round-trip field to
// PingOk; V1 omits both. Ping itself carries only the simulation state at
// both versions.
func NewCodec(version cosim.ProtocolVersion) (Codec, error) {
	switch version {
	case cosim.ProtocolVersion1:
		return protocolV1{}, nil
	case cosim.ProtocolVersion2:
		return protocolV2{}, nil
	default:
		return nil, fmt.Errorf("protocol: unsupported protocol version %d", uint32(version))
	}
}

// ConnectOkInfo is the full, version-superset payload of a ConnectOk frame.
// A V1 codec ignores FlexRayControllers on send and always returns a nil
// slice on receive.
type ConnectOkInfo struct {
	ClientMode         cosim.CoSimType
	StepSize           cosim.SimulationTime
	SimulationState    cosim.SimulationState
	IncomingSignals    []cosim.IoSignal
	OutgoingSignals    []cosim.IoSignal
	CanControllers     []cosim.CanController
	EthControllers     []cosim.EthController
	LinControllers     []cosim.LinController
	FlexRayControllers []cosim.FrController
}

// PingFrame is the Ping request payload.
type PingFrame struct {
	State cosim.SimulationState
}

// PingOkFrame is the Ping response payload. RoundTripTime is only
// meaningful (and only present on the wire) at ProtocolVersion2+.
type PingOkFrame struct {
	Command       cosim.Command
	RoundTripTime cosim.SimulationTime
}

type protocolV1 struct{}

func (protocolV1) Version() cosim.ProtocolVersion { return cosim.ProtocolVersion1 }

func (protocolV1) SendConnectOk(w *Writer, info ConnectOkInfo) error {
	return writeConnectOkCommon(w, info, false)
}

func (protocolV1) ReadConnectOk(r *Reader) (ConnectOkInfo, error) {
	return readConnectOkCommon(r, false)
}

func (protocolV1) SendPing(w *Writer, p PingFrame) error {
	return w.WriteUint32(uint32(p.State))
}

func (protocolV1) ReadPing(r *Reader) (PingFrame, error) {
	state, err := r.ReadUint32()
	if err != nil {
		return PingFrame{}, err
	}
	return PingFrame{State: cosim.SimulationState(state)}, nil
}

func (protocolV1) SendPingOk(w *Writer, p PingOkFrame) error {
	return w.WriteUint32(uint32(p.Command))
}

func (protocolV1) ReadPingOk(r *Reader) (PingOkFrame, error) {
	cmd, err := r.ReadUint32()
	if err != nil {
		return PingOkFrame{}, err
	}
	return PingOkFrame{Command: cosim.Command(cmd)}, nil
}

type protocolV2 struct{}

func (protocolV2) Version() cosim.ProtocolVersion { return cosim.ProtocolVersion2 }

func (protocolV2) SendConnectOk(w *Writer, info ConnectOkInfo) error {
	return writeConnectOkCommon(w, info, true)
}

func (protocolV2) ReadConnectOk(r *Reader) (ConnectOkInfo, error) {
	return readConnectOkCommon(r, true)
}

func (protocolV2) SendPing(w *Writer, p PingFrame) error {
	return w.WriteUint32(uint32(p.State))
}

func (protocolV2) ReadPing(r *Reader) (PingFrame, error) {
	state, err := r.ReadUint32()
	if err != nil {
		return PingFrame{}, err
	}
	return PingFrame{State: cosim.SimulationState(state)}, nil
}

func (protocolV2) SendPingOk(w *Writer, p PingOkFrame) error {
	if err := w.WriteUint32(uint32(p.Command)); err != nil {
		return err
	}
	return writeSimulationTime(w, p.RoundTripTime)
}

func (protocolV2) ReadPingOk(r *Reader) (PingOkFrame, error) {
	cmd, err := r.ReadUint32()
	if err != nil {
		return PingOkFrame{}, err
	}
	rtt, err := readSimulationTime(r)
	if err != nil {
		return PingOkFrame{}, err
	}
	return PingOkFrame{Command: cosim.Command(cmd), RoundTripTime: rtt}, nil
}

// writeConnectOkCommon lays out the fixed block (clientMode, stepSize,
// simulationState) then the variable-length catalogs in a fixed order:
// incoming signals, outgoing signals, CAN, ETH, LIN, and (v2 only) FlexRay.
func writeConnectOkCommon(w *Writer, info ConnectOkInfo, withFlexRay bool) error {
	if err := w.WriteUint32(uint32(info.ClientMode)); err != nil {
		return err
	}
	if err := writeSimulationTime(w, info.StepSize); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(info.SimulationState)); err != nil {
		return err
	}
	if err := writeIoSignals(w, info.IncomingSignals); err != nil {
		return err
	}
	if err := writeIoSignals(w, info.OutgoingSignals); err != nil {
		return err
	}
	if err := writeCanControllers(w, info.CanControllers); err != nil {
		return err
	}
	if err := writeEthControllers(w, info.EthControllers); err != nil {
		return err
	}
	if err := writeLinControllers(w, info.LinControllers); err != nil {
		return err
	}
	if withFlexRay {
		return writeFrControllers(w, info.FlexRayControllers)
	}
	return nil
}

func readConnectOkCommon(r *Reader, withFlexRay bool) (ConnectOkInfo, error) {
	var info ConnectOkInfo
	clientMode, err := r.ReadUint32()
	if err != nil {
		return info, err
	}
	info.ClientMode = cosim.CoSimType(clientMode)
	if info.StepSize, err = readSimulationTime(r); err != nil {
		return info, err
	}
	state, err := r.ReadUint32()
	if err != nil {
		return info, err
	}
	info.SimulationState = cosim.SimulationState(state)
	if info.IncomingSignals, err = readIoSignals(r); err != nil {
		return info, err
	}
	if info.OutgoingSignals, err = readIoSignals(r); err != nil {
		return info, err
	}
	if info.CanControllers, err = readCanControllers(r); err != nil {
		return info, err
	}
	if info.EthControllers, err = readEthControllers(r); err != nil {
		return info, err
	}
	if info.LinControllers, err = readLinControllers(r); err != nil {
		return info, err
	}
	if withFlexRay {
		if info.FlexRayControllers, err = readFrControllers(r); err != nil {
			return info, err
		}
	}
	return info, nil
}
