// Copyright dSPACE GmbH. All rights reserved.

// Package protocol implements the versioned wire codec: frame kind
// encoding, handshake, lifecycle commands, step exchange, and the
// port-mapper request/response frames. The codec never interprets I/O or
// bus payload bytes — those are produced and consumed by closures supplied
// by the caller (internal/iobuffer, internal/busbuffer).
package protocol

import (
	"fmt"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
)

// FrameKind is the closed, stable-numbered set of wire frame types.
type FrameKind uint32

const (
	FrameOk FrameKind = iota + 1
	FrameError

	FrameConnect
	FrameConnectOk

	FramePing
	FramePingOk

	FrameStart
	FrameStop
	FrameTerminate
	FramePause
	FrameContinue

	FrameStep
	FrameStepOk

	FrameGetPort
	FrameGetPortOk
	FrameSetPort
	FrameUnsetPort
)

func (k FrameKind) String() string {
	switch k {
	case FrameOk:
		return "Ok"
	case FrameError:
		return "Error"
	case FrameConnect:
		return "Connect"
	case FrameConnectOk:
		return "ConnectOk"
	case FramePing:
		return "Ping"
	case FramePingOk:
		return "PingOk"
	case FrameStart:
		return "Start"
	case FrameStop:
		return "Stop"
	case FrameTerminate:
		return "Terminate"
	case FramePause:
		return "Pause"
	case FrameContinue:
		return "Continue"
	case FrameStep:
		return "Step"
	case FrameStepOk:
		return "StepOk"
	case FrameGetPort:
		return "GetPort"
	case FrameGetPortOk:
		return "GetPortOk"
	case FrameSetPort:
		return "SetPort"
	case FrameUnsetPort:
		return "UnsetPort"
	default:
		return fmt.Sprintf("FrameKind(%d)", uint32(k))
	}
}

// WriteFrameKind appends the frame kind tag. Every Send* function calls
// this first.
func WriteFrameKind(w *channel.Writer, kind FrameKind) error {
	return w.WriteUint32(uint32(kind))
}

// ReadFrameKind decodes the frame kind tag. The command loop calls this
// once per frame to dispatch to the matching Read* function.
func ReadFrameKind(r *channel.Reader) (FrameKind, error) {
	v, err := r.ReadUint32()
	return FrameKind(v), err
}

func writeSimulationTime(w *channel.Writer, t cosim.SimulationTime) error {
	return w.WriteInt64(int64(t))
}

func readSimulationTime(r *channel.Reader) (cosim.SimulationTime, error) {
	v, err := r.ReadInt64()
	return cosim.SimulationTime(v), err
}

// writeIoSignal / readIoSignal encode one IoSignal descriptor: fixed block
// (id, maxLength, dataType, sizeKind) then the name string.
func writeIoSignal(w *channel.Writer, s cosim.IoSignal) error {
	if err := w.WriteUint32(uint32(s.Id)); err != nil {
		return err
	}
	if err := w.WriteUint32(s.MaxLength); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(s.DataType)); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(s.SizeKind)); err != nil {
		return err
	}
	return w.WriteString(s.Name)
}

func readIoSignal(r *channel.Reader) (cosim.IoSignal, error) {
	var s cosim.IoSignal
	id, err := r.ReadUint32()
	if err != nil {
		return s, err
	}
	maxLength, err := r.ReadUint32()
	if err != nil {
		return s, err
	}
	dataType, err := r.ReadUint32()
	if err != nil {
		return s, err
	}
	sizeKind, err := r.ReadUint32()
	if err != nil {
		return s, err
	}
	name, err := r.ReadString()
	if err != nil {
		return s, err
	}
	s = cosim.IoSignal{
		Id:        cosim.IoSignalId(id),
		MaxLength: maxLength,
		DataType:  cosim.DataType(dataType),
		SizeKind:  cosim.SizeKind(sizeKind),
		Name:      name,
	}
	return s, nil
}

func writeIoSignals(w *channel.Writer, signals []cosim.IoSignal) error {
	if err := w.WriteUint32(uint32(len(signals))); err != nil {
		return err
	}
	for _, s := range signals {
		if err := writeIoSignal(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readIoSignals(r *channel.Reader) ([]cosim.IoSignal, error) {
	count, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	signals := make([]cosim.IoSignal, count)
	for i := range signals {
		s, err := readIoSignal(r)
		if err != nil {
			return nil, err
		}
		signals[i] = s
	}
	return signals, nil
}

func writeCanController(w *channel.Writer, c cosim.CanController) error {
	if err := w.WriteUint32(uint32(c.Id)); err != nil {
		return err
	}
	if err := w.WriteUint32(c.QueueSize); err != nil {
		return err
	}
	if err := w.WriteUint64(c.BitsPerSecond); err != nil {
		return err
	}
	if err := w.WriteUint64(c.FlexibleDataRateBitsPerSecond); err != nil {
		return err
	}
	if err := w.WriteString(c.Name); err != nil {
		return err
	}
	if err := w.WriteString(c.ChannelName); err != nil {
		return err
	}
	return w.WriteString(c.ClusterName)
}

func readCanController(r *channel.Reader) (cosim.CanController, error) {
	var c cosim.CanController
	id, err := r.ReadUint32()
	if err != nil {
		return c, err
	}
	queueSize, err := r.ReadUint32()
	if err != nil {
		return c, err
	}
	bps, err := r.ReadUint64()
	if err != nil {
		return c, err
	}
	fdBps, err := r.ReadUint64()
	if err != nil {
		return c, err
	}
	name, err := r.ReadString()
	if err != nil {
		return c, err
	}
	channelName, err := r.ReadString()
	if err != nil {
		return c, err
	}
	clusterName, err := r.ReadString()
	if err != nil {
		return c, err
	}
	c = cosim.CanController{
		Id: cosim.BusControllerId(id), QueueSize: queueSize, BitsPerSecond: bps,
		FlexibleDataRateBitsPerSecond: fdBps, Name: name, ChannelName: channelName, ClusterName: clusterName,
	}
	return c, nil
}

func writeCanControllers(w *channel.Writer, controllers []cosim.CanController) error {
	if err := w.WriteUint32(uint32(len(controllers))); err != nil {
		return err
	}
	for _, c := range controllers {
		if err := writeCanController(w, c); err != nil {
			return err
		}
	}
	return nil
}

func readCanControllers(r *channel.Reader) ([]cosim.CanController, error) {
	count, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]cosim.CanController, count)
	for i := range out {
		c, err := readCanController(r)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func writeEthController(w *channel.Writer, c cosim.EthController) error {
	if err := w.WriteUint32(uint32(c.Id)); err != nil {
		return err
	}
	if err := w.WriteUint32(c.QueueSize); err != nil {
		return err
	}
	if err := w.WriteUint64(c.BitsPerSecond); err != nil {
		return err
	}
	if err := w.WriteBytes(c.MacAddress[:]); err != nil {
		return err
	}
	if err := w.WriteString(c.Name); err != nil {
		return err
	}
	if err := w.WriteString(c.ChannelName); err != nil {
		return err
	}
	return w.WriteString(c.ClusterName)
}

func readEthController(r *channel.Reader) (cosim.EthController, error) {
	var c cosim.EthController
	id, err := r.ReadUint32()
	if err != nil {
		return c, err
	}
	queueSize, err := r.ReadUint32()
	if err != nil {
		return c, err
	}
	bps, err := r.ReadUint64()
	if err != nil {
		return c, err
	}
	mac, err := r.ReadBlock(cosim.EthAddressLength)
	if err != nil {
		return c, err
	}
	name, err := r.ReadString()
	if err != nil {
		return c, err
	}
	channelName, err := r.ReadString()
	if err != nil {
		return c, err
	}
	clusterName, err := r.ReadString()
	if err != nil {
		return c, err
	}
	c = cosim.EthController{Id: cosim.BusControllerId(id), QueueSize: queueSize, BitsPerSecond: bps, Name: name, ChannelName: channelName, ClusterName: clusterName}
	copy(c.MacAddress[:], mac)
	return c, nil
}

func writeEthControllers(w *channel.Writer, controllers []cosim.EthController) error {
	if err := w.WriteUint32(uint32(len(controllers))); err != nil {
		return err
	}
	for _, c := range controllers {
		if err := writeEthController(w, c); err != nil {
			return err
		}
	}
	return nil
}

func readEthControllers(r *channel.Reader) ([]cosim.EthController, error) {
	count, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]cosim.EthController, count)
	for i := range out {
		c, err := readEthController(r)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func writeLinController(w *channel.Writer, c cosim.LinController) error {
	if err := w.WriteUint32(uint32(c.Id)); err != nil {
		return err
	}
	if err := w.WriteUint32(c.QueueSize); err != nil {
		return err
	}
	if err := w.WriteUint64(c.BitsPerSecond); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(c.Type)); err != nil {
		return err
	}
	if err := w.WriteString(c.Name); err != nil {
		return err
	}
	if err := w.WriteString(c.ChannelName); err != nil {
		return err
	}
	return w.WriteString(c.ClusterName)
}

func readLinController(r *channel.Reader) (cosim.LinController, error) {
	var c cosim.LinController
	id, err := r.ReadUint32()
	if err != nil {
		return c, err
	}
	queueSize, err := r.ReadUint32()
	if err != nil {
		return c, err
	}
	bps, err := r.ReadUint64()
	if err != nil {
		return c, err
	}
	typ, err := r.ReadUint32()
	if err != nil {
		return c, err
	}
	name, err := r.ReadString()
	if err != nil {
		return c, err
	}
	channelName, err := r.ReadString()
	if err != nil {
		return c, err
	}
	clusterName, err := r.ReadString()
	if err != nil {
		return c, err
	}
	c = cosim.LinController{
		Id: cosim.BusControllerId(id), QueueSize: queueSize, BitsPerSecond: bps,
		Type: cosim.LinControllerType(typ), Name: name, ChannelName: channelName, ClusterName: clusterName,
	}
	return c, nil
}

func writeLinControllers(w *channel.Writer, controllers []cosim.LinController) error {
	if err := w.WriteUint32(uint32(len(controllers))); err != nil {
		return err
	}
	for _, c := range controllers {
		if err := writeLinController(w, c); err != nil {
			return err
		}
	}
	return nil
}

func readLinControllers(r *channel.Reader) ([]cosim.LinController, error) {
	count, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]cosim.LinController, count)
	for i := range out {
		c, err := readLinController(r)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func writeFrController(w *channel.Writer, c cosim.FrController) error {
	if err := w.WriteUint32(uint32(c.Id)); err != nil {
		return err
	}
	if err := w.WriteUint32(c.QueueSize); err != nil {
		return err
	}
	if err := w.WriteUint64(c.BitsPerSecond); err != nil {
		return err
	}
	if err := w.WriteString(c.Name); err != nil {
		return err
	}
	if err := w.WriteString(c.ChannelName); err != nil {
		return err
	}
	return w.WriteString(c.ClusterName)
}

func readFrController(r *channel.Reader) (cosim.FrController, error) {
	var c cosim.FrController
	id, err := r.ReadUint32()
	if err != nil {
		return c, err
	}
	queueSize, err := r.ReadUint32()
	if err != nil {
		return c, err
	}
	bps, err := r.ReadUint64()
	if err != nil {
		return c, err
	}
	name, err := r.ReadString()
	if err != nil {
		return c, err
	}
	channelName, err := r.ReadString()
	if err != nil {
		return c, err
	}
	clusterName, err := r.ReadString()
	if err != nil {
		return c, err
	}
	c = cosim.FrController{Id: cosim.BusControllerId(id), QueueSize: queueSize, BitsPerSecond: bps, Name: name, ChannelName: channelName, ClusterName: clusterName}
	return c, nil
}

func writeFrControllers(w *channel.Writer, controllers []cosim.FrController) error {
	if err := w.WriteUint32(uint32(len(controllers))); err != nil {
		return err
	}
	for _, c := range controllers {
		if err := writeFrController(w, c); err != nil {
			return err
		}
	}
	return nil
}

func readFrControllers(r *channel.Reader) ([]cosim.FrController, error) {
	count, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]cosim.FrController, count)
	for i := range out {
		c, err := readFrController(r)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
