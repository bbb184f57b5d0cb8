// Copyright dSPACE GmbH. All rights reserved.

package busbuffer

import (
	"fmt"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
)

// CanDescriptor is the wire encoding and validation for CAN messages.
var CanDescriptor = Descriptor[cosim.CanMessage]{
	MaxLength:    cosim.CanMessageMaxLength,
	ControllerID: func(m *cosim.CanMessage) cosim.BusControllerId { return m.ControllerId },
	Length:       func(m cosim.CanMessage) uint32 { return m.Length },
	CheckFlags:   func(m cosim.CanMessage) error { return m.Flags.CheckFlags() },
	Encode:       encodeCanMessage,
	Decode:       decodeCanMessage,
}

func encodeCanMessage(w *channel.Writer, m cosim.CanMessage) error {
	if err := w.WriteInt64(int64(m.Timestamp)); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(m.ControllerId)); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(m.Id)); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(m.Flags)); err != nil {
		return err
	}
	if err := w.WriteUint32(m.Length); err != nil {
		return err
	}
	return w.WriteBytes(m.Data[:m.Length])
}

func decodeCanMessage(r *channel.Reader) (cosim.CanMessage, error) {
	var m cosim.CanMessage
	ts, err := r.ReadInt64()
	if err != nil {
		return m, err
	}
	m.Timestamp = cosim.SimulationTime(ts)
	cid, err := r.ReadUint32()
	if err != nil {
		return m, err
	}
	m.ControllerId = cosim.BusControllerId(cid)
	id, err := r.ReadUint32()
	if err != nil {
		return m, err
	}
	m.Id = cosim.BusMessageId(id)
	flags, err := r.ReadUint32()
	if err != nil {
		return m, err
	}
	m.Flags = cosim.CanMessageFlags(flags)
	length, err := r.ReadUint32()
	if err != nil {
		return m, err
	}
	if length > cosim.CanMessageMaxLength {
		return m, fmt.Errorf("%w: CAN message length %d exceeds max %d", cosim.ErrProtocol, length, cosim.CanMessageMaxLength)
	}
	m.Length = length
	block, err := r.ReadBlock(int(length))
	if err != nil {
		return m, err
	}
	copy(m.Data[:], block)
	return m, nil
}
