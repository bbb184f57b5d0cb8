// Copyright dSPACE GmbH. All rights reserved.

package busbuffer

import (
	"fmt"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
)

// LinDescriptor is the wire encoding and validation for LIN frames.
var LinDescriptor = Descriptor[cosim.LinMessage]{
	MaxLength:    cosim.LinMessageMaxLength,
	ControllerID: func(m *cosim.LinMessage) cosim.BusControllerId { return m.ControllerId },
	Length:       func(m cosim.LinMessage) uint32 { return m.Length },
	Encode:       encodeLinMessage,
	Decode:       decodeLinMessage,
}

func encodeLinMessage(w *channel.Writer, m cosim.LinMessage) error {
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

func decodeLinMessage(r *channel.Reader) (cosim.LinMessage, error) {
	var m cosim.LinMessage
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
	m.Flags = cosim.LinMessageFlags(flags)
	length, err := r.ReadUint32()
	if err != nil {
		return m, err
	}
	if length > cosim.LinMessageMaxLength {
		return m, fmt.Errorf("%w: LIN frame length %d exceeds max %d", cosim.ErrProtocol, length, cosim.LinMessageMaxLength)
	}
	m.Length = length
	block, err := r.ReadBlock(int(length))
	if err != nil {
		return m, err
	}
	copy(m.Data[:], block)
	return m, nil
}
