// Copyright dSPACE GmbH. All rights reserved.

package busbuffer

import (
	"fmt"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
)

// EthDescriptor is the wire encoding and validation for Ethernet frames.
// Ethernet has no flag-consistency rule, so CheckFlags is nil.
var EthDescriptor = Descriptor[cosim.EthMessage]{
	MaxLength:    cosim.EthMessageMaxLength,
	ControllerID: func(m *cosim.EthMessage) cosim.BusControllerId { return m.ControllerId },
	Length:       func(m cosim.EthMessage) uint32 { return m.Length },
	Encode:       encodeEthMessage,
	Decode:       decodeEthMessage,
}

func encodeEthMessage(w *channel.Writer, m cosim.EthMessage) error {
	if err := w.WriteInt64(int64(m.Timestamp)); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(m.ControllerId)); err != nil {
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

func decodeEthMessage(r *channel.Reader) (cosim.EthMessage, error) {
	var m cosim.EthMessage
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
	flags, err := r.ReadUint32()
	if err != nil {
		return m, err
	}
	m.Flags = cosim.EthMessageFlags(flags)
	length, err := r.ReadUint32()
	if err != nil {
		return m, err
	}
	if length > cosim.EthMessageMaxLength {
		return m, fmt.Errorf("%w: Ethernet frame length %d exceeds max %d", cosim.ErrProtocol, length, cosim.EthMessageMaxLength)
	}
	m.Length = length
	block, err := r.ReadBlock(int(length))
	if err != nil {
		return m, err
	}
	copy(m.Data[:], block)
	return m, nil
}
