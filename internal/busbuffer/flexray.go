// Copyright dSPACE GmbH. All rights reserved.

package busbuffer

import (
	"fmt"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
)

// FlexRayDescriptor is the wire encoding and validation for FlexRay
// frames. Callers must not Serialize/Deserialize a FlexRay buffer when
// the negotiated protocol version is below 2; Transmit/Receive still
// work locally in that case, the frames simply never reach the peer.
var FlexRayDescriptor = Descriptor[cosim.FrMessage]{
	MaxLength:    cosim.FrMessageMaxLength,
	ControllerID: func(m *cosim.FrMessage) cosim.BusControllerId { return m.ControllerId },
	Length:       func(m cosim.FrMessage) uint32 { return m.Length },
	Encode:       encodeFrMessage,
	Decode:       decodeFrMessage,
}

func encodeFrMessage(w *channel.Writer, m cosim.FrMessage) error {
	if err := w.WriteInt64(int64(m.Timestamp)); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(m.ControllerId)); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(m.Id)); err != nil {
		return err
	}
	if err := w.WriteUint32(m.Length); err != nil {
		return err
	}
	return w.WriteBytes(m.Data[:m.Length])
}

func decodeFrMessage(r *channel.Reader) (cosim.FrMessage, error) {
	var m cosim.FrMessage
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
	length, err := r.ReadUint32()
	if err != nil {
		return m, err
	}
	if length > cosim.FrMessageMaxLength {
		return m, fmt.Errorf("%w: FlexRay frame length %d exceeds max %d", cosim.ErrProtocol, length, cosim.FrMessageMaxLength)
	}
	m.Length = length
	block, err := r.ReadBlock(int(length))
	if err != nil {
		return m, err
	}
	copy(m.Data[:], block)
	return m, nil
}
