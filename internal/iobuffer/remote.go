// Copyright dSPACE GmbH. All rights reserved.

package iobuffer

import (
	"bytes"
	"fmt"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
	"github.com/dspace-group/veos-cosim-go/internal/ring"
)

// Remote is the wire-serialized I/O buffer variant: a staged byte slot per
// signal plus a ring of the ids that changed this step, drained onto the
// wire on Serialize.
type Remote struct {
	signals []cosim.IoSignal
	index   map[cosim.IoSignalId]int
	data    [][]byte
	length  []uint32
	changed []bool
	pending *ring.Ring[cosim.IoSignalId]
}

// NewRemote constructs a Remote buffer over the given signal set.
func NewRemote(signals []cosim.IoSignal) (*Remote, error) {
	index, err := indexSignals(signals)
	if err != nil {
		return nil, err
	}
	r := &Remote{
		signals: signals,
		index:   index,
		data:    make([][]byte, len(signals)),
		length:  make([]uint32, len(signals)),
		changed: make([]bool, len(signals)),
		pending: ring.New[cosim.IoSignalId](len(signals)),
	}
	for i, s := range signals {
		r.data[i] = make([]byte, s.ByteSize())
	}
	return r, nil
}

// BeginStep is a no-op for Remote: the changed-id ring already empties
// itself as Serialize drains it, so there is no separate per-step reset.
func (r *Remote) BeginStep() {}

// Write stages data for id, marking it changed if its length or bytes
// differ from what was last staged, and enqueuing it for the next
// Serialize at most once.
func (r *Remote) Write(id cosim.IoSignalId, data []byte) error {
	i, err := lookup(r.index, id)
	if err != nil {
		return err
	}
	s := r.signals[i]
	if err := checkLength(s, len(data)); err != nil {
		return err
	}
	lengthChanged := uint32(len(data)) != r.length[i]
	bytesDiffer := lengthChanged || !bytes.Equal(r.data[i][:r.length[i]], data)
	copy(r.data[i], data)
	r.length[i] = uint32(len(data))
	if bytesDiffer && !r.changed[i] {
		r.changed[i] = true
		r.pending.TryPushBack(&id)
	}
	return nil
}

// Read returns a copy of the currently staged bytes for id.
func (r *Remote) Read(id cosim.IoSignalId) ([]byte, error) {
	i, err := lookup(r.index, id)
	if err != nil {
		return nil, err
	}
	out := make([]byte, r.length[i])
	copy(out, r.data[i][:r.length[i]])
	return out, nil
}

// Serialize writes count:u32 then, for each changed signal in FIFO order,
// id:u32, length:u32 (variable-size signals only), and its staged bytes.
// It drains the pending ring and clears each signal's changed flag.
func (r *Remote) Serialize(w *channel.Writer) error {
	count := r.pending.Size()
	if err := w.WriteUint32(uint32(count)); err != nil {
		return err
	}
	var id cosim.IoSignalId
	for r.pending.TryPopFront(&id) {
		i := r.index[id]
		r.changed[i] = false
		s := r.signals[i]
		if err := w.WriteUint32(uint32(id)); err != nil {
			return err
		}
		if s.SizeKind == cosim.SizeKindVariable {
			if err := w.WriteUint32(r.length[i]); err != nil {
				return err
			}
		}
		if err := w.WriteBytes(r.data[i][:r.length[i]]); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads the changed-signal frame written by Serialize and
// applies it to this buffer's staged values.
func (r *Remote) Deserialize(reader *channel.Reader, _ cosim.SimulationTime) error {
	count, err := reader.ReadUint32()
	if err != nil {
		return err
	}
	for k := uint32(0); k < count; k++ {
		rawID, err := reader.ReadUint32()
		if err != nil {
			return err
		}
		id := cosim.IoSignalId(rawID)
		i, ok := r.index[id]
		if !ok {
			return fmt.Errorf("%w: unknown signal id %d in step payload", cosim.ErrProtocol, id)
		}
		s := r.signals[i]
		length := s.ByteSize()
		if s.SizeKind == cosim.SizeKindVariable {
			length, err = reader.ReadUint32()
			if err != nil {
				return err
			}
			if length > s.ByteSize() {
				return fmt.Errorf("%w: signal %q reported length %d exceeds max %d", cosim.ErrProtocol, s.Name, length, s.ByteSize())
			}
		}
		block, err := reader.ReadBlock(int(length))
		if err != nil {
			return err
		}
		copy(r.data[i], block)
		r.length[i] = length
	}
	return nil
}
