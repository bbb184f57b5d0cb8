// Copyright dSPACE GmbH. All rights reserved.

// Package iobuffer stages one direction's set of I/O signals (the values a
// simulation exchanges with its co-simulation peer each step) and
// exchanges only the signals that changed since the last step, either
// serialized onto the wire (Remote) or handed off through a pair of
// shared-memory slots per signal (Local).
package iobuffer

import (
	"fmt"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
)

// Buffer is the shared contract of the Remote and Local variants.
// Write/Read operate on one signal at a time; Serialize/Deserialize
// exchange the changed subset for one step. BeginStep resets per-step
// change tracking and must be called once before the first Write of a new
// step.
type Buffer interface {
	BeginStep()
	Write(id cosim.IoSignalId, data []byte) error
	Read(id cosim.IoSignalId) ([]byte, error)
	Serialize(w *channel.Writer) error
	Deserialize(r *channel.Reader, t cosim.SimulationTime) error
}

// indexSignals validates the descriptor set (rejecting duplicate ids and
// zero-length descriptors, per IoSignal.Validate/ValidateSignalSet) and
// returns the id-to-slot-index lookup every variant needs.
func indexSignals(signals []cosim.IoSignal) (map[cosim.IoSignalId]int, error) {
	if err := cosim.ValidateSignalSet(signals); err != nil {
		return nil, err
	}
	index := make(map[cosim.IoSignalId]int, len(signals))
	for i, s := range signals {
		index[s.Id] = i
	}
	return index, nil
}

func checkLength(s cosim.IoSignal, dataLen int) error {
	maxBytes := s.ByteSize()
	if s.SizeKind == cosim.SizeKindFixed {
		if uint32(dataLen) != maxBytes {
			return fmt.Errorf("%w: signal %q requires exactly %d bytes, got %d", cosim.ErrInvalidArgument, s.Name, maxBytes, dataLen)
		}
		return nil
	}
	if uint32(dataLen) > maxBytes {
		return fmt.Errorf("%w: signal %q exceeds max length %d bytes, got %d", cosim.ErrInvalidArgument, s.Name, maxBytes, dataLen)
	}
	return nil
}

func lookup(index map[cosim.IoSignalId]int, id cosim.IoSignalId) (int, error) {
	i, ok := index[id]
	if !ok {
		return 0, fmt.Errorf("%w: unknown signal id %d", cosim.ErrInvalidArgument, id)
	}
	return i, nil
}
