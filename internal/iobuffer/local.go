// Copyright dSPACE GmbH. All rights reserved.

package iobuffer

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
)

// Local is the shared-memory double-buffer I/O variant: for each signal,
// two fixed slots of {currentLength:u32, data[maxBytes]} live in shared
// memory. write goes into whichever slot this side currently considers
// active, flipping to the other slot on the first write of a step so a
// concurrent reader of the previous slot is never torn. The wire payload
// for a step is reduced to the list of changed signal ids; deserialize
// flips the reader's own view of the active slot to match.
type Local struct {
	signals         []cosim.IoSignal
	index           map[cosim.IoSignalId]int
	mem             []byte
	slotOffset      [][2]int
	activeSlot      []int
	flippedThisStep []bool
}

// slotSize is 4 bytes of length header plus the signal's max byte size,
// rounded up to 8 bytes so the length header of every slot stays
// naturally aligned for atomic access.
func slotSize(s cosim.IoSignal) int {
	n := 4 + int(s.ByteSize())
	if rem := n % 8; rem != 0 {
		n += 8 - rem
	}
	return n
}

// RegionSize returns the shared-memory size a Local buffer over signals
// needs: two slots per signal.
func RegionSize(signals []cosim.IoSignal) int {
	total := 0
	for _, s := range signals {
		total += 2 * slotSize(s)
	}
	return total
}

// NewLocal places a Local buffer over mem, which must be at least
// RegionSize(signals) bytes and already zeroed by whichever side created
// the underlying shared-memory region.
func NewLocal(signals []cosim.IoSignal, mem []byte) (*Local, error) {
	index, err := indexSignals(signals)
	if err != nil {
		return nil, err
	}
	need := RegionSize(signals)
	if len(mem) < need {
		return nil, fmt.Errorf("iobuffer: shared region too small: have %d, need %d", len(mem), need)
	}
	l := &Local{
		signals:         signals,
		index:           index,
		mem:             mem,
		slotOffset:      make([][2]int, len(signals)),
		activeSlot:      make([]int, len(signals)),
		flippedThisStep: make([]bool, len(signals)),
	}
	off := 0
	for i, s := range signals {
		sz := slotSize(s)
		l.slotOffset[i] = [2]int{off, off + sz}
		off += 2 * sz
	}
	return l, nil
}

func (l *Local) lengthPtr(signalIdx, slot int) *uint32 {
	return (*uint32)(unsafe.Pointer(&l.mem[l.slotOffset[signalIdx][slot]]))
}

func (l *Local) dataSlice(signalIdx, slot int) []byte {
	start := l.slotOffset[signalIdx][slot] + 4
	end := start + int(l.signals[signalIdx].ByteSize())
	return l.mem[start:end]
}

// BeginStep resets the per-signal "already flipped this step" tracking.
// The caller must invoke it once before the first Write of a new step.
func (l *Local) BeginStep() {
	for i := range l.flippedThisStep {
		l.flippedThisStep[i] = false
	}
}

// Write stages data into the active slot for id, flipping to the other
// slot first if this is the first write to id since the last BeginStep.
func (l *Local) Write(id cosim.IoSignalId, data []byte) error {
	i, err := lookup(l.index, id)
	if err != nil {
		return err
	}
	s := l.signals[i]
	if err := checkLength(s, len(data)); err != nil {
		return err
	}
	if !l.flippedThisStep[i] {
		l.activeSlot[i] ^= 1
		l.flippedThisStep[i] = true
	}
	slot := l.activeSlot[i]
	copy(l.dataSlice(i, slot), data)
	// Publish the length last (release) so a peer that has just flipped to
	// this slot never observes a length without its matching bytes.
	atomic.StoreUint32(l.lengthPtr(i, slot), uint32(len(data)))
	return nil
}

// Read returns a copy of the bytes currently staged in this side's active
// slot for id.
func (l *Local) Read(id cosim.IoSignalId) ([]byte, error) {
	i, err := lookup(l.index, id)
	if err != nil {
		return nil, err
	}
	slot := l.activeSlot[i]
	n := atomic.LoadUint32(l.lengthPtr(i, slot))
	out := make([]byte, n)
	copy(out, l.dataSlice(i, slot)[:n])
	return out, nil
}

// Serialize writes the list of signal ids that changed (flipped a slot)
// this step; the bytes themselves never cross the channel.
func (l *Local) Serialize(w *channel.Writer) error {
	var ids []cosim.IoSignalId
	for i, flipped := range l.flippedThisStep {
		if flipped {
			ids = append(ids, l.signals[i].Id)
		}
	}
	if err := w.WriteUint32(uint32(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		if err := w.WriteUint32(uint32(id)); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads the changed-id list and flips this side's active
// slot for each one to match what the writer just published.
func (l *Local) Deserialize(r *channel.Reader, _ cosim.SimulationTime) error {
	count, err := r.ReadUint32()
	if err != nil {
		return err
	}
	for k := uint32(0); k < count; k++ {
		raw, err := r.ReadUint32()
		if err != nil {
			return err
		}
		id := cosim.IoSignalId(raw)
		i, ok := l.index[id]
		if !ok {
			return fmt.Errorf("%w: unknown signal id %d in step payload", cosim.ErrProtocol, id)
		}
		l.activeSlot[i] ^= 1
	}
	return nil
}
