// Copyright dSPACE GmbH. All rights reserved.

package busbuffer

import (
	"fmt"
	"unsafe"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
	"github.com/dspace-group/veos-cosim-go/internal/shmring"
)

// recordBytes views m's own memory as a byte slice, relying on M being a
// trivially-copyable, fixed-size record (every message type in this
// module is a plain struct with an inline data array, never a pointer or
// slice field).
func recordBytes[M any](m *M) []byte {
	var zero M
	return unsafe.Slice((*byte)(unsafe.Pointer(m)), unsafe.Sizeof(zero))
}

func nextPowerOfTwo(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}

// LocalRegionSize returns the shared-memory size one controller's ring
// needs to hold queueSize records of message type M, rounded up to the
// next power of two as internal/shmring requires.
func LocalRegionSize[M any](queueSize uint32) int {
	var zero M
	return shmring.RegionSize(nextPowerOfTwo(queueSize), int(unsafe.Sizeof(zero)))
}

type localQueue[M any] struct {
	info        ControllerInfo
	view        *shmring.View
	warningSent bool
}

func newLocalQueues[M any](controllers []ControllerInfo, regions map[cosim.BusControllerId][]byte, init bool) (map[cosim.BusControllerId]*localQueue[M], error) {
	var zero M
	recordSize := int(unsafe.Sizeof(zero))
	out := make(map[cosim.BusControllerId]*localQueue[M], len(controllers))
	for _, c := range controllers {
		region, ok := regions[c.Id]
		if !ok {
			return nil, fmt.Errorf("%w: missing shared region for controller %d", cosim.ErrInvalidArgument, c.Id)
		}
		view, err := shmring.New(region, nextPowerOfTwo(c.QueueSize), recordSize, init)
		if err != nil {
			return nil, err
		}
		out[c.Id] = &localQueue[M]{info: c, view: view}
	}
	return out, nil
}

func lookupLocal[M any](m map[cosim.BusControllerId]*localQueue[M], id cosim.BusControllerId) (*localQueue[M], error) {
	q, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown bus controller id %d", cosim.ErrInvalidArgument, id)
	}
	return q, nil
}

// LocalTransmit pushes transmitted messages directly into a shared-memory
// ring that the peer's LocalReceive maps over the same region: the
// handoff itself needs no channel traffic, so Serialize only reports a
// diagnostic total count.
type LocalTransmit[M any] struct {
	desc        Descriptor[M]
	controllers map[cosim.BusControllerId]*localQueue[M]
	warn        WarnFunc
}

// NewLocalTransmit constructs a transmit buffer whose controllers' rings
// live in the given per-controller shared-memory regions. init must be
// true for exactly one of the two sides mapping each region (the side
// that creates it).
func NewLocalTransmit[M any](desc Descriptor[M], controllers []ControllerInfo, regions map[cosim.BusControllerId][]byte, init bool, warn WarnFunc) (*LocalTransmit[M], error) {
	qs, err := newLocalQueues[M](controllers, regions, init)
	if err != nil {
		return nil, err
	}
	return &LocalTransmit[M]{desc: desc, controllers: qs, warn: warn}, nil
}

func (b *LocalTransmit[M]) BeginStep() {
	for _, q := range b.controllers {
		q.warningSent = false
	}
}

func (b *LocalTransmit[M]) Transmit(m M) error {
	q, err := lookupLocal(b.controllers, b.desc.ControllerID(&m))
	if err != nil {
		return err
	}
	if err := validateMessage(b.desc, m); err != nil {
		return err
	}
	if q.view.IsFull() {
		if !q.warningSent {
			q.warningSent = true
			if b.warn != nil {
				b.warn(fmt.Sprintf("Transmit buffer for controller %q is full. Messages are dropped.", q.info.Name))
			}
		}
		return cosim.ErrFull
	}
	q.view.PushBack(recordBytes(&m))
	return nil
}

func (b *LocalTransmit[M]) Serialize(w *channel.Writer) error {
	var total uint32
	for _, q := range b.controllers {
		total += q.view.Size()
	}
	return w.WriteUint32(total)
}

// LocalReceive maps the same shared-memory rings as its peer's
// LocalTransmit; by the time Deserialize runs the messages are already
// visible, so it only reads (and discards) the diagnostic count and optionally
// drains to a dispatch callback.
type LocalReceive[M any] struct {
	desc        Descriptor[M]
	controllers map[cosim.BusControllerId]*localQueue[M]
}

// NewLocalReceive constructs a receive buffer over the given shared
// regions; init must be false here when the peer's transmit side passed
// true for the same region.
func NewLocalReceive[M any](desc Descriptor[M], controllers []ControllerInfo, regions map[cosim.BusControllerId][]byte, init bool) (*LocalReceive[M], error) {
	qs, err := newLocalQueues[M](controllers, regions, init)
	if err != nil {
		return nil, err
	}
	return &LocalReceive[M]{desc: desc, controllers: qs}, nil
}

func (b *LocalReceive[M]) BeginStep() {}

func (b *LocalReceive[M]) Receive(id cosim.BusControllerId) (M, error) {
	var zero M
	q, err := lookupLocal(b.controllers, id)
	if err != nil {
		return zero, err
	}
	if q.view.IsEmpty() {
		return zero, cosim.ErrEmpty
	}
	var m M
	q.view.PopFront(recordBytes(&m))
	return m, nil
}

// Deserialize reads the diagnostic total_count written by the peer's
// LocalTransmit.Serialize, then, if dispatch is non-nil, drains every
// controller's ring through it (data already present via shared memory).
func (b *LocalReceive[M]) Deserialize(r *channel.Reader, dispatch func(M)) error {
	if _, err := r.ReadUint32(); err != nil {
		return err
	}
	if dispatch == nil {
		return nil
	}
	var m M
	for _, q := range b.controllers {
		for !q.view.IsEmpty() {
			q.view.PopFront(recordBytes(&m))
			dispatch(m)
		}
	}
	return nil
}
