// Copyright dSPACE GmbH. All rights reserved.

package busbuffer

import (
	"fmt"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
)

// RemoteTransmit queues messages per controller and drains them onto the
// wire on Serialize.
type RemoteTransmit[M any] struct {
	desc        Descriptor[M]
	controllers map[cosim.BusControllerId]*controllerQueue[M]
	warn        WarnFunc
}

// NewRemoteTransmit constructs a transmit buffer for the given controllers.
func NewRemoteTransmit[M any](desc Descriptor[M], controllers []ControllerInfo, warn WarnFunc) *RemoteTransmit[M] {
	return &RemoteTransmit[M]{desc: desc, controllers: newControllerQueues[M](controllers), warn: warn}
}

// BeginStep clears the latched transmit-full warning for every controller.
func (b *RemoteTransmit[M]) BeginStep() {
	for _, cq := range b.controllers {
		cq.warningSent = false
	}
}

// Transmit validates and enqueues m. It returns ErrFull, with a single
// latched warning per controller per step, once the controller's queue
// is saturated.
func (b *RemoteTransmit[M]) Transmit(m M) error {
	cq, err := lookupController(b.controllers, b.desc.ControllerID(&m))
	if err != nil {
		return err
	}
	if err := validateMessage(b.desc, m); err != nil {
		return err
	}
	if cq.ring.IsFull() {
		if !cq.warningSent {
			cq.warningSent = true
			if b.warn != nil {
				b.warn(fmt.Sprintf("Transmit buffer for controller %q is full. Messages are dropped.", cq.info.Name))
			}
		}
		return cosim.ErrFull
	}
	cq.ring.TryPushBack(&m)
	return nil
}

// Serialize writes total_count:u32, drains every controller's ring onto
// the wire, and resets their counts for the next step.
func (b *RemoteTransmit[M]) Serialize(w *channel.Writer) error {
	var total int
	for _, cq := range b.controllers {
		total += cq.ring.Size()
	}
	if err := w.WriteUint32(uint32(total)); err != nil {
		return err
	}
	var m M
	for _, cq := range b.controllers {
		for cq.ring.TryPopFront(&m) {
			if err := b.desc.Encode(w, m); err != nil {
				return err
			}
		}
	}
	return nil
}

// RemoteReceive accumulates inbound messages per controller, dispatching
// to a step-local callback or enqueuing for a polling Receive call.
type RemoteReceive[M any] struct {
	desc        Descriptor[M]
	controllers map[cosim.BusControllerId]*controllerQueue[M]
	warn        WarnFunc
}

// NewRemoteReceive constructs a receive buffer for the given controllers.
func NewRemoteReceive[M any](desc Descriptor[M], controllers []ControllerInfo, warn WarnFunc) *RemoteReceive[M] {
	return &RemoteReceive[M]{desc: desc, controllers: newControllerQueues[M](controllers), warn: warn}
}

// BeginStep clears the latched receive-full warning for every controller.
func (b *RemoteReceive[M]) BeginStep() {
	for _, cq := range b.controllers {
		cq.warningSent = false
	}
}

// Receive pops the oldest queued message for controller id.
func (b *RemoteReceive[M]) Receive(id cosim.BusControllerId) (M, error) {
	var zero M
	cq, err := lookupController(b.controllers, id)
	if err != nil {
		return zero, err
	}
	var m M
	if !cq.ring.TryPopFront(&m) {
		return zero, cosim.ErrEmpty
	}
	return m, nil
}

// Deserialize reads total_count:u32 then that many message records,
// dispatching each to dispatch if non-nil or else enqueuing it for a
// later Receive, dropping and latching a warning once a controller's
// queue saturates.
func (b *RemoteReceive[M]) Deserialize(r *channel.Reader, dispatch func(M)) error {
	total, err := r.ReadUint32()
	if err != nil {
		return err
	}
	for k := uint32(0); k < total; k++ {
		m, err := b.desc.Decode(r)
		if err != nil {
			return err
		}
		id := b.desc.ControllerID(&m)
		cq, ok := b.controllers[id]
		if !ok {
			return fmt.Errorf("%w: unknown bus controller id %d in step payload", cosim.ErrProtocol, id)
		}
		if dispatch != nil {
			dispatch(m)
			continue
		}
		if cq.ring.IsFull() {
			if !cq.warningSent {
				cq.warningSent = true
				if b.warn != nil {
					b.warn(fmt.Sprintf("Receive buffer for controller %q is full. Messages are dropped.", cq.info.Name))
				}
			}
			continue
		}
		cq.ring.TryPushBack(&m)
	}
	return nil
}
