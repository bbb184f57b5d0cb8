// Copyright dSPACE GmbH. All rights reserved.

// Package busbuffer implements the per-controller, queue-bounded transmit
// and receive buffers shared by the CAN, Ethernet, LIN and FlexRay bus
// specializations. The generic core is instantiated once per message
// type via a Descriptor; can.go/eth.go/lin.go/flexray.go supply the
// kind-specific wire encoding and validation.
package busbuffer

import (
	"fmt"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
	"github.com/dspace-group/veos-cosim-go/internal/ring"
)

// Descriptor captures everything the generic queue-bounded core needs to
// know about one message kind.
type Descriptor[M any] struct {
	MaxLength    uint32
	ControllerID func(*M) cosim.BusControllerId
	Length       func(M) uint32
	CheckFlags   func(M) error // nil if the kind has nothing to validate
	Encode       func(w *channel.Writer, m M) error
	Decode       func(r *channel.Reader) (M, error)
}

// ControllerInfo is the static configuration of one bus controller.
type ControllerInfo struct {
	Id        cosim.BusControllerId
	Name      string
	QueueSize uint32
}

// WarnFunc receives the latched "buffer full" log line. Callers wire this
// to their structured logger's warning level.
type WarnFunc func(message string)

type controllerQueue[M any] struct {
	info        ControllerInfo
	ring        *ring.Ring[M]
	warningSent bool
}

func newControllerQueues[M any](controllers []ControllerInfo) map[cosim.BusControllerId]*controllerQueue[M] {
	m := make(map[cosim.BusControllerId]*controllerQueue[M], len(controllers))
	for _, c := range controllers {
		m[c.Id] = &controllerQueue[M]{info: c, ring: ring.New[M](int(c.QueueSize))}
	}
	return m
}

func lookupController[M any](m map[cosim.BusControllerId]*controllerQueue[M], id cosim.BusControllerId) (*controllerQueue[M], error) {
	cq, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown bus controller id %d", cosim.ErrInvalidArgument, id)
	}
	return cq, nil
}

func validateMessage[M any](desc Descriptor[M], m M) error {
	if desc.Length(m) > desc.MaxLength {
		return fmt.Errorf("%w: message length %d exceeds max %d", cosim.ErrInvalidArgument, desc.Length(m), desc.MaxLength)
	}
	if desc.CheckFlags != nil {
		if err := desc.CheckFlags(m); err != nil {
			return err
		}
	}
	return nil
}

// TransmitBuffer is the contract shared by the Remote and Local transmit
// variants.
type TransmitBuffer[M any] interface {
	BeginStep()
	Transmit(m M) error
	Serialize(w *channel.Writer) error
}

// ReceiveBuffer is the contract shared by the Remote and Local receive
// variants. Receive peeks the front message for controller id and
// advances past it, mirroring the reference implementation's
// peek-and-advance semantics for the non-container receive API.
type ReceiveBuffer[M any] interface {
	BeginStep()
	Receive(id cosim.BusControllerId) (M, error)
	Deserialize(r *channel.Reader, dispatch func(M)) error
}
