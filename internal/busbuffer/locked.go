// Copyright dSPACE GmbH. All rights reserved.

package busbuffer

import (
	"sync"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
)

// LockedTransmit wraps a TransmitBuffer with mutual exclusion for
// client-side use, where Transmit calls from application code may race
// with Serialize driven by the step loop.
type LockedTransmit[M any] struct {
	mu    sync.Mutex
	inner TransmitBuffer[M]
}

// NewLockedTransmit wraps inner with a mutex.
func NewLockedTransmit[M any](inner TransmitBuffer[M]) *LockedTransmit[M] {
	return &LockedTransmit[M]{inner: inner}
}

func (b *LockedTransmit[M]) BeginStep() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inner.BeginStep()
}

func (b *LockedTransmit[M]) Transmit(m M) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.Transmit(m)
}

func (b *LockedTransmit[M]) Serialize(w *channel.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.Serialize(w)
}

// LockedReceive wraps a ReceiveBuffer with mutual exclusion for
// client-side use.
type LockedReceive[M any] struct {
	mu    sync.Mutex
	inner ReceiveBuffer[M]
}

// NewLockedReceive wraps inner with a mutex.
func NewLockedReceive[M any](inner ReceiveBuffer[M]) *LockedReceive[M] {
	return &LockedReceive[M]{inner: inner}
}

func (b *LockedReceive[M]) BeginStep() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inner.BeginStep()
}

func (b *LockedReceive[M]) Receive(id cosim.BusControllerId) (M, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.Receive(id)
}

func (b *LockedReceive[M]) Deserialize(r *channel.Reader, dispatch func(M)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.Deserialize(r, dispatch)
}
