// Copyright dSPACE GmbH. All rights reserved.

package iobuffer

import (
	"sync"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
)

// Locked wraps a Buffer with a mutex so it can be shared between the
// goroutine driving the simulation step loop and a goroutine serving
// synchronous client reads/writes between steps.
type Locked struct {
	mu  sync.Mutex
	buf Buffer
}

// NewLocked wraps buf with mutual exclusion.
func NewLocked(buf Buffer) *Locked {
	return &Locked{buf: buf}
}

func (l *Locked) BeginStep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.BeginStep()
}

func (l *Locked) Write(id cosim.IoSignalId, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(id, data)
}

func (l *Locked) Read(id cosim.IoSignalId) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Read(id)
}

func (l *Locked) Serialize(w *channel.Writer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Serialize(w)
}

func (l *Locked) Deserialize(r *channel.Reader, t cosim.SimulationTime) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Deserialize(r, t)
}
