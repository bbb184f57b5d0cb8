// Copyright dSPACE GmbH. All rights reserved.

package channel

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/osabstraction"
)

// PipeBufferSize is the byte capacity of one direction's SPSC ring.
const PipeBufferSize = 65536

// cacheLinePad separates hot atomic fields to avoid false sharing across
// the two processes mapping the same region.
const cacheLinePad = 64

// pipe region layout: four cache-line-padded uint32 fields followed by the
// byte ring. Only one process ever writes writerPID/writeIdx; only the
// other ever writes readerPID/readIdx.
const (
	offWriterPID = 0 * cacheLinePad
	offReaderPID = 1 * cacheLinePad
	offWriteIdx  = 2 * cacheLinePad
	offReadIdx   = 3 * cacheLinePad
	offBytes     = 4 * cacheLinePad
)

// PipeRegionSize is the total shared-memory size one Pipe direction needs.
const PipeRegionSize = offBytes + PipeBufferSize

// livenessGrace is the window after pipe construction during which a zero
// peer PID is tolerated (the counterpart may still be starting up).
const livenessGrace = 5 * time.Second

// Pipe is one direction of the local-mode byte channel: an SPSC ring of
// PipeBufferSize bytes living in shared memory, flanked by two named
// events (newData, signaled by the producer; newSpace, signaled by the
// consumer) and a PID-based liveness check on the counterpart.
type Pipe struct {
	region     *osabstraction.SharedMemoryRegion
	mem        []byte
	newData    *osabstraction.NamedEvent
	newSpace   *osabstraction.NamedEvent
	isProducer bool
	start      time.Time

	peerHandleSeen bool
}

// OpenPipe creates or opens the named shared-memory region and named events
// for one direction of a local-mode channel. isProducer selects whether
// this process is the byte-ring writer (true) or reader (false) for this
// particular named pipe.
func OpenPipe(name string, isProducer bool) (*Pipe, error) {
	region, err := osabstraction.CreateOrOpen(name, PipeRegionSize)
	if err != nil {
		return nil, fmt.Errorf("channel: open pipe region %q: %w", name, err)
	}
	newData, err := osabstraction.CreateOrOpenNamedEvent(name + ".NewData")
	if err != nil {
		_ = region.Close()
		return nil, fmt.Errorf("channel: open pipe new-data event %q: %w", name, err)
	}
	newSpace, err := osabstraction.CreateOrOpenNamedEvent(name + ".NewSpace")
	if err != nil {
		_ = region.Close()
		return nil, fmt.Errorf("channel: open pipe new-space event %q: %w", name, err)
	}
	p := &Pipe{
		region:     region,
		mem:        region.Bytes(),
		newData:    newData,
		newSpace:   newSpace,
		isProducer: isProducer,
		start:      time.Now(),
	}
	p.publishOwnPID()
	return p, nil
}

func ptr32(mem []byte, off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&mem[off]))
}

func (p *Pipe) writerPID() uint32     { return atomic.LoadUint32(ptr32(p.mem, offWriterPID)) }
func (p *Pipe) readerPID() uint32     { return atomic.LoadUint32(ptr32(p.mem, offReaderPID)) }
func (p *Pipe) writeIdx() uint32      { return atomic.LoadUint32(ptr32(p.mem, offWriteIdx)) }
func (p *Pipe) readIdx() uint32       { return atomic.LoadUint32(ptr32(p.mem, offReadIdx)) }
func (p *Pipe) setWriteIdx(v uint32)  { atomic.StoreUint32(ptr32(p.mem, offWriteIdx), v) }
func (p *Pipe) setReadIdx(v uint32)   { atomic.StoreUint32(ptr32(p.mem, offReadIdx), v) }

func (p *Pipe) publishOwnPID() {
	pid := uint32(os.Getpid())
	if p.isProducer {
		atomic.StoreUint32(ptr32(p.mem, offWriterPID), pid)
	} else {
		atomic.StoreUint32(ptr32(p.mem, offReaderPID), pid)
	}
}

func (p *Pipe) peerPID() uint32 {
	if p.isProducer {
		return p.readerPID()
	}
	return p.writerPID()
}

func mask(i uint32) uint32 { return i % PipeBufferSize }

func (p *Pipe) available() uint32 { return p.writeIdx() - p.readIdx() }
func (p *Pipe) freeSpace() uint32 { return PipeBufferSize - p.available() }

// disappeared reports the "counterpart disappeared" condition: the peer
// PID was set and its process handle now reports exited. Before any
// nonzero PID has ever been observed, the peer is assumed still
// initializing until the startup grace period elapses.
func (p *Pipe) disappeared() bool {
	pid := p.peerPID()
	if pid != 0 {
		if !osabstraction.ProcessExists(int(pid)) {
			return true
		}
		p.peerHandleSeen = true
		return false
	}
	if p.peerHandleSeen {
		return true
	}
	return time.Since(p.start) >= livenessGrace
}

// spin busy-waits with exponential backoff (1,4,16 pauses across up to
// 1000 iterations) for cond to become true, returning false if it never
// does within the budget.
func spin(cond func() bool) bool {
	delays := [3]int{1, 4, 16}
	iterations := 0
	for iterations < 1000 {
		if cond() {
			return true
		}
		d := delays[iterations%len(delays)]
		for i := 0; i < d; i++ {
			runtime.Gosched()
		}
		iterations++
	}
	return cond()
}

// Write pushes data into the ring, blocking (fast-spin then event-wait) until
// enough space is free or the peer disappears.
func (p *Pipe) Write(data []byte) (int, error) {
	if !p.isProducer {
		return 0, fmt.Errorf("channel: Write called on consumer-side pipe")
	}
	written := 0
	for written < len(data) {
		chunk := data[written:]
		if uint32(len(chunk)) > p.freeSpace() {
			if !p.waitForSpace() {
				return written, fmt.Errorf("%w: peer pipe disappeared", cosim.ErrNotConnected)
			}
		}
		n := p.writeOnce(chunk)
		written += n
		if n > 0 {
			if err := p.newData.Set(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (p *Pipe) writeOnce(data []byte) int {
	free := p.freeSpace()
	n := len(data)
	if uint32(n) > free {
		n = int(free)
	}
	if n == 0 {
		return 0
	}
	widx := p.writeIdx()
	for i := 0; i < n; i++ {
		p.mem[offBytes+mask(widx+uint32(i))] = data[i]
	}
	p.setWriteIdx(widx + uint32(n))
	return n
}

func (p *Pipe) waitForSpace() bool {
	if spin(func() bool { return p.freeSpace() > 0 || p.disappeared() }) {
		return !p.disappeared()
	}
	for {
		if p.disappeared() {
			return false
		}
		_ = p.newData.Set() // nudge the reader in case it is asleep
		res, err := p.newSpace.Wait(time.Millisecond)
		if err != nil {
			return false
		}
		if res == osabstraction.WaitOk && p.freeSpace() > 0 {
			return true
		}
		if p.disappeared() {
			return false
		}
	}
}

// Read pulls up to len(dst) bytes from the ring, blocking until at least
// one byte is available or the peer disappears.
func (p *Pipe) Read(dst []byte) (int, error) {
	if p.isProducer {
		return 0, fmt.Errorf("channel: Read called on producer-side pipe")
	}
	if p.available() == 0 {
		if !p.waitForData() {
			return 0, fmt.Errorf("%w: peer pipe disappeared", cosim.ErrNotConnected)
		}
	}
	n := p.readOnce(dst)
	if n > 0 {
		if err := p.newSpace.Set(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (p *Pipe) readOnce(dst []byte) int {
	avail := p.available()
	n := len(dst)
	if uint32(n) > avail {
		n = int(avail)
	}
	if n == 0 {
		return 0
	}
	ridx := p.readIdx()
	for i := 0; i < n; i++ {
		dst[i] = p.mem[offBytes+mask(ridx+uint32(i))]
	}
	p.setReadIdx(ridx + uint32(n))
	return n
}

func (p *Pipe) waitForData() bool {
	if spin(func() bool { return p.available() > 0 || p.disappeared() }) {
		return !p.disappeared()
	}
	for {
		if p.disappeared() {
			return false
		}
		_ = p.newSpace.Set() // nudge the writer in case it is asleep
		res, err := p.newData.Wait(time.Millisecond)
		if err != nil {
			return false
		}
		if res == osabstraction.WaitOk && p.available() > 0 {
			return true
		}
		if p.disappeared() {
			return false
		}
	}
}

// Close closes this side's event handles and unmaps its view of the
// region. The shared-memory region itself is not unlinked and stays in
// place for the counterpart.
func (p *Pipe) Close() error {
	_ = p.newData.Close()
	_ = p.newSpace.Close()
	return p.region.Close()
}
