// Copyright dSPACE GmbH. All rights reserved.

package channel

import (
	"fmt"
	"sync/atomic"

	"github.com/dspace-group/veos-cosim-go/internal/osabstraction"
)

// LocalChannel is the local-mode backend: two Pipes, one per direction,
// wrapped in the same framed Writer/Reader pair the remote backend uses.
type LocalChannel struct {
	tx     *Pipe
	rx     *Pipe
	Writer *Writer
	Reader *Reader
}

// localChannelSender/localChannelReceiver adapt a single Pipe direction to
// the channel.Sender/Receiver contracts the framing layer expects.
type localChannelSender struct{ pipe *Pipe }

func (s localChannelSender) Send(frame []byte) error {
	_, err := s.pipe.Write(frame)
	return err
}

type localChannelReceiver struct{ pipe *Pipe }

func (r localChannelReceiver) Receive(dst []byte) (int, error) {
	return r.pipe.Read(dst)
}

// OpenLocalChannelClient opens the client side of a local-mode channel
// previously derived by a Listener, naming its two directional pipes
// "<base>.<n>.ClientToServer" and "<base>.<n>.ServerToClient".
func OpenLocalChannelClient(base string, n uint32) (*LocalChannel, error) {
	tx, err := OpenPipe(fmt.Sprintf("%s.%d.ClientToServer", base, n), true)
	if err != nil {
		return nil, err
	}
	rx, err := OpenPipe(fmt.Sprintf("%s.%d.ServerToClient", base, n), false)
	if err != nil {
		_ = tx.Close()
		return nil, err
	}
	return newLocalChannel(tx, rx), nil
}

// openLocalChannelServer opens the server side of the same named pair:
// the server reads ClientToServer and writes ServerToClient.
func openLocalChannelServer(base string, n uint32) (*LocalChannel, error) {
	rx, err := OpenPipe(fmt.Sprintf("%s.%d.ClientToServer", base, n), false)
	if err != nil {
		return nil, err
	}
	tx, err := OpenPipe(fmt.Sprintf("%s.%d.ServerToClient", base, n), true)
	if err != nil {
		_ = rx.Close()
		return nil, err
	}
	return newLocalChannel(tx, rx), nil
}

func newLocalChannel(tx, rx *Pipe) *LocalChannel {
	c := &LocalChannel{tx: tx, rx: rx}
	c.Writer = NewWriter(localChannelSender{pipe: tx})
	c.Reader = NewReader(localChannelReceiver{pipe: rx})
	return c
}

// Close releases both directional pipes.
func (c *LocalChannel) Close() error {
	err1 := c.tx.Close()
	err2 := c.rx.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// counterRegionSize is the shared-memory size of a Listener's connection
// counter region: just one cache-line-padded atomic uint32.
const counterRegionSize = cacheLinePad

// Listener is the local-mode server-side accept point: a shared-memory
// "server counter" that increments once per accepted client, used to
// derive unique per-connection pipe names.
type Listener struct {
	base    string
	region  *osabstraction.SharedMemoryRegion
	counter *uint32
	handed  uint32
}

// NewListener creates or opens the shared connection-counter region for
// base and returns a Listener ready to accept local-mode clients.
// Connection slots are derived by incrementing this counter.
func NewListener(base string) (*Listener, error) {
	region, err := osabstraction.CreateOrOpen(base+".Listener", counterRegionSize)
	if err != nil {
		return nil, fmt.Errorf("channel: open listener counter %q: %w", base, err)
	}
	return &Listener{base: base, region: region, counter: ptr32(region.Bytes(), 0)}, nil
}

// Accept blocks (busy-spin with backoff) until a new client has
// incremented the shared counter beyond what this listener has already
// handed out, then opens and returns the server side of that connection.
func (l *Listener) Accept() (*LocalChannel, error) {
	// A client connects by incrementing the shared counter directly (see
	// Connect); there is no event to wait on here, only the counter
	// itself, so keep spinning with backoff until it advances.
	for atomic.LoadUint32(l.counter) <= l.handed {
		spin(func() bool { return atomic.LoadUint32(l.counter) > l.handed })
	}
	n := l.handed
	l.handed++
	return openLocalChannelServer(l.base, n)
}

// Connect performs the client-side half of the accept handshake:
// atomically claims the next connection slot and opens the client side of
// the resulting pipe pair.
func Connect(base string) (*LocalChannel, error) {
	region, err := osabstraction.CreateOrOpen(base+".Listener", counterRegionSize)
	if err != nil {
		return nil, fmt.Errorf("channel: open listener counter %q: %w", base, err)
	}
	defer region.Close()
	counter := ptr32(region.Bytes(), 0)
	n := atomic.AddUint32(counter, 1) - 1
	return OpenLocalChannelClient(base, n)
}

// Close releases the listener's counter region.
func (l *Listener) Close() error {
	return l.region.Close()
}
