// Copyright dSPACE GmbH. All rights reserved.

package channel

import (
	"fmt"
	"net"

	cosim "github.com/dspace-group/veos-cosim-go"
)

// SocketChannel is the remote-mode backend: a framed Writer/Reader pair
// over a net.Conn (TCP or Unix-domain stream socket).
type SocketChannel struct {
	conn   net.Conn
	Writer *Writer
	Reader *Reader
}

// NewSocketChannel wraps conn in a framed channel. The caller is
// responsible for enabling TCP_NODELAY before this call (see
// internal/osabstraction.DialTCPNoDelay / SetNoDelayAccepted).
func NewSocketChannel(conn net.Conn) *SocketChannel {
	c := &SocketChannel{conn: conn}
	c.Writer = NewWriter(c)
	c.Reader = NewReader(c)
	return c
}

// Send implements Sender with short-write handling and NotConnected
// classification.
func (c *SocketChannel) Send(frame []byte) error {
	written := 0
	for written < len(frame) {
		n, err := c.conn.Write(frame[written:])
		written += n
		if err != nil {
			return fmt.Errorf("%w: %v", cosim.ErrNotConnected, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: zero-length write", cosim.ErrNotConnected)
		}
	}
	return nil
}

// Receive implements Receiver with a single Read syscall per call.
func (c *SocketChannel) Receive(dst []byte) (int, error) {
	n, err := c.conn.Read(dst)
	if err != nil {
		return n, fmt.Errorf("%w: %v", cosim.ErrNotConnected, err)
	}
	return n, nil
}

// Close tears down the underlying connection. Any goroutine blocked in
// Send/Receive observes NotConnected on its next call.
func (c *SocketChannel) Close() error {
	return c.conn.Close()
}
