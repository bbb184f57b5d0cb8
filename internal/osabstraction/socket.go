// Copyright dSPACE GmbH. All rights reserved.

package osabstraction

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DialTCPNoDelay connects to addr with the given timeout and disables
// Nagle's algorithm on the resulting connection, matching the remote
// channel's low-latency framing requirements.
func DialTCPNoDelay(ctx context.Context, addr string, timeout time.Duration) (*net.TCPConn, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("osabstraction: dial %q: %w", addr, err)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("osabstraction: dial %q: not a tcp connection", addr)
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		_ = tcpConn.Close()
		return nil, fmt.Errorf("osabstraction: set no-delay %q: %w", addr, err)
	}
	return tcpConn, nil
}

// ListenTCP opens a listener on addr (port 0 picks an ephemeral port),
// suitable for the remote channel server side.
func ListenTCP(addr string) (*net.TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("osabstraction: listen %q: %w", addr, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return nil, fmt.Errorf("osabstraction: listen %q: not a tcp listener", addr)
	}
	return tcpLn, nil
}

// SetNoDelayAccepted disables Nagle's algorithm on a freshly accepted
// connection. Call this right after Accept on the server side, since
// net.TCPListener.Accept does not inherit dialer options.
func SetNoDelayAccepted(conn *net.TCPConn) error {
	if err := conn.SetNoDelay(true); err != nil {
		return fmt.Errorf("osabstraction: set no-delay: %w", err)
	}
	return nil
}
