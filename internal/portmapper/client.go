// Copyright dSPACE GmbH. All rights reserved.

// Package portmapper is a thin client for the name→TCP-port registry: a
// separate process, external to this module by contract, that a
// CoSimServer registers its listening port with (SetPort) and a
// CoSimClient queries before dialing a server by name (GetPort). Only the
// wire shim lives here; the registry process itself is out of scope.
package portmapper

import (
	"context"
	"fmt"
	"time"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
	"github.com/dspace-group/veos-cosim-go/internal/osabstraction"
	"github.com/dspace-group/veos-cosim-go/internal/protocol"
)

// DefaultDialTimeout bounds the connection attempt to the registry.
const DefaultDialTimeout = 5 * time.Second

// Client is a connection to the port-mapper registry.
type Client struct {
	channel *channel.SocketChannel
}

// Dial connects to the registry listening at addr ("host:port").
func Dial(ctx context.Context, addr string) (*Client, error) {
	conn, err := osabstraction.DialTCPNoDelay(ctx, addr, DefaultDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("portmapper: %w", err)
	}
	return &Client{channel: channel.NewSocketChannel(conn)}, nil
}

// Close releases the connection to the registry.
func (c *Client) Close() error { return c.channel.Close() }

// GetPort resolves serverName to its currently registered TCP port.
func (c *Client) GetPort(serverName string) (uint16, error) {
	if err := protocol.SendGetPort(c.channel.Writer, serverName); err != nil {
		return 0, fmt.Errorf("portmapper: send GetPort: %w", err)
	}
	if err := c.channel.Reader.BeginRead(); err != nil {
		return 0, fmt.Errorf("portmapper: %w: %w", cosim.ErrNotConnected, err)
	}
	kind, err := protocol.ReadFrameKind(c.channel.Reader)
	if err != nil {
		return 0, fmt.Errorf("portmapper: read reply kind: %w", err)
	}
	switch kind {
	case protocol.FrameGetPortOk:
		port, err := protocol.ReadGetPortOk(c.channel.Reader)
		if err != nil {
			return 0, fmt.Errorf("portmapper: read GetPortOk: %w", err)
		}
		return port, c.channel.Reader.EndRead()
	case protocol.FrameError:
		msg, err := protocol.ReadError(c.channel.Reader)
		if err != nil {
			return 0, fmt.Errorf("portmapper: read Error: %w", err)
		}
		_ = c.channel.Reader.EndRead()
		return 0, fmt.Errorf("portmapper: registry rejected %q: %s", serverName, msg)
	default:
		return 0, fmt.Errorf("%w: unexpected reply frame kind %s to GetPort", cosim.ErrProtocol, kind)
	}
}

// SetPort registers serverName as listening on port. A CoSimServer calls
// this once its accept loop is bound to a real port.
func (c *Client) SetPort(serverName string, port uint16) error {
	f := protocol.SetPortFrame{ServerName: serverName, Port: port}
	if err := protocol.SendSetPort(c.channel.Writer, f); err != nil {
		return fmt.Errorf("portmapper: send SetPort: %w", err)
	}
	return c.readOk("SetPort")
}

// UnsetPort deregisters serverName, typically on server shutdown.
func (c *Client) UnsetPort(serverName string) error {
	if err := protocol.SendUnsetPort(c.channel.Writer, serverName); err != nil {
		return fmt.Errorf("portmapper: send UnsetPort: %w", err)
	}
	return c.readOk("UnsetPort")
}

func (c *Client) readOk(what string) error {
	if err := c.channel.Reader.BeginRead(); err != nil {
		return fmt.Errorf("portmapper: %w: %w", cosim.ErrNotConnected, err)
	}
	kind, err := protocol.ReadFrameKind(c.channel.Reader)
	if err != nil {
		return fmt.Errorf("portmapper: read %s reply kind: %w", what, err)
	}
	switch kind {
	case protocol.FrameOk:
		return c.channel.Reader.EndRead()
	case protocol.FrameError:
		msg, err := protocol.ReadError(c.channel.Reader)
		if err != nil {
			return fmt.Errorf("portmapper: read Error: %w", err)
		}
		_ = c.channel.Reader.EndRead()
		return fmt.Errorf("portmapper: registry rejected %s: %s", what, msg)
	default:
		return fmt.Errorf("%w: unexpected reply frame kind %s to %s", cosim.ErrProtocol, kind, what)
	}
}
