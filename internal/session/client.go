// Copyright dSPACE GmbH. All rights reserved.

package session

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/busbuffer"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
	"github.com/dspace-group/veos-cosim-go/internal/iobuffer"
	"github.com/dspace-group/veos-cosim-go/internal/osabstraction"
	"github.com/dspace-group/veos-cosim-go/internal/portmapper"
	"github.com/dspace-group/veos-cosim-go/internal/protocol"
)

// ConnectConfig is what a client supplies to Connect: the server it wants
// to join, its own declared name, and how it is connecting.
type ConnectConfig struct {
	ServerName     string
	ClientName     string
	RemoteAddr     string
	PortMapperAddr string
	ClientMode     cosim.CoSimType
	DialTimeout    time.Duration

	// ConnectionKind selects the transport: Remote (TCP, the default) or
	// Local (shared memory, same host). LocalName, if empty, falls back
	// to ServerName, matching the server's own default.
	ConnectionKind cosim.ConnectionKind
	LocalName      string
}

// Client is the session-coordinator endpoint a simulation tool or test
// driver embeds to join a running Server. RunCallbackBasedCoSimulation
// runs the client's step loop on the calling goroutine, invoking
// callbacks as Step frames arrive; PollCommand is the non-blocking
// alternative for callers that want to drive their own loop.
type Client struct {
	mu    sync.Mutex
	state *stateMachine

	ch    *wireConn
	codec protocol.Codec
	info  protocol.ConnectOkInfo

	outgoing iobuffer.Buffer
	incoming iobuffer.Buffer

	canTx busbuffer.TransmitBuffer[cosim.CanMessage]
	canRx busbuffer.ReceiveBuffer[cosim.CanMessage]
	ethTx busbuffer.TransmitBuffer[cosim.EthMessage]
	ethRx busbuffer.ReceiveBuffer[cosim.EthMessage]
	linTx busbuffer.TransmitBuffer[cosim.LinMessage]
	linRx busbuffer.ReceiveBuffer[cosim.LinMessage]
	frTx  busbuffer.TransmitBuffer[cosim.FrMessage]
	frRx  busbuffer.ReceiveBuffer[cosim.FrMessage]

	localRegions []*osabstraction.SharedMemoryRegion

	// changedIncoming holds the signal ids this step's deserialize touched,
	// so callback dispatch only reports signals that actually changed
	// instead of the full catalog.
	changedIncoming []cosim.IoSignalId

	// lastStepTime is the simulation time carried by the most recently
	// polled Step frame, used to compute the next simulation time on reply.
	lastStepTime cosim.SimulationTime
}

// NewClient constructs a disconnected Client.
func NewClient() *Client {
	return &Client{state: newStateMachine(cosim.SimulationStateUnloaded)}
}

// GetConnectionState returns the simulation state this client last
// observed: Unloaded before Connect, then the state reported in ConnectOk
// as updated by lifecycle commands.
func (c *Client) GetConnectionState() cosim.SimulationState { return c.state.Get() }

// GetStepSize returns the step size negotiated at Connect.
func (c *Client) GetStepSize() cosim.SimulationTime { return c.info.StepSize }

// GetIncomingSignals returns the signal catalog the server declared as
// incoming (values the client writes).
func (c *Client) GetIncomingSignals() []cosim.IoSignal { return c.info.IncomingSignals }

// GetOutgoingSignals returns the signal catalog the server declared as
// outgoing (values the client reads).
func (c *Client) GetOutgoingSignals() []cosim.IoSignal { return c.info.OutgoingSignals }

// Connect resolves serverName (via the port-mapper registry when
// RemoteAddr is empty), dials it, and completes the handshake.
func (c *Client) Connect(ctx context.Context, cfg ConnectConfig) error {
	var ch *wireConn
	if cfg.ConnectionKind == cosim.ConnectionKindLocal {
		base := localBase(cfg.ServerName, cfg.LocalName)
		lc, err := channel.Connect(base)
		if err != nil {
			return err
		}
		ch = localConn(lc)
	} else {
		addr := cfg.RemoteAddr
		if addr == "" {
			if cfg.PortMapperAddr == "" {
				return fmt.Errorf("%w: Connect requires RemoteAddr or PortMapperAddr", cosim.ErrInvalidArgument)
			}
			pm, err := portmapper.Dial(ctx, cfg.PortMapperAddr)
			if err != nil {
				return err
			}
			defer func() { _ = pm.Close() }()
			port, err := pm.GetPort(cfg.ServerName)
			if err != nil {
				return err
			}
			addr = fmt.Sprintf("%s:%d", hostOf(cfg.PortMapperAddr), port)
		}

		timeout := cfg.DialTimeout
		if timeout == 0 {
			timeout = portmapper.DefaultDialTimeout
		}
		conn, err := osabstraction.DialTCPNoDelay(ctx, addr, timeout)
		if err != nil {
			return err
		}
		ch = remoteConn(channel.NewSocketChannel(conn))
	}

	if err := protocol.SendConnect(ch.Writer, protocol.ConnectFrame{
		ProtocolVersion: cosim.CurrentProtocolVersion,
		ClientMode:      cfg.ClientMode,
		ServerName:      cfg.ServerName,
		ClientName:      cfg.ClientName,
	}); err != nil {
		_ = ch.Close()
		return err
	}

	if err := ch.Reader.BeginRead(); err != nil {
		_ = ch.Close()
		return err
	}
	kind, err := protocol.ReadFrameKind(ch.Reader)
	if err != nil {
		_ = ch.Close()
		return err
	}
	if kind == protocol.FrameError {
		msg, _ := protocol.ReadError(ch.Reader)
		_ = ch.Reader.EndRead()
		_ = ch.Close()
		return fmt.Errorf("%w: server rejected Connect: %s", cosim.ErrProtocol, msg)
	}
	if kind != protocol.FrameConnectOk {
		_ = ch.Close()
		return fmt.Errorf("%w: expected ConnectOk, got %s", cosim.ErrProtocol, kind)
	}

	codec, err := protocol.NewCodec(cosim.CurrentProtocolVersion)
	if err != nil {
		_ = ch.Close()
		return err
	}
	info, err := protocol.ReadConnectOk(ch.Reader, codec)
	if err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Reader.EndRead(); err != nil {
		_ = ch.Close()
		return err
	}

	// The server's Step frame carries its OutgoingSignals catalog, and its
	// StepOk reply expects this client's payload indexed by its
	// IncomingSignals catalog: the client's buffers mirror that split.
	noopWarn := func(string) {}

	var (
		outgoing, incoming iobuffer.Buffer
		canTx              busbuffer.TransmitBuffer[cosim.CanMessage]
		canRx              busbuffer.ReceiveBuffer[cosim.CanMessage]
		ethTx              busbuffer.TransmitBuffer[cosim.EthMessage]
		ethRx              busbuffer.ReceiveBuffer[cosim.EthMessage]
		linTx              busbuffer.TransmitBuffer[cosim.LinMessage]
		linRx              busbuffer.ReceiveBuffer[cosim.LinMessage]
		frTx               busbuffer.TransmitBuffer[cosim.FrMessage]
		frRx               busbuffer.ReceiveBuffer[cosim.FrMessage]
		regions            []*osabstraction.SharedMemoryRegion
	)

	if cfg.ConnectionKind == cosim.ConnectionKindLocal {
		base := localBase(cfg.ServerName, cfg.LocalName)

		var region *osabstraction.SharedMemoryRegion
		// The client always opens (init=false) every local region: the
		// server already constructed each one's shmring view to completion
		// during Load, before this Connect could reach the handshake. The
		// region names are the server's: this client writes into the
		// server's Incoming region and reads from its Outgoing region.
		outgoing, region, err = localIOBuffer(base, "Incoming", info.IncomingSignals)
		if err != nil {
			_ = ch.Close()
			return err
		}
		regions = append(regions, region)
		incoming, region, err = localIOBuffer(base, "Outgoing", info.OutgoingSignals)
		if err != nil {
			closeRegions(regions)
			_ = ch.Close()
			return err
		}
		regions = append(regions, region)

		var opened []*osabstraction.SharedMemoryRegion
		canTx, canRx, opened, err = buildLocalBusPair(base, "Can", busbuffer.CanDescriptor, controllerInfosCan(info.CanControllers), false, noopWarn)
		if err != nil {
			closeRegions(regions)
			_ = ch.Close()
			return err
		}
		regions = append(regions, opened...)
		ethTx, ethRx, opened, err = buildLocalBusPair(base, "Eth", busbuffer.EthDescriptor, controllerInfosEth(info.EthControllers), false, noopWarn)
		if err != nil {
			closeRegions(regions)
			_ = ch.Close()
			return err
		}
		regions = append(regions, opened...)
		linTx, linRx, opened, err = buildLocalBusPair(base, "Lin", busbuffer.LinDescriptor, controllerInfosLin(info.LinControllers), false, noopWarn)
		if err != nil {
			closeRegions(regions)
			_ = ch.Close()
			return err
		}
		regions = append(regions, opened...)
		frTx, frRx, opened, err = buildLocalBusPair(base, "Fr", busbuffer.FlexRayDescriptor, controllerInfosFr(info.FlexRayControllers), false, noopWarn)
		if err != nil {
			closeRegions(regions)
			_ = ch.Close()
			return err
		}
		regions = append(regions, opened...)
	} else {
		outgoing, err = iobuffer.NewRemote(info.IncomingSignals)
		if err != nil {
			_ = ch.Close()
			return err
		}
		incoming, err = iobuffer.NewRemote(info.OutgoingSignals)
		if err != nil {
			_ = ch.Close()
			return err
		}
		canTx = busbuffer.NewRemoteTransmit(busbuffer.CanDescriptor, controllerInfosCan(info.CanControllers), noopWarn)
		canRx = busbuffer.NewRemoteReceive(busbuffer.CanDescriptor, controllerInfosCan(info.CanControllers), noopWarn)
		ethTx = busbuffer.NewRemoteTransmit(busbuffer.EthDescriptor, controllerInfosEth(info.EthControllers), noopWarn)
		ethRx = busbuffer.NewRemoteReceive(busbuffer.EthDescriptor, controllerInfosEth(info.EthControllers), noopWarn)
		linTx = busbuffer.NewRemoteTransmit(busbuffer.LinDescriptor, controllerInfosLin(info.LinControllers), noopWarn)
		linRx = busbuffer.NewRemoteReceive(busbuffer.LinDescriptor, controllerInfosLin(info.LinControllers), noopWarn)
		frTx = busbuffer.NewRemoteTransmit(busbuffer.FlexRayDescriptor, controllerInfosFr(info.FlexRayControllers), noopWarn)
		frRx = busbuffer.NewRemoteReceive(busbuffer.FlexRayDescriptor, controllerInfosFr(info.FlexRayControllers), noopWarn)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ch = ch
	c.codec = codec
	c.info = info
	c.outgoing = outgoing
	c.incoming = incoming
	c.canTx, c.canRx = canTx, canRx
	c.ethTx, c.ethRx = ethTx, ethRx
	c.linTx, c.linRx = linTx, linRx
	c.frTx, c.frRx = frTx, frRx
	c.localRegions = regions
	c.state = newStateMachine(info.SimulationState)
	return nil
}

// Disconnect closes the connection to the server and any local shared-memory
// regions this client opened during Connect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	closeRegions(c.localRegions)
	c.localRegions = nil
	if c.ch == nil {
		return nil
	}
	err := c.ch.Close()
	c.ch = nil
	return err
}

// Write stages value for the given outgoing signal (from the client's
// perspective: a signal the server declared incoming), sent on the next
// StepOk reply.
func (c *Client) Write(signalID cosim.IoSignalId, value []byte) error {
	return c.outgoing.Write(signalID, value)
}

// Read returns the most recently received value of the given signal the
// server declared outgoing.
func (c *Client) Read(signalID cosim.IoSignalId) ([]byte, error) {
	return c.incoming.Read(signalID)
}

// TransmitCan queues a CAN message for the next StepOk reply.
func (c *Client) TransmitCan(message cosim.CanMessage) bool { return c.canTx.Transmit(message) == nil }

// TransmitEth queues an Ethernet message for the next StepOk reply.
func (c *Client) TransmitEth(message cosim.EthMessage) bool { return c.ethTx.Transmit(message) == nil }

// TransmitLin queues a LIN message for the next StepOk reply.
func (c *Client) TransmitLin(message cosim.LinMessage) bool { return c.linTx.Transmit(message) == nil }

// RunCallbackBasedCoSimulation runs the client's receive loop on the
// calling goroutine until ctx is canceled or the connection drops,
// invoking callbacks in the order the protocol guarantees for each Step:
// begin_step, apply incoming I/O changes, apply incoming bus messages,
// end_step, then reply StepOk with this client's staged outgoing payload.
func (c *Client) RunCallbackBasedCoSimulation(ctx context.Context, callbacks Callbacks) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		t, cmd, err := c.pollOnce()
		if err != nil {
			return err
		}
		if err := c.handleCommand(t, cmd, callbacks); err != nil {
			return err
		}
		if cmd == cosim.CommandTerminate || cmd == cosim.CommandTerminateFinished {
			return nil
		}
	}
}

// PollCommand blocks for the server's next frame and returns its
// simulation time and command without invoking any callback, for callers
// that drive their own loop. FinishCommand must be called afterward for
// Step commands to send the StepOk reply.
func (c *Client) PollCommand() (cosim.SimulationTime, cosim.Command, error) {
	return c.pollOnce()
}

// FinishCommand replies to the most recently polled Step command with
// this client's staged outgoing payload. Calling it for any other command
// is a programming error.
func (c *Client) FinishCommand() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyStepOk(c.lastStepTime)
}

func (c *Client) pollOnce() (cosim.SimulationTime, cosim.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.ch
	if ch == nil {
		return 0, 0, cosim.ErrNotConnected
	}
	if err := ch.Reader.BeginRead(); err != nil {
		return 0, 0, err
	}
	kind, err := protocol.ReadFrameKind(ch.Reader)
	if err != nil {
		return 0, 0, err
	}
	switch kind {
	case protocol.FrameStep:
		t, err := c.readStepPayload(ch)
		if err == nil {
			c.lastStepTime = t
		}
		return t, cosim.CommandStep, err
	case protocol.FrameStart:
		t, err := protocol.ReadStart(ch.Reader)
		if err == nil {
			err = ch.Reader.EndRead()
		}
		return t, cosim.CommandStart, err
	case protocol.FrameStop:
		t, err := protocol.ReadStop(ch.Reader)
		if err == nil {
			err = ch.Reader.EndRead()
		}
		return t, cosim.CommandStop, err
	case protocol.FramePause:
		t, err := protocol.ReadPause(ch.Reader)
		if err == nil {
			err = ch.Reader.EndRead()
		}
		return t, cosim.CommandPause, err
	case protocol.FrameContinue:
		t, err := protocol.ReadContinue(ch.Reader)
		if err == nil {
			err = ch.Reader.EndRead()
		}
		return t, cosim.CommandContinue, err
	case protocol.FrameTerminate:
		f, err := protocol.ReadTerminate(ch.Reader)
		if err == nil {
			err = ch.Reader.EndRead()
		}
		return f.SimulationTime, cosim.CommandTerminate, err
	case protocol.FramePing:
		p, err := protocol.ReadPing(ch.Reader, c.codec)
		if err != nil {
			return 0, 0, err
		}
		if err := ch.Reader.EndRead(); err != nil {
			return 0, 0, err
		}
		if err := protocol.SendPingOk(ch.Writer, c.codec, protocol.PingOkFrame{Command: cosim.CommandPing}); err != nil {
			return 0, 0, err
		}
		return 0, cosim.CommandPing, nil
	default:
		return 0, 0, fmt.Errorf("%w: unexpected frame kind %s from server", cosim.ErrProtocol, kind)
	}
}

func (c *Client) readStepPayload(ch *wireConn) (cosim.SimulationTime, error) {
	c.incoming.BeginStep()
	c.canRx.BeginStep()
	c.ethRx.BeginStep()
	c.linRx.BeginStep()
	flexRaySupported := c.codec.Version().SupportsFlexRay()
	if flexRaySupported {
		c.frRx.BeginStep()
	}
	before := make(map[cosim.IoSignalId][]byte, len(c.info.OutgoingSignals))
	for _, s := range c.info.OutgoingSignals {
		before[s.Id], _ = c.incoming.Read(s.Id)
	}

	t, err := protocol.ReadStep(ch.Reader, c.incoming.Deserialize, func(r *channel.Reader, t cosim.SimulationTime) error {
		if err := c.canRx.Deserialize(r, nil); err != nil {
			return err
		}
		if err := c.ethRx.Deserialize(r, nil); err != nil {
			return err
		}
		if err := c.linRx.Deserialize(r, nil); err != nil {
			return err
		}
		if flexRaySupported {
			return c.frRx.Deserialize(r, nil)
		}
		return nil
	})
	if err != nil {
		return t, err
	}

	c.changedIncoming = c.changedIncoming[:0]
	for _, s := range c.info.OutgoingSignals {
		after, _ := c.incoming.Read(s.Id)
		if !bytes.Equal(before[s.Id], after) {
			c.changedIncoming = append(c.changedIncoming, s.Id)
		}
	}

	return t, ch.Reader.EndRead()
}

// handleCommand fires the callback matching cmd and, for Step, replies
// StepOk once the callbacks have run.
func (c *Client) handleCommand(t cosim.SimulationTime, cmd cosim.Command, callbacks Callbacks) error {
	switch cmd {
	case cosim.CommandStep:
		callbacks.fireBeginStep(t)
		c.dispatchIncomingSignals(t, callbacks)
		c.dispatchBusMessages(t, callbacks)
		callbacks.fireEndStep(t)
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.replyStepOk(t)
	case cosim.CommandStart:
		_ = c.state.transition(cosim.SimulationStateRunning)
		callbacks.fireSimulationStarted(t)
		return c.ackOk()
	case cosim.CommandStop:
		_ = c.state.transition(cosim.SimulationStateStopped)
		callbacks.fireSimulationStopped(t)
		return c.ackOk()
	case cosim.CommandPause:
		_ = c.state.transition(cosim.SimulationStatePaused)
		callbacks.fireSimulationPaused(t)
		return c.ackOk()
	case cosim.CommandContinue:
		_ = c.state.transition(cosim.SimulationStateRunning)
		callbacks.fireSimulationContinued(t)
		return c.ackOk()
	case cosim.CommandTerminate, cosim.CommandTerminateFinished:
		_ = c.state.transition(cosim.SimulationStateTerminated)
		callbacks.fireSimulationTerminated(t, cosim.TerminateReasonFinished)
		return c.ackOk()
	case cosim.CommandPing:
		return nil
	default:
		return fmt.Errorf("%w: unhandled command %s", cosim.ErrProtocol, cmd)
	}
}

func (c *Client) ackOk() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil {
		return cosim.ErrNotConnected
	}
	return protocol.SendOk(c.ch.Writer)
}

// replyStepOk must be called with c.mu held.
func (c *Client) replyStepOk(stepTime cosim.SimulationTime) error {
	if c.ch == nil {
		return cosim.ErrNotConnected
	}
	flexRaySupported := c.codec.Version().SupportsFlexRay()
	serializeBus := func(w *channel.Writer) error {
		if err := c.canTx.Serialize(w); err != nil {
			return err
		}
		if err := c.ethTx.Serialize(w); err != nil {
			return err
		}
		if err := c.linTx.Serialize(w); err != nil {
			return err
		}
		if flexRaySupported {
			return c.frTx.Serialize(w)
		}
		return nil
	}
	nextTime := stepTime + c.info.StepSize
	if err := protocol.SendStepOk(c.ch.Writer, nextTime, cosim.CommandNone, c.outgoing.Serialize, serializeBus); err != nil {
		return err
	}
	c.outgoing.BeginStep()
	return nil
}

func (c *Client) dispatchIncomingSignals(t cosim.SimulationTime, callbacks Callbacks) {
	if callbacks.IncomingSignalChanged == nil {
		return
	}
	for _, id := range c.changedIncoming {
		for _, s := range c.info.OutgoingSignals {
			if s.Id != id {
				continue
			}
			if value, err := c.incoming.Read(id); err == nil {
				callbacks.IncomingSignalChanged(t, s, value)
			}
			break
		}
	}
}

func (c *Client) dispatchBusMessages(t cosim.SimulationTime, callbacks Callbacks) {
	if callbacks.CanMessageReceived != nil {
		for _, ctrl := range c.info.CanControllers {
			for {
				m, err := c.canRx.Receive(ctrl.Id)
				if err != nil {
					break
				}
				callbacks.CanMessageReceived(t, ctrl, m)
			}
		}
	}
	if callbacks.EthMessageReceived != nil {
		for _, ctrl := range c.info.EthControllers {
			for {
				m, err := c.ethRx.Receive(ctrl.Id)
				if err != nil {
					break
				}
				callbacks.EthMessageReceived(t, ctrl, m)
			}
		}
	}
	if callbacks.LinMessageReceived != nil {
		for _, ctrl := range c.info.LinControllers {
			for {
				m, err := c.linRx.Receive(ctrl.Id)
				if err != nil {
					break
				}
				callbacks.LinMessageReceived(t, ctrl, m)
			}
		}
	}
}

func hostOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
