// Copyright dSPACE GmbH. All rights reserved.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rs/xid"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/busbuffer"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
	"github.com/dspace-group/veos-cosim-go/internal/iobuffer"
	"github.com/dspace-group/veos-cosim-go/internal/logging"
	"github.com/dspace-group/veos-cosim-go/internal/metrics"
	"github.com/dspace-group/veos-cosim-go/internal/osabstraction"
	"github.com/dspace-group/veos-cosim-go/internal/portmapper"
	"github.com/dspace-group/veos-cosim-go/internal/protocol"
)

// backgroundServicePeriod is the fixed tick of the server's ping and
// housekeeping goroutine.
const backgroundServicePeriod = 1 * time.Millisecond

// ServerConfig mirrors the configuration a simulation tool hands to
// CoSimServer: listening parameters, the step size, and the full catalog
// of signals and bus controllers the session will exchange with its
// client.
type ServerConfig struct {
	Port                 uint16
	EnableRemoteAccess   bool
	ServerName           string
	IsClientOptional     bool
	StartPortMapper      bool
	RegisterAtPortMapper bool
	PortMapperAddr       string
	StepSize             cosim.SimulationTime
	IncomingSignals      []cosim.IoSignal
	OutgoingSignals      []cosim.IoSignal
	CanControllers       []cosim.CanController
	EthControllers       []cosim.EthController
	LinControllers       []cosim.LinController
	FrControllers        []cosim.FrController

	// ConnectionKind selects the transport: Remote (TCP, the default) or
	// Local (shared memory, same host). LocalName, if empty, falls back
	// to ServerName as the shared-memory/pipe naming root.
	ConnectionKind cosim.ConnectionKind
	LocalName      string
}

// Server is the session-coordinator endpoint a simulation tool embeds: it
// accepts one client connection at a time, runs the handshake, and drives
// the per-step exchange in the order the wire protocol guarantees. The
// embedding application calls Start/Stop/Pause/Continue/Step/Terminate;
// Write/Read/Transmit stage values for the next Step.
type Server struct {
	mu        sync.RWMutex
	cfg       ServerConfig
	callbacks Callbacks
	state     *stateMachine
	logger    *slog.Logger

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

	listener      net.Listener
	localListener *channel.Listener
	readyCh       chan struct{}
	readyOnce     sync.Once
	errCh         chan error

	connMu     sync.Mutex
	conn       *wireConn
	codec      protocol.Codec
	clientName string
	connID     xid.ID

	portClient *portmapper.Client

	wg sync.WaitGroup
}

// ServerOption customizes a Server at construction.
type ServerOption func(*Server)

// WithServerLogger overrides the default package logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer constructs an unloaded Server. Call Load before Serve.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		state:   newStateMachine(cosim.SimulationStateUnloaded),
		logger:  logging.L(),
		readyCh: make(chan struct{}),
		errCh:   make(chan error, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ready signals once the listener is bound and accepting.
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Errors surfaces fatal listener errors.
func (s *Server) Errors() <-chan error { return s.errCh }

// State returns the current simulation state.
func (s *Server) State() cosim.SimulationState { return s.state.Get() }

// GetLocalPort returns the bound listener's TCP port, valid after Serve's
// Ready channel closes.
func (s *Server) GetLocalPort() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return 0
	}
	_, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		return 0
	}
	var port uint16
	_, _ = fmt.Sscanf(portStr, "%d", &port)
	return port
}

// Load validates cfg's signal and controller catalogs, builds the I/O and
// bus buffers, and transitions Unloaded -> Stopped.
func (s *Server) Load(cfg ServerConfig, callbacks Callbacks) error {
	if err := cosim.ValidateSignalSet(cfg.IncomingSignals); err != nil {
		return err
	}
	if err := cosim.ValidateSignalSet(cfg.OutgoingSignals); err != nil {
		return err
	}

	warn := func(message string) { s.logger.Warn("bus_buffer", "message", message) }

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
		var err error
		// The server always creates (init=true) every local region it
		// touches during Load, including both bus directions: Load
		// completes in full before any client can reach Connect, so the
		// server is guaranteed to be first to construct each shmring view.
		outgoing, region, err = localIOBuffer(base, "Outgoing", cfg.OutgoingSignals)
		if err != nil {
			return err
		}
		regions = append(regions, region)
		incoming, region, err = localIOBuffer(base, "Incoming", cfg.IncomingSignals)
		if err != nil {
			closeRegions(regions)
			return err
		}
		regions = append(regions, region)

		var opened []*osabstraction.SharedMemoryRegion
		canTx, canRx, opened, err = buildLocalBusPair(base, "Can", busbuffer.CanDescriptor, controllerInfosCan(cfg.CanControllers), true, warn)
		if err != nil {
			closeRegions(regions)
			return err
		}
		regions = append(regions, opened...)
		ethTx, ethRx, opened, err = buildLocalBusPair(base, "Eth", busbuffer.EthDescriptor, controllerInfosEth(cfg.EthControllers), true, warn)
		if err != nil {
			closeRegions(regions)
			return err
		}
		regions = append(regions, opened...)
		linTx, linRx, opened, err = buildLocalBusPair(base, "Lin", busbuffer.LinDescriptor, controllerInfosLin(cfg.LinControllers), true, warn)
		if err != nil {
			closeRegions(regions)
			return err
		}
		regions = append(regions, opened...)
		frTx, frRx, opened, err = buildLocalBusPair(base, "Fr", busbuffer.FlexRayDescriptor, controllerInfosFr(cfg.FrControllers), true, warn)
		if err != nil {
			closeRegions(regions)
			return err
		}
		regions = append(regions, opened...)
	} else {
		var err error
		outgoing, err = iobuffer.NewRemote(cfg.OutgoingSignals)
		if err != nil {
			return err
		}
		incoming, err = iobuffer.NewRemote(cfg.IncomingSignals)
		if err != nil {
			return err
		}
		canTx = busbuffer.NewRemoteTransmit(busbuffer.CanDescriptor, controllerInfosCan(cfg.CanControllers), warn)
		canRx = busbuffer.NewRemoteReceive(busbuffer.CanDescriptor, controllerInfosCan(cfg.CanControllers), warn)
		ethTx = busbuffer.NewRemoteTransmit(busbuffer.EthDescriptor, controllerInfosEth(cfg.EthControllers), warn)
		ethRx = busbuffer.NewRemoteReceive(busbuffer.EthDescriptor, controllerInfosEth(cfg.EthControllers), warn)
		linTx = busbuffer.NewRemoteTransmit(busbuffer.LinDescriptor, controllerInfosLin(cfg.LinControllers), warn)
		linRx = busbuffer.NewRemoteReceive(busbuffer.LinDescriptor, controllerInfosLin(cfg.LinControllers), warn)
		frTx = busbuffer.NewRemoteTransmit(busbuffer.FlexRayDescriptor, controllerInfosFr(cfg.FrControllers), warn)
		frRx = busbuffer.NewRemoteReceive(busbuffer.FlexRayDescriptor, controllerInfosFr(cfg.FrControllers), warn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.transition(cosim.SimulationStateStopped); err != nil {
		closeRegions(regions)
		return err
	}
	s.cfg = cfg
	s.callbacks = callbacks
	s.outgoing = outgoing
	s.incoming = incoming
	s.canTx, s.canRx = canTx, canRx
	s.ethTx, s.ethRx = ethTx, ethRx
	s.linTx, s.linRx = linTx, linRx
	s.frTx, s.frRx = frTx, frRx
	s.localRegions = regions
	return nil
}

// Unload discards the configured session while Stopped, resetting the
// server to Unloaded so Load may be called again.
func (s *Server) Unload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Get() != cosim.SimulationStateStopped {
		return fmt.Errorf("%w: Unload requires Stopped, currently %s", cosim.ErrInvalidArgument, s.state.Get())
	}
	s.state = newStateMachine(cosim.SimulationStateUnloaded)
	s.outgoing, s.incoming = nil, nil
	s.canTx, s.canRx, s.ethTx, s.ethRx, s.linTx, s.linRx, s.frTx, s.frRx = nil, nil, nil, nil, nil, nil, nil, nil
	closeRegions(s.localRegions)
	s.localRegions = nil
	return nil
}

// Serve binds the listener (TCP, or a local shared-memory channel when
// ConnectionKind is Local), optionally registers with the port-mapper
// registry, and accepts client connections (one active at a time) until
// ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	if s.cfg.ConnectionKind == cosim.ConnectionKindLocal {
		return s.serveLocal(ctx)
	}
	return s.serveRemote(ctx)
}

func (s *Server) serveRemote(ctx context.Context) error {
	ln, err := osabstraction.ListenTCP(fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		s.setError(err)
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	if s.cfg.RegisterAtPortMapper && s.cfg.PortMapperAddr != "" {
		if err := s.registerPortMapper(ctx); err != nil {
			s.logger.Warn("portmapper_register_failed", "error", err)
		}
	}

	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("session_listen", "addr", ln.Addr().String(), "server_name", s.cfg.ServerName)

	go func() { <-ctx.Done(); _ = ln.Close() }()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
			}
			s.setError(err)
			return err
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = osabstraction.SetNoDelayAccepted(tcp)
		}
		if err := s.acceptOnce(ctx, remoteConn(channel.NewSocketChannel(conn))); err != nil {
			s.logger.Warn("session_accept_rejected", "error", err)
		}
	}
}

// serveLocal accepts client connections over the named shared-memory
// channel instead of a TCP listener. channel.Listener.Accept has no
// cancellation support, so the accept loop runs in a background goroutine
// and may block past ctx.Done() until a client connects or the process
// exits; this is an accepted limitation of the local channel listener.
func (s *Server) serveLocal(ctx context.Context) error {
	base := localBase(s.cfg.ServerName, s.cfg.LocalName)
	ln, err := channel.NewListener(base)
	if err != nil {
		s.setError(err)
		return err
	}
	s.mu.Lock()
	s.localListener = ln
	s.mu.Unlock()

	if s.cfg.RegisterAtPortMapper && s.cfg.PortMapperAddr != "" {
		if err := s.registerPortMapper(ctx); err != nil {
			s.logger.Warn("portmapper_register_failed", "error", err)
		}
	}

	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("session_listen_local", "base", base, "server_name", s.cfg.ServerName)

	errCh := make(chan error, 1)
	go func() {
		for {
			lc, err := ln.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
				default:
					errCh <- err
				}
				return
			}
			if err := s.acceptOnce(ctx, localConn(lc)); err != nil {
				s.logger.Warn("session_accept_rejected", "error", err)
			}
		}
	}()

	select {
	case <-ctx.Done():
		_ = ln.Close()
		s.wg.Wait()
		return nil
	case err := <-errCh:
		_ = ln.Close()
		s.setError(err)
		return err
	}
}

func (s *Server) registerPortMapper(ctx context.Context) error {
	client, err := portmapper.Dial(ctx, s.cfg.PortMapperAddr)
	if err != nil {
		return err
	}
	if err := client.SetPort(s.cfg.ServerName, s.GetLocalPort()); err != nil {
		_ = client.Close()
		return err
	}
	s.portClient = client
	return nil
}

// acceptOnce performs the handshake on a freshly accepted connection and,
// if no client is already active, adopts it as the session's connection.
func (s *Server) acceptOnce(ctx context.Context, ch *wireConn) error {
	s.connMu.Lock()
	busy := s.conn != nil
	s.connMu.Unlock()
	if busy && !s.cfg.IsClientOptional {
		_ = ch.Reader.BeginRead()
		_, _ = protocol.ReadFrameKind(ch.Reader)
		_ = protocol.SendError(ch.Writer, "server busy: a client is already connected")
		return fmt.Errorf("%w: rejected concurrent client", cosim.ErrInvalidArgument)
	}

	if err := ch.Reader.BeginRead(); err != nil {
		_ = ch.Close()
		return fmt.Errorf("session: handshake read: %w", err)
	}
	kind, err := protocol.ReadFrameKind(ch.Reader)
	if err != nil || kind != protocol.FrameConnect {
		_ = ch.Close()
		return fmt.Errorf("%w: expected Connect frame, got %s", cosim.ErrProtocol, kind)
	}
	req, err := protocol.ReadConnect(ch.Reader)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("session: read Connect: %w", err)
	}
	_ = ch.Reader.EndRead()

	negotiated := req.ProtocolVersion
	if negotiated > cosim.CurrentProtocolVersion {
		negotiated = cosim.CurrentProtocolVersion
	}
	codec, err := protocol.NewCodec(negotiated)
	if err != nil {
		_ = protocol.SendError(ch.Writer, err.Error())
		_ = ch.Close()
		return err
	}

	info := protocol.ConnectOkInfo{
		ClientMode:         req.ClientMode,
		StepSize:           s.cfg.StepSize,
		SimulationState:    s.state.Get(),
		IncomingSignals:    s.cfg.IncomingSignals,
		OutgoingSignals:    s.cfg.OutgoingSignals,
		CanControllers:     s.cfg.CanControllers,
		EthControllers:     s.cfg.EthControllers,
		LinControllers:     s.cfg.LinControllers,
		FlexRayControllers: s.cfg.FrControllers,
	}
	if err := protocol.SendConnectOk(ch.Writer, codec, info); err != nil {
		_ = ch.Close()
		return fmt.Errorf("session: send ConnectOk: %w", err)
	}

	connID := xid.New()
	s.connMu.Lock()
	s.conn = ch
	s.codec = codec
	s.clientName = req.ClientName
	s.connID = connID
	s.connMu.Unlock()

	s.logger.Info("session_client_connected", "conn_id", connID.String(), "client_name", req.ClientName, "protocol_version", uint32(negotiated))
	metrics.SetActiveSessions(true)

	s.wg.Add(1)
	go s.runBackgroundService(ctx, ch)
	return nil
}

// runBackgroundService pings the connected client at a fixed tick until
// the connection drops or ctx is canceled.
func (s *Server) runBackgroundService(ctx context.Context, ch *wireConn) {
	defer s.wg.Done()
	ticker := time.NewTicker(backgroundServicePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ping(ch); err != nil {
				s.logger.Warn("session_ping_failed", "conn_id", s.connID.String(), "client_name", s.clientName, "error", err)
				s.connMu.Lock()
				if s.conn == ch {
					s.conn = nil
				}
				s.connMu.Unlock()
				metrics.SetActiveSessions(false)
				return
			}
		}
	}
}

func (s *Server) ping(ch *wireConn) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != ch {
		return nil
	}
	sent := time.Now()
	if err := protocol.SendPing(ch.Writer, s.codec, protocol.PingFrame{State: s.state.Get()}); err != nil {
		return err
	}
	if err := ch.Reader.BeginRead(); err != nil {
		return err
	}
	kind, err := protocol.ReadFrameKind(ch.Reader)
	if err != nil {
		return err
	}
	if kind != protocol.FramePingOk {
		return fmt.Errorf("%w: expected PingOk, got %s", cosim.ErrProtocol, kind)
	}
	if _, err := protocol.ReadPingOk(ch.Reader, s.codec); err != nil {
		return err
	}
	metrics.SetPingRoundTrip(time.Since(sent).Nanoseconds())
	return ch.Reader.EndRead()
}

// BackgroundService runs one housekeeping tick synchronously; exposed for
// callers that prefer pumping it themselves instead of relying on Serve's
// internal ticker.
func (s *Server) BackgroundService() error {
	s.connMu.Lock()
	ch := s.conn
	s.connMu.Unlock()
	if ch == nil {
		return nil
	}
	return s.ping(ch)
}

// sendAndAwaitOk sends a lifecycle frame already queued by send, then
// blocks for the bare Ok/Error acknowledgement.
func (s *Server) sendAndAwaitOk(send func(*channel.Writer) error) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	ch := s.conn
	if ch == nil {
		return cosim.ErrNotConnected
	}
	if err := send(ch.Writer); err != nil {
		return err
	}
	if err := ch.Reader.BeginRead(); err != nil {
		return err
	}
	kind, err := protocol.ReadFrameKind(ch.Reader)
	if err != nil {
		return err
	}
	switch kind {
	case protocol.FrameOk:
		return ch.Reader.EndRead()
	case protocol.FrameError:
		msg, err := protocol.ReadError(ch.Reader)
		_ = ch.Reader.EndRead()
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", cosim.ErrProtocol, msg)
	default:
		return fmt.Errorf("%w: unexpected reply frame kind %s", cosim.ErrProtocol, kind)
	}
}

// Start transitions Stopped -> Running and notifies the connected client.
func (s *Server) Start(simulationTime cosim.SimulationTime) error {
	if err := s.state.transition(cosim.SimulationStateRunning); err != nil {
		return err
	}
	if err := s.sendAndAwaitOk(func(w *channel.Writer) error { return protocol.SendStart(w, simulationTime) }); err != nil {
		return err
	}
	s.callbacks.fireSimulationStarted(simulationTime)
	return nil
}

// Stop transitions Running or Paused -> Stopped and notifies the client.
func (s *Server) Stop(simulationTime cosim.SimulationTime) error {
	if err := s.state.transition(cosim.SimulationStateStopped); err != nil {
		return err
	}
	if err := s.sendAndAwaitOk(func(w *channel.Writer) error { return protocol.SendStop(w, simulationTime) }); err != nil {
		return err
	}
	s.callbacks.fireSimulationStopped(simulationTime)
	return nil
}

// Pause transitions Running -> Paused and notifies the client.
func (s *Server) Pause(simulationTime cosim.SimulationTime) error {
	if err := s.state.transition(cosim.SimulationStatePaused); err != nil {
		return err
	}
	if err := s.sendAndAwaitOk(func(w *channel.Writer) error { return protocol.SendPause(w, simulationTime) }); err != nil {
		return err
	}
	s.callbacks.fireSimulationPaused(simulationTime)
	return nil
}

// Continue transitions Paused -> Running and notifies the client.
func (s *Server) Continue(simulationTime cosim.SimulationTime) error {
	if err := s.state.transition(cosim.SimulationStateRunning); err != nil {
		return err
	}
	if err := s.sendAndAwaitOk(func(w *channel.Writer) error { return protocol.SendContinue(w, simulationTime) }); err != nil {
		return err
	}
	s.callbacks.fireSimulationContinued(simulationTime)
	return nil
}

// Terminate ends the session from any state and notifies the client.
func (s *Server) Terminate(simulationTime cosim.SimulationTime, reason cosim.TerminateReason) error {
	if err := s.state.transition(cosim.SimulationStateTerminated); err != nil {
		return err
	}
	err := s.sendAndAwaitOk(func(w *channel.Writer) error {
		return protocol.SendTerminate(w, protocol.TerminateFrame{SimulationTime: simulationTime, Reason: reason})
	})
	s.callbacks.fireSimulationTerminated(simulationTime, reason)
	return err
}

// Step drives one simulation step: it serializes the currently staged
// outgoing signals and bus messages onto the wire, then blocks for the
// client's StepOk reply, applying its incoming signal and bus message
// payload to this server's buffers before returning the simulation time
// the client advanced to.
func (s *Server) Step(simulationTime cosim.SimulationTime) (cosim.SimulationTime, error) {
	if s.state.Get() != cosim.SimulationStateRunning {
		return 0, fmt.Errorf("%w: Step requires Running, currently %s", cosim.ErrInvalidArgument, s.state.Get())
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	ch := s.conn
	if ch == nil {
		return 0, cosim.ErrNotConnected
	}

	s.canTx.BeginStep()
	s.ethTx.BeginStep()
	s.linTx.BeginStep()
	flexRaySupported := s.codec.Version().SupportsFlexRay()
	if flexRaySupported {
		s.frTx.BeginStep()
	}

	serializeIo := s.outgoing.Serialize
	serializeBus := func(w *channel.Writer) error {
		if err := s.canTx.Serialize(w); err != nil {
			return err
		}
		if err := s.ethTx.Serialize(w); err != nil {
			return err
		}
		if err := s.linTx.Serialize(w); err != nil {
			return err
		}
		if flexRaySupported {
			return s.frTx.Serialize(w)
		}
		return nil
	}
	if err := protocol.SendStep(ch.Writer, simulationTime, serializeIo, serializeBus); err != nil {
		return 0, err
	}
	s.outgoing.BeginStep()

	if err := ch.Reader.BeginRead(); err != nil {
		return 0, err
	}
	kind, err := protocol.ReadFrameKind(ch.Reader)
	if err != nil {
		return 0, err
	}
	if kind != protocol.FrameStepOk {
		return 0, fmt.Errorf("%w: expected StepOk, got %s", cosim.ErrProtocol, kind)
	}

	s.incoming.BeginStep()
	s.canRx.BeginStep()
	s.ethRx.BeginStep()
	s.linRx.BeginStep()
	if flexRaySupported {
		s.frRx.BeginStep()
	}

	deserializeIo := func(r *channel.Reader, t cosim.SimulationTime) error {
		s.callbacks.fireBeginStep(t)
		return s.incoming.Deserialize(r, t)
	}
	deserializeBus := func(r *channel.Reader, t cosim.SimulationTime) error {
		if err := s.canRx.Deserialize(r, func(m cosim.CanMessage) { metrics.IncCanRx(); s.dispatchCan(t, m) }); err != nil {
			return err
		}
		if err := s.ethRx.Deserialize(r, func(m cosim.EthMessage) { metrics.IncEthRx(); s.dispatchEth(t, m) }); err != nil {
			return err
		}
		if err := s.linRx.Deserialize(r, func(m cosim.LinMessage) { metrics.IncLinRx(); s.dispatchLin(t, m) }); err != nil {
			return err
		}
		if flexRaySupported {
			return s.frRx.Deserialize(r, nil)
		}
		return nil
	}
	nextTime, _, err := protocol.ReadStepOk(ch.Reader, deserializeIo, deserializeBus)
	if err != nil {
		return 0, err
	}
	s.callbacks.fireEndStep(nextTime)
	metrics.IncStep()
	return nextTime, ch.Reader.EndRead()
}

func (s *Server) dispatchCan(t cosim.SimulationTime, m cosim.CanMessage) {
	if s.callbacks.CanMessageReceived == nil {
		return
	}
	for _, c := range s.cfg.CanControllers {
		if c.Id == m.ControllerId {
			s.callbacks.CanMessageReceived(t, c, m)
			return
		}
	}
}

func (s *Server) dispatchEth(t cosim.SimulationTime, m cosim.EthMessage) {
	if s.callbacks.EthMessageReceived == nil {
		return
	}
	for _, c := range s.cfg.EthControllers {
		if c.Id == m.ControllerId {
			s.callbacks.EthMessageReceived(t, c, m)
			return
		}
	}
}

func (s *Server) dispatchLin(t cosim.SimulationTime, m cosim.LinMessage) {
	if s.callbacks.LinMessageReceived == nil {
		return
	}
	for _, c := range s.cfg.LinControllers {
		if c.Id == m.ControllerId {
			s.callbacks.LinMessageReceived(t, c, m)
			return
		}
	}
}

// Write stages value for the given outgoing signal, to be sent on the
// next Step.
func (s *Server) Write(signalID cosim.IoSignalId, value []byte) error {
	return s.outgoing.Write(signalID, value)
}

// Read returns the most recently received value of the given incoming
// signal.
func (s *Server) Read(signalID cosim.IoSignalId) ([]byte, error) {
	return s.incoming.Read(signalID)
}

// TransmitCan queues a CAN message for the next Step, returning false if
// the controller's transmit queue is saturated.
func (s *Server) TransmitCan(message cosim.CanMessage) bool {
	ok := s.canTx.Transmit(message) == nil
	if ok {
		metrics.IncCanTx()
	} else {
		metrics.IncBusDropped(metrics.BusCan)
	}
	return ok
}

// TransmitEth queues an Ethernet message for the next Step.
func (s *Server) TransmitEth(message cosim.EthMessage) bool {
	ok := s.ethTx.Transmit(message) == nil
	if ok {
		metrics.IncEthTx()
	} else {
		metrics.IncBusDropped(metrics.BusEth)
	}
	return ok
}

// TransmitLin queues a LIN message for the next Step.
func (s *Server) TransmitLin(message cosim.LinMessage) bool {
	ok := s.linTx.Transmit(message) == nil
	if ok {
		metrics.IncLinTx()
	} else {
		metrics.IncBusDropped(metrics.BusLin)
	}
	return ok
}

// Shutdown closes the listener and the active connection, deregistering
// from the port-mapper registry if registered.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	lln := s.localListener
	s.localListener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	if lln != nil {
		_ = lln.Close()
	}
	if s.portClient != nil {
		_ = s.portClient.UnsetPort(s.cfg.ServerName)
		_ = s.portClient.Close()
	}
	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %w", cosim.ErrTimeout, ctx.Err())
	case <-done:
		return nil
	}
}

func (s *Server) setError(err error) {
	if err == nil || errors.Is(err, net.ErrClosed) {
		return
	}
	select {
	case s.errCh <- err:
	default:
	}
}

func controllerInfosCan(cs []cosim.CanController) []busbuffer.ControllerInfo {
	out := make([]busbuffer.ControllerInfo, len(cs))
	for i, c := range cs {
		out[i] = busbuffer.ControllerInfo{Id: c.Id, Name: c.Name, QueueSize: c.QueueSize}
	}
	return out
}

func controllerInfosEth(cs []cosim.EthController) []busbuffer.ControllerInfo {
	out := make([]busbuffer.ControllerInfo, len(cs))
	for i, c := range cs {
		out[i] = busbuffer.ControllerInfo{Id: c.Id, Name: c.Name, QueueSize: c.QueueSize}
	}
	return out
}

func controllerInfosLin(cs []cosim.LinController) []busbuffer.ControllerInfo {
	out := make([]busbuffer.ControllerInfo, len(cs))
	for i, c := range cs {
		out[i] = busbuffer.ControllerInfo{Id: c.Id, Name: c.Name, QueueSize: c.QueueSize}
	}
	return out
}

func controllerInfosFr(cs []cosim.FrController) []busbuffer.ControllerInfo {
	out := make([]busbuffer.ControllerInfo, len(cs))
	for i, c := range cs {
		out[i] = busbuffer.ControllerInfo{Id: c.Id, Name: c.Name, QueueSize: c.QueueSize}
	}
	return out
}
