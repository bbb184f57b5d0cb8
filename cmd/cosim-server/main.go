package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/metrics"
	"github.com/dspace-group/veos-cosim-go/internal/session"
)

// version/commit/date are overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("cosim-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	srv := session.NewServer(session.WithServerLogger(l))
	serverCfg := session.ServerConfig{
		ServerName:           cfg.serverName,
		IsClientOptional:     cfg.isClientOptional,
		RegisterAtPortMapper: cfg.registerPM,
		PortMapperAddr:       cfg.portMapperAddr,
		StepSize:             cosim.SimulationTime(cfg.stepSize.Nanoseconds()),
		IncomingSignals: []cosim.IoSignal{
			{Id: 1, MaxLength: 8, DataType: cosim.DataTypeFloat64, SizeKind: cosim.SizeKindFixed, Name: "throttle_position"},
		},
		OutgoingSignals: []cosim.IoSignal{
			{Id: 1, MaxLength: 8, DataType: cosim.DataTypeFloat64, SizeKind: cosim.SizeKindFixed, Name: "engine_speed"},
		},
		CanControllers: []cosim.CanController{
			{Id: 1, QueueSize: 256, BitsPerSecond: 500_000, Name: "powertrain_can"},
		},
	}
	if cfg.local {
		serverCfg.ConnectionKind = cosim.ConnectionKindLocal
		serverCfg.LocalName = cfg.localName
	}
	if _, portStr, err := net.SplitHostPort(cfg.listenAddr); err == nil {
		if port, err := strconv.ParseUint(portStr, 10, 16); err == nil {
			serverCfg.Port = uint16(port)
		}
	}

	if err := srv.Load(serverCfg, session.Callbacks{
		SimulationStarted:    func(t cosim.SimulationTime) { l.Info("simulation_started", "t", t.String()) },
		SimulationStopped:    func(t cosim.SimulationTime) { l.Info("simulation_stopped", "t", t.String()) },
		SimulationTerminated: func(t cosim.SimulationTime, reason cosim.TerminateReason) { l.Info("simulation_terminated", "t", t.String(), "reason", reason.String()) },
	}); err != nil {
		l.Error("session_load_error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("session_serve_error", "error", err)
			cancel()
		}
	}()

	select {
	case <-srv.Ready():
	case <-ctx.Done():
		return
	}
	l.Info("session_ready", "addr", cfg.listenAddr, "local_port", srv.GetLocalPort())

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsSrv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = metricsSrv.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go runStepLoop(ctx, l, srv, cosim.SimulationTime(cfg.stepSize.Nanoseconds()))

	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("session_shutdown_error", "error", err)
	}
}

// runStepLoop starts the simulation at time zero as soon as it is called,
// then advances one step per tick of stepSize until ctx is canceled. It
// does not wait for a client: if Start or a Step fails (for example
// because no client is connected yet), it logs a warning and returns.
func runStepLoop(ctx context.Context, l interface {
	Info(string, ...any)
	Warn(string, ...any)
}, srv *session.Server, stepSize cosim.SimulationTime) {
	if err := srv.Start(0); err != nil {
		l.Warn("session_start_error", "error", err)
		return
	}
	var t cosim.SimulationTime
	ticker := time.NewTicker(time.Duration(stepSize))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			next, err := srv.Step(t)
			if err != nil {
				l.Warn("session_step_error", "error", err)
				return
			}
			t = next
		}
	}
}
