package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/session"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("cosim-client %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := session.NewClient()
	connectCfg := session.ConnectConfig{
		ServerName:     cfg.serverName,
		ClientName:     cfg.clientName,
		RemoteAddr:     cfg.remoteAddr,
		PortMapperAddr: cfg.portMapperAddr,
		ClientMode:     cosim.CoSimTypeClient,
		DialTimeout:    cfg.dialTimeout,
	}
	if cfg.local {
		connectCfg.ConnectionKind = cosim.ConnectionKindLocal
		connectCfg.LocalName = cfg.localName
	}
	err := client.Connect(ctx, connectCfg)
	if err != nil {
		l.Error("session_connect_error", "error", err)
		os.Exit(1)
	}
	l.Info("session_connected",
		"server_name", cfg.serverName,
		"step_size", client.GetStepSize().String(),
		"incoming_signals", len(client.GetIncomingSignals()),
		"outgoing_signals", len(client.GetOutgoingSignals()),
	)
	defer func() {
		if err := client.Disconnect(); err != nil {
			l.Warn("session_disconnect_error", "error", err)
		}
	}()

	err = client.RunCallbackBasedCoSimulation(ctx, session.Callbacks{
		SimulationStarted: func(t cosim.SimulationTime) { l.Info("simulation_started", "t", t.String()) },
		SimulationStopped: func(t cosim.SimulationTime) { l.Info("simulation_stopped", "t", t.String()) },
		SimulationTerminated: func(t cosim.SimulationTime, reason cosim.TerminateReason) {
			l.Info("simulation_terminated", "t", t.String(), "reason", reason.String())
		},
		SimulationBeginStep: func(t cosim.SimulationTime) {
			for _, signal := range client.GetOutgoingSignals() {
				if err := client.Write(signal.Id, make([]byte, signal.MaxLength)); err != nil {
					l.Warn("signal_write_error", "signal", signal.Name, "error", err)
				}
			}
		},
		IncomingSignalChanged: func(t cosim.SimulationTime, signal cosim.IoSignal, value []byte) {
			l.Debug("signal_changed", "t", t.String(), "signal", signal.Name, "bytes", len(value))
		},
		CanMessageReceived: func(t cosim.SimulationTime, controller cosim.CanController, message cosim.CanMessage) {
			l.Debug("can_message_received", "t", t.String(), "controller", controller.Name, "id", message.Id)
		},
		EthMessageReceived: func(t cosim.SimulationTime, controller cosim.EthController, message cosim.EthMessage) {
			l.Debug("eth_message_received", "t", t.String(), "controller", controller.Name)
		},
		LinMessageReceived: func(t cosim.SimulationTime, controller cosim.LinController, message cosim.LinMessage) {
			l.Debug("lin_message_received", "t", t.String(), "controller", controller.Name, "id", message.Id)
		},
	})
	if err != nil && ctx.Err() == nil {
		l.Error("session_cosimulation_error", "error", err)
		os.Exit(1)
	}
	l.Info("session_closed")
}
