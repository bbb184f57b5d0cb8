// Copyright dSPACE GmbH. All rights reserved.

package session

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	cosim "github.com/dspace-group/veos-cosim-go"
)

func skipIfNoSHM(t *testing.T) {
	t.Helper()
	if os.Getenv("SKIP_SHM_TESTS") != "" {
		t.Skip("shared memory unavailable in this environment")
	}
}

func testConfig() ServerConfig {
	return ServerConfig{
		Port:       0,
		ServerName: "test-server",
		StepSize:   1_000_000,
		IncomingSignals: []cosim.IoSignal{
			{Id: 1, MaxLength: 4, DataType: cosim.DataTypeUint32, SizeKind: cosim.SizeKindFixed, Name: "throttle"},
		},
		OutgoingSignals: []cosim.IoSignal{
			{Id: 2, MaxLength: 4, DataType: cosim.DataTypeUint32, SizeKind: cosim.SizeKindFixed, Name: "rpm"},
		},
		CanControllers: []cosim.CanController{
			{Id: 1, QueueSize: 16, Name: "can0"},
		},
	}
}

// startServer loads cfg into a fresh Server and serves it on an ephemeral
// loopback port, returning the server and its bound address.
func startServer(t *testing.T, ctx context.Context, cfg ServerConfig, callbacks Callbacks) (*Server, string) {
	t.Helper()
	srv := NewServer()
	if err := srv.Load(cfg, callbacks); err != nil {
		t.Fatalf("Load: %v", err)
	}
	go func() {
		if err := srv.Serve(ctx); err != nil {
			select {
			case <-ctx.Done():
			default:
				t.Errorf("Serve: %v", err)
			}
		}
	}()
	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not become ready")
	}
	return srv, fmt.Sprintf("127.0.0.1:%d", srv.GetLocalPort())
}

func TestConnectNegotiatesHandshake(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, addr := startServer(t, ctx, testConfig(), Callbacks{})
	defer func() { _ = srv.Shutdown(context.Background()) }()

	client := NewClient()
	if err := client.Connect(ctx, ConnectConfig{ServerName: "test-server", ClientName: "tester", RemoteAddr: addr}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = client.Disconnect() }()

	if client.GetStepSize() != cosim.SimulationTime(1_000_000) {
		t.Fatalf("GetStepSize = %v, want 1ms", client.GetStepSize())
	}
	if len(client.GetIncomingSignals()) != 1 || client.GetIncomingSignals()[0].Name != "throttle" {
		t.Fatalf("GetIncomingSignals = %+v", client.GetIncomingSignals())
	}
	if len(client.GetOutgoingSignals()) != 1 || client.GetOutgoingSignals()[0].Name != "rpm" {
		t.Fatalf("GetOutgoingSignals = %+v", client.GetOutgoingSignals())
	}
}

func TestStepRoundTripExchangesSignalsAndCanMessages(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, addr := startServer(t, ctx, testConfig(), Callbacks{})
	defer func() { _ = srv.Shutdown(context.Background()) }()

	client := NewClient()
	if err := client.Connect(ctx, ConnectConfig{ServerName: "test-server", ClientName: "tester", RemoteAddr: addr}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = client.Disconnect() }()

	var gotChanged bool
	var gotCan bool
	clientDone := make(chan error, 1)
	go func() {
		clientDone <- client.RunCallbackBasedCoSimulation(ctx, Callbacks{
			IncomingSignalChanged: func(_ cosim.SimulationTime, signal cosim.IoSignal, value []byte) {
				if signal.Name == "rpm" {
					gotChanged = true
				}
			},
			CanMessageReceived: func(_ cosim.SimulationTime, controller cosim.CanController, message cosim.CanMessage) {
				if controller.Id == 1 && message.Id == 7 {
					gotCan = true
				}
			},
			SimulationBeginStep: func(_ cosim.SimulationTime) {
				_ = client.Write(1, []byte{1, 0, 0, 0})
				var m cosim.CanMessage
				m.ControllerId = 1
				m.Id = 42
				m.Length = 1
				m.Data[0] = 0xAB
				client.TransmitCan(m)
			},
		})
	}()

	if err := srv.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := srv.Write(2, []byte{9, 0, 0, 0}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var m cosim.CanMessage
	m.ControllerId = 1
	m.Id = 7
	m.Length = 1
	m.Data[0] = 0xCD
	srv.TransmitCan(m)

	next, err := srv.Step(0)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if next != cosim.SimulationTime(1_000_000) {
		t.Fatalf("next simulation time = %v, want 1ms", next)
	}

	value, err := srv.Read(1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(value) != 4 || value[0] != 1 {
		t.Fatalf("Read(throttle) = %v, want [1 0 0 0]", value)
	}

	if !gotChanged {
		t.Fatalf("IncomingSignalChanged was not fired for the changed signal")
	}
	if !gotCan {
		t.Fatalf("CanMessageReceived was not fired for the transmitted CAN message")
	}

	if err := srv.Terminate(next, cosim.TerminateReasonFinished); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	select {
	case err := <-clientDone:
		if err != nil {
			t.Fatalf("RunCallbackBasedCoSimulation returned: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("client loop did not observe Terminate")
	}
}

// startLocalServer loads cfg into a fresh Server and serves it over the
// local shared-memory transport, returning once Serve signals ready.
func startLocalServer(t *testing.T, ctx context.Context, cfg ServerConfig, callbacks Callbacks) *Server {
	t.Helper()
	cfg.ConnectionKind = cosim.ConnectionKindLocal
	srv := NewServer()
	if err := srv.Load(cfg, callbacks); err != nil {
		t.Fatalf("Load: %v", err)
	}
	go func() {
		if err := srv.Serve(ctx); err != nil {
			select {
			case <-ctx.Done():
			default:
				t.Errorf("Serve: %v", err)
			}
		}
	}()
	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not become ready")
	}
	return srv
}

func TestLocalStepRoundTripExchangesSignalsAndCanMessages(t *testing.T) {
	skipIfNoSHM(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := testConfig()
	cfg.ServerName = "test-server-local." + t.Name()
	srv := startLocalServer(t, ctx, cfg, Callbacks{})
	defer func() { _ = srv.Shutdown(context.Background()) }()

	client := NewClient()
	connectCfg := ConnectConfig{ServerName: cfg.ServerName, ClientName: "tester", ConnectionKind: cosim.ConnectionKindLocal}
	if err := client.Connect(ctx, connectCfg); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = client.Disconnect() }()

	var gotChanged bool
	var gotCan bool
	clientDone := make(chan error, 1)
	go func() {
		clientDone <- client.RunCallbackBasedCoSimulation(ctx, Callbacks{
			IncomingSignalChanged: func(_ cosim.SimulationTime, signal cosim.IoSignal, value []byte) {
				if signal.Name == "rpm" {
					gotChanged = true
				}
			},
			CanMessageReceived: func(_ cosim.SimulationTime, controller cosim.CanController, message cosim.CanMessage) {
				if controller.Id == 1 && message.Id == 7 {
					gotCan = true
				}
			},
			SimulationBeginStep: func(_ cosim.SimulationTime) {
				_ = client.Write(1, []byte{1, 0, 0, 0})
				var m cosim.CanMessage
				m.ControllerId = 1
				m.Id = 42
				m.Length = 1
				m.Data[0] = 0xAB
				client.TransmitCan(m)
			},
		})
	}()

	if err := srv.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := srv.Write(2, []byte{9, 0, 0, 0}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var m cosim.CanMessage
	m.ControllerId = 1
	m.Id = 7
	m.Length = 1
	m.Data[0] = 0xCD
	srv.TransmitCan(m)

	next, err := srv.Step(0)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if next != cosim.SimulationTime(1_000_000) {
		t.Fatalf("next simulation time = %v, want 1ms", next)
	}

	value, err := srv.Read(1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(value) != 4 || value[0] != 1 {
		t.Fatalf("Read(throttle) = %v, want [1 0 0 0]", value)
	}

	if !gotChanged {
		t.Fatalf("IncomingSignalChanged was not fired for the changed signal")
	}
	if !gotCan {
		t.Fatalf("CanMessageReceived was not fired for the transmitted CAN message")
	}

	if err := srv.Terminate(next, cosim.TerminateReasonFinished); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	select {
	case err := <-clientDone:
		if err != nil {
			t.Fatalf("RunCallbackBasedCoSimulation returned: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("client loop did not observe Terminate")
	}
}

func TestStateMachineTransitions(t *testing.T) {
	m := newStateMachine(cosim.SimulationStateUnloaded)
	if err := m.transition(cosim.SimulationStateRunning); err == nil {
		t.Fatalf("transition Unloaded -> Running should be rejected")
	}
	if err := m.transition(cosim.SimulationStateStopped); err != nil {
		t.Fatalf("transition Unloaded -> Stopped: %v", err)
	}
	if err := m.transition(cosim.SimulationStateRunning); err != nil {
		t.Fatalf("transition Stopped -> Running: %v", err)
	}
	if err := m.transition(cosim.SimulationStateTerminated); err != nil {
		t.Fatalf("transition Running -> Terminated: %v", err)
	}
}

func TestLoadRejectsDuplicateSignalIds(t *testing.T) {
	cfg := testConfig()
	cfg.IncomingSignals = append(cfg.IncomingSignals, cfg.IncomingSignals[0])
	srv := NewServer()
	if err := srv.Load(cfg, Callbacks{}); err == nil {
		t.Fatalf("Load should reject a duplicate incoming signal id")
	}
}

func TestServerRejectsConcurrentClient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, addr := startServer(t, ctx, testConfig(), Callbacks{})
	defer func() { _ = srv.Shutdown(context.Background()) }()

	first := NewClient()
	if err := first.Connect(ctx, ConnectConfig{ServerName: "test-server", ClientName: "first", RemoteAddr: addr}); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	defer func() { _ = first.Disconnect() }()

	second := NewClient()
	err := second.Connect(ctx, ConnectConfig{ServerName: "test-server", ClientName: "second", RemoteAddr: addr})
	if err == nil {
		_ = second.Disconnect()
		t.Fatalf("second Connect should have been rejected while the first is active")
	}
}
