// Copyright dSPACE GmbH. All rights reserved.

package protocol

import (
	"net"
	"testing"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
)

func newPipePair(t *testing.T) (*channel.SocketChannel, *channel.SocketChannel) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	return channel.NewSocketChannel(a), channel.NewSocketChannel(b)
}

func sampleConnectOkInfo() ConnectOkInfo {
	return ConnectOkInfo{
		ClientMode:      cosim.CoSimTypeClient,
		StepSize:        cosim.SimulationTime(1_000_000),
		SimulationState: cosim.SimulationStateRunning,
		IncomingSignals: []cosim.IoSignal{
			{Id: 1, MaxLength: 8, DataType: cosim.DataTypeFloat64, SizeKind: cosim.SizeKindFixed, Name: "in1"},
		},
		OutgoingSignals: []cosim.IoSignal{
			{Id: 2, MaxLength: 4, DataType: cosim.DataTypeUint8, SizeKind: cosim.SizeKindVariable, Name: "out1"},
		},
		CanControllers: []cosim.CanController{
			{Id: 10, QueueSize: 100, BitsPerSecond: 500000, Name: "can0", ChannelName: "ch0", ClusterName: "cl0"},
		},
		EthControllers: []cosim.EthController{
			{Id: 11, QueueSize: 100, BitsPerSecond: 1_000_000_000, Name: "eth0", ChannelName: "ch1", ClusterName: "cl1"},
		},
		LinControllers: []cosim.LinController{
			{Id: 12, QueueSize: 50, BitsPerSecond: 19200, Type: cosim.LinControllerTypeCommander, Name: "lin0", ChannelName: "ch2", ClusterName: "cl2"},
		},
		FlexRayControllers: []cosim.FrController{
			{Id: 13, QueueSize: 30, BitsPerSecond: 10_000_000, Name: "fr0", ChannelName: "ch3", ClusterName: "cl3"},
		},
	}
}

func TestConnectRoundTrip(t *testing.T) {
	left, right := newPipePair(t)
	want := ConnectFrame{
		ProtocolVersion: cosim.ProtocolVersion2,
		ClientMode:      cosim.CoSimTypeClient,
		ServerName:      "server-under-test",
		ClientName:      "client-under-test",
	}
	go func() {
		if err := SendConnect(left.Writer, want); err != nil {
			t.Errorf("SendConnect: %v", err)
		}
	}()

	if err := right.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	kind, err := ReadFrameKind(right.Reader)
	if err != nil {
		t.Fatalf("ReadFrameKind: %v", err)
	}
	if kind != FrameConnect {
		t.Fatalf("kind = %s, want Connect", kind)
	}
	got, err := ReadConnect(right.Reader)
	if err != nil {
		t.Fatalf("ReadConnect: %v", err)
	}
	if err := right.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestConnectOkRoundTripV2IncludesFlexRay(t *testing.T) {
	left, right := newPipePair(t)
	codec, err := NewCodec(cosim.ProtocolVersion2)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	want := sampleConnectOkInfo()

	go func() {
		if err := SendConnectOk(left.Writer, codec, want); err != nil {
			t.Errorf("SendConnectOk: %v", err)
		}
	}()

	if err := right.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if _, err := ReadFrameKind(right.Reader); err != nil {
		t.Fatalf("ReadFrameKind: %v", err)
	}
	got, err := ReadConnectOk(right.Reader, codec)
	if err != nil {
		t.Fatalf("ReadConnectOk: %v", err)
	}
	if err := right.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	if len(got.FlexRayControllers) != 1 || got.FlexRayControllers[0].Name != "fr0" {
		t.Fatalf("FlexRayControllers = %+v, want one fr0 entry", got.FlexRayControllers)
	}
	if got.CanControllers[0].Name != "can0" || got.EthControllers[0].Name != "eth0" || got.LinControllers[0].Name != "lin0" {
		t.Fatalf("got = %+v", got)
	}
	if got.IncomingSignals[0].Name != "in1" || got.OutgoingSignals[0].Name != "out1" {
		t.Fatalf("signals = %+v", got)
	}
}

func TestConnectOkRoundTripV1OmitsFlexRay(t *testing.T) {
	left, right := newPipePair(t)
	codec, err := NewCodec(cosim.ProtocolVersion1)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	want := sampleConnectOkInfo()

	go func() {
		if err := SendConnectOk(left.Writer, codec, want); err != nil {
			t.Errorf("SendConnectOk: %v", err)
		}
	}()

	if err := right.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if _, err := ReadFrameKind(right.Reader); err != nil {
		t.Fatalf("ReadFrameKind: %v", err)
	}
	got, err := ReadConnectOk(right.Reader, codec)
	if err != nil {
		t.Fatalf("ReadConnectOk: %v", err)
	}
	if err := right.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	if got.FlexRayControllers != nil {
		t.Fatalf("FlexRayControllers = %+v, want nil at ProtocolVersion1", got.FlexRayControllers)
	}
}

func TestPingRoundTripV2HasRoundTripTime(t *testing.T) {
	left, right := newPipePair(t)
	codec, err := NewCodec(cosim.ProtocolVersion2)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	want := PingOkFrame{Command: cosim.CommandPing, RoundTripTime: cosim.SimulationTime(42_000)}

	go func() {
		if err := SendPingOk(left.Writer, codec, want); err != nil {
			t.Errorf("SendPingOk: %v", err)
		}
	}()

	if err := right.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if _, err := ReadFrameKind(right.Reader); err != nil {
		t.Fatalf("ReadFrameKind: %v", err)
	}
	got, err := ReadPingOk(right.Reader, codec)
	if err != nil {
		t.Fatalf("ReadPingOk: %v", err)
	}
	if err := right.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestStepRoundTripInvokesPayloadClosuresInOrder(t *testing.T) {
	left, right := newPipePair(t)
	var order []string
	serializeIo := func(w *Writer) error {
		order = append(order, "io")
		return w.WriteUint32(0xAAAA)
	}
	serializeBus := func(w *Writer) error {
		order = append(order, "bus")
		return w.WriteUint32(0xBBBB)
	}

	go func() {
		if err := SendStep(left.Writer, cosim.SimulationTime(7), serializeIo, serializeBus); err != nil {
			t.Errorf("SendStep: %v", err)
		}
	}()

	if err := right.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if _, err := ReadFrameKind(right.Reader); err != nil {
		t.Fatalf("ReadFrameKind: %v", err)
	}
	var ioVal, busVal uint32
	deserializeIo := func(r *Reader, ts cosim.SimulationTime) error {
		v, err := r.ReadUint32()
		ioVal = v
		return err
	}
	deserializeBus := func(r *Reader, ts cosim.SimulationTime) error {
		v, err := r.ReadUint32()
		busVal = v
		return err
	}
	ts, err := ReadStep(right.Reader, deserializeIo, deserializeBus)
	if err != nil {
		t.Fatalf("ReadStep: %v", err)
	}
	if err := right.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	if ts != 7 {
		t.Fatalf("ts = %d, want 7", ts)
	}
	if ioVal != 0xAAAA || busVal != 0xBBBB {
		t.Fatalf("ioVal=%#x busVal=%#x", ioVal, busVal)
	}
	if order[0] != "io" || order[1] != "bus" {
		t.Fatalf("order = %v, want [io bus]", order)
	}
}

func TestSetPortRoundTrip(t *testing.T) {
	left, right := newPipePair(t)
	want := SetPortFrame{ServerName: "sim1", Port: 12345}

	go func() {
		if err := SendSetPort(left.Writer, want); err != nil {
			t.Errorf("SendSetPort: %v", err)
		}
	}()

	if err := right.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if _, err := ReadFrameKind(right.Reader); err != nil {
		t.Fatalf("ReadFrameKind: %v", err)
	}
	got, err := ReadSetPort(right.Reader)
	if err != nil {
		t.Fatalf("ReadSetPort: %v", err)
	}
	if err := right.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestTerminateRoundTrip(t *testing.T) {
	left, right := newPipePair(t)
	want := TerminateFrame{SimulationTime: cosim.SimulationTime(99), Reason: cosim.TerminateReasonError}

	go func() {
		if err := SendTerminate(left.Writer, want); err != nil {
			t.Errorf("SendTerminate: %v", err)
		}
	}()

	if err := right.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if _, err := ReadFrameKind(right.Reader); err != nil {
		t.Fatalf("ReadFrameKind: %v", err)
	}
	got, err := ReadTerminate(right.Reader)
	if err != nil {
		t.Fatalf("ReadTerminate: %v", err)
	}
	if err := right.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
