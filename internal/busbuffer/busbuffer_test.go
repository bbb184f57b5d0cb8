// Copyright dSPACE GmbH. All rights reserved.

package busbuffer

import (
	"errors"
	"net"
	"testing"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
)

func newPipe(t *testing.T) (*channel.SocketChannel, *channel.SocketChannel) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	return channel.NewSocketChannel(a), channel.NewSocketChannel(b)
}

func TestRemoteTransmitQueueOverflowReturnsFullWithSingleWarning(t *testing.T) {
	controllers := []ControllerInfo{{Id: 3, Name: "lin3", QueueSize: 2}}
	var warnings []string
	tx := NewRemoteTransmit(LinDescriptor, controllers, func(msg string) { warnings = append(warnings, msg) })
	tx.BeginStep()

	msg := cosim.LinMessage{ControllerId: 3, Length: 8}
	for i := 0; i < 2; i++ {
		if err := tx.Transmit(msg); err != nil {
			t.Fatalf("Transmit %d: %v", i, err)
		}
	}
	if err := tx.Transmit(msg); !errors.Is(err, cosim.ErrFull) {
		t.Fatalf("Transmit 3rd: err = %v, want ErrFull", err)
	}
	if err := tx.Transmit(msg); !errors.Is(err, cosim.ErrFull) {
		t.Fatalf("Transmit 4th: err = %v, want ErrFull", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", warnings)
	}
}

func TestRemoteTransmitSerializeDrainsAndResets(t *testing.T) {
	controllers := []ControllerInfo{{Id: 1, Name: "can0", QueueSize: 4}}
	tx := NewRemoteTransmit(CanDescriptor, controllers, nil)
	tx.BeginStep()
	for i := 0; i < 2; i++ {
		if err := tx.Transmit(cosim.CanMessage{ControllerId: 1, Id: cosim.BusMessageId(i), Length: 4}); err != nil {
			t.Fatalf("Transmit: %v", err)
		}
	}

	left, right := newPipe(t)
	done := make(chan error, 1)
	go func() {
		err := tx.Serialize(left.Writer)
		if err == nil {
			err = left.Writer.EndWrite()
		}
		done <- err
	}()

	if err := right.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	rx := NewRemoteReceive(CanDescriptor, controllers, nil)
	var dispatched []cosim.CanMessage
	if err := rx.Deserialize(right.Reader, func(m cosim.CanMessage) { dispatched = append(dispatched, m) }); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if err := right.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if len(dispatched) != 2 {
		t.Fatalf("dispatched = %v, want 2 messages", dispatched)
	}

	// A second Serialize with nothing staged must report zero.
	left2, right2 := newPipe(t)
	done2 := make(chan error, 1)
	go func() {
		err := tx.Serialize(left2.Writer)
		if err == nil {
			err = left2.Writer.EndWrite()
		}
		done2 <- err
	}()
	if err := right2.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	count, err := right2.Reader.ReadUint32()
	if err != nil {
		t.Fatalf("ReadUint32: %v", err)
	}
	if err := <-done2; err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0 after drain", count)
	}
}

func TestCanCheckFlagsRejectsInconsistentBitRateSwitch(t *testing.T) {
	controllers := []ControllerInfo{{Id: 1, Name: "can0", QueueSize: 4}}
	tx := NewRemoteTransmit(CanDescriptor, controllers, nil)
	tx.BeginStep()
	msg := cosim.CanMessage{ControllerId: 1, Length: 4, Flags: cosim.CanMessageFlagBitRateSwitch}
	if err := tx.Transmit(msg); !errors.Is(err, cosim.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestTransmitRejectsOversizedMessage(t *testing.T) {
	controllers := []ControllerInfo{{Id: 1, Name: "can0", QueueSize: 4}}
	tx := NewRemoteTransmit(CanDescriptor, controllers, nil)
	tx.BeginStep()
	msg := cosim.CanMessage{ControllerId: 1, Length: cosim.CanMessageMaxLength + 1}
	if err := tx.Transmit(msg); !errors.Is(err, cosim.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRemoteReceivePollingRoundTrip(t *testing.T) {
	controllers := []ControllerInfo{{Id: 5, Name: "eth0", QueueSize: 4}}
	rx := NewRemoteReceive(EthDescriptor, controllers, nil)
	rx.BeginStep()

	left, right := newPipe(t)
	tx := NewRemoteTransmit(EthDescriptor, controllers, nil)
	tx.BeginStep()
	if err := tx.Transmit(cosim.EthMessage{ControllerId: 5, Length: 10}); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		err := tx.Serialize(left.Writer)
		if err == nil {
			err = left.Writer.EndWrite()
		}
		done <- err
	}()
	if err := right.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if err := rx.Deserialize(right.Reader, nil); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if err := right.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	m, err := rx.Receive(5)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if m.Length != 10 {
		t.Fatalf("m = %+v", m)
	}
	if _, err := rx.Receive(5); !errors.Is(err, cosim.ErrEmpty) {
		t.Fatalf("second Receive: err = %v, want ErrEmpty", err)
	}
}

func TestLocalTransmitReceiveSharedMemoryHandoff(t *testing.T) {
	controllers := []ControllerInfo{{Id: 7, Name: "can7", QueueSize: 4}}
	regions := map[cosim.BusControllerId][]byte{
		7: make([]byte, LocalRegionSize[cosim.CanMessage](4)),
	}
	tx, err := NewLocalTransmit(CanDescriptor, controllers, regions, true, nil)
	if err != nil {
		t.Fatalf("NewLocalTransmit: %v", err)
	}
	rx, err := NewLocalReceive(CanDescriptor, controllers, regions, false)
	if err != nil {
		t.Fatalf("NewLocalReceive: %v", err)
	}

	tx.BeginStep()
	if err := tx.Transmit(cosim.CanMessage{ControllerId: 7, Id: 99, Length: 3, Data: [cosim.CanMessageMaxLength]byte{1, 2, 3}}); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	left, right := newPipe(t)
	done := make(chan error, 1)
	go func() {
		err := tx.Serialize(left.Writer)
		if err == nil {
			err = left.Writer.EndWrite()
		}
		done <- err
	}()
	if err := right.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if err := rx.Deserialize(right.Reader, nil); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if err := right.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	m, err := rx.Receive(7)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if m.Id != 99 || m.Length != 3 || m.Data[2] != 3 {
		t.Fatalf("m = %+v", m)
	}
}
