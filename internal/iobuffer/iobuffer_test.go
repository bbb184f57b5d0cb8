// Copyright dSPACE GmbH. All rights reserved.

package iobuffer

import (
	"errors"
	"net"
	"testing"

	cosim "github.com/dspace-group/veos-cosim-go"
	"github.com/dspace-group/veos-cosim-go/internal/channel"
)

func sampleSignals() []cosim.IoSignal {
	return []cosim.IoSignal{
		{Id: 1, MaxLength: 1, DataType: cosim.DataTypeFloat64, SizeKind: cosim.SizeKindFixed, Name: "fixed1"},
		{Id: 2, MaxLength: 4, DataType: cosim.DataTypeUint8, SizeKind: cosim.SizeKindVariable, Name: "var1"},
	}
}

func TestNewRemoteRejectsDuplicateIds(t *testing.T) {
	signals := []cosim.IoSignal{
		{Id: 1, MaxLength: 1, DataType: cosim.DataTypeUint8, SizeKind: cosim.SizeKindFixed, Name: "a"},
		{Id: 1, MaxLength: 1, DataType: cosim.DataTypeUint8, SizeKind: cosim.SizeKindFixed, Name: "b"},
	}
	if _, err := NewRemote(signals); !errors.Is(err, cosim.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestNewRemoteRejectsZeroLength(t *testing.T) {
	signals := []cosim.IoSignal{
		{Id: 1, MaxLength: 0, DataType: cosim.DataTypeUint8, SizeKind: cosim.SizeKindFixed, Name: "a"},
	}
	if _, err := NewRemote(signals); !errors.Is(err, cosim.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRemoteWriteReadRoundTrip(t *testing.T) {
	r, err := NewRemote(sampleSignals())
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	r.BeginStep()
	if err := r.Write(1, []byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatalf("Write fixed: %v", err)
	}
	if err := r.Write(2, []byte{9, 8, 7}); err != nil {
		t.Fatalf("Write variable: %v", err)
	}
	got, err := r.Read(1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 8 || got[0] != 1 {
		t.Fatalf("got = %v", got)
	}
}

func TestRemoteFixedLengthMismatchRejected(t *testing.T) {
	r, err := NewRemote(sampleSignals())
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	if err := r.Write(1, []byte{1, 2, 3}); !errors.Is(err, cosim.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRemoteVariableLengthOverflowRejected(t *testing.T) {
	r, err := NewRemote(sampleSignals())
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	if err := r.Write(2, []byte{1, 2, 3, 4, 5}); !errors.Is(err, cosim.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRemoteUnchangedWriteNotReenqueued(t *testing.T) {
	r, err := NewRemote(sampleSignals())
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	r.BeginStep()
	if err := r.Write(1, []byte{0, 0, 0, 0, 0, 0, 0, 0}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := r.Write(1, []byte{0, 0, 0, 0, 0, 0, 0, 0}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := r.Write(1, []byte{1, 0, 0, 0, 0, 0, 0, 0}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	count := countSerializedEntries(t, r)
	if count != 1 {
		t.Fatalf("serialized entry count = %d, want 1", count)
	}
}

func countSerializedEntries(t *testing.T, r *Remote) int {
	t.Helper()
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	wc := channel.NewSocketChannel(a)
	rc := channel.NewSocketChannel(b)

	done := make(chan error, 1)
	go func() {
		err := r.Serialize(wc.Writer)
		if err == nil {
			err = wc.Writer.EndWrite()
		}
		done <- err
	}()

	if err := rc.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	count, err := rc.Reader.ReadUint32()
	if err != nil {
		t.Fatalf("ReadUint32: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	return int(count)
}

func TestRemoteSerializeDeserializeRoundTrip(t *testing.T) {
	signals := sampleSignals()
	tx, err := NewRemote(signals)
	if err != nil {
		t.Fatalf("NewRemote tx: %v", err)
	}
	rx, err := NewRemote(signals)
	if err != nil {
		t.Fatalf("NewRemote rx: %v", err)
	}

	tx.BeginStep()
	if err := tx.Write(1, []byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := tx.Write(2, []byte{42, 43}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	wc := channel.NewSocketChannel(a)
	rc := channel.NewSocketChannel(b)

	done := make(chan error, 1)
	go func() {
		err := tx.Serialize(wc.Writer)
		if err == nil {
			err = wc.Writer.EndWrite()
		}
		done <- err
	}()

	if err := rc.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if err := rx.Deserialize(rc.Reader, 0); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if err := rc.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	got, err := rx.Read(2)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 || got[0] != 42 || got[1] != 43 {
		t.Fatalf("got = %v", got)
	}
}

func TestLocalWriteReadRoundTrip(t *testing.T) {
	signals := sampleSignals()
	mem := make([]byte, RegionSize(signals))
	l, err := NewLocal(signals, mem)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	l.BeginStep()
	if err := l.Write(2, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := l.Read(2)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 3 || got[2] != 3 {
		t.Fatalf("got = %v", got)
	}
}

func TestLocalSerializeDeserializeFlipsActiveSlot(t *testing.T) {
	signals := sampleSignals()
	mem := make([]byte, RegionSize(signals))
	writer, err := NewLocal(signals, mem)
	if err != nil {
		t.Fatalf("NewLocal writer: %v", err)
	}
	reader, err := NewLocal(signals, mem)
	if err != nil {
		t.Fatalf("NewLocal reader: %v", err)
	}

	writer.BeginStep()
	if err := writer.Write(1, []byte{9, 9, 9, 9, 9, 9, 9, 9}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	wc := channel.NewSocketChannel(a)
	rc := channel.NewSocketChannel(b)

	done := make(chan error, 1)
	go func() {
		err := writer.Serialize(wc.Writer)
		if err == nil {
			err = wc.Writer.EndWrite()
		}
		done <- err
	}()

	if err := rc.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if err := reader.Deserialize(rc.Reader, 0); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if err := rc.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	got, err := reader.Read(1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 8 || got[0] != 9 {
		t.Fatalf("got = %v", got)
	}
}

func TestLockedDelegatesUnderMutex(t *testing.T) {
	signals := sampleSignals()
	r, err := NewRemote(signals)
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	l := NewLocked(r)
	l.BeginStep()
	if err := l.Write(1, []byte{1, 1, 1, 1, 1, 1, 1, 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := l.Read(1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 8 {
		t.Fatalf("got = %v", got)
	}
}
