package channel

import (
	"os"
	"testing"
	"time"
)

func skipIfNoSHM(t *testing.T) {
	t.Helper()
	if os.Getenv("SKIP_SHM_TESTS") != "" {
		t.Skip("shared memory unavailable in this environment")
	}
}

func uniqueBase(t *testing.T) string {
	t.Helper()
	return "test.pipe." + t.Name() + "." + time.Now().Format("150405.000000000")
}

func TestPipe_WriteThenReadRoundTrip(t *testing.T) {
	skipIfNoSHM(t)
	name := uniqueBase(t) + ".dir"
	producer, err := OpenPipe(name, true)
	if err != nil {
		t.Fatalf("OpenPipe producer: %v", err)
	}
	defer producer.Close()
	consumer, err := OpenPipe(name, false)
	if err != nil {
		t.Fatalf("OpenPipe consumer: %v", err)
	}
	defer consumer.Close()

	payload := []byte("hello co-sim")
	done := make(chan error, 1)
	go func() {
		_, err := producer.Write(payload)
		done <- err
	}()

	got := make([]byte, len(payload))
	read := 0
	for read < len(got) {
		n, err := consumer.Read(got[read:])
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		read += n
	}
	if err := <-done; err != nil {
		t.Fatalf("Write: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestPipe_WriteBlocksUntilSpaceFreed(t *testing.T) {
	skipIfNoSHM(t)
	name := uniqueBase(t) + ".dir"
	producer, err := OpenPipe(name, true)
	if err != nil {
		t.Fatalf("OpenPipe producer: %v", err)
	}
	defer producer.Close()
	consumer, err := OpenPipe(name, false)
	if err != nil {
		t.Fatalf("OpenPipe consumer: %v", err)
	}
	defer consumer.Close()

	big := make([]byte, PipeBufferSize)
	for i := range big {
		big[i] = byte(i)
	}
	writeDone := make(chan error, 1)
	go func() {
		_, err := producer.Write(big)
		writeDone <- err
	}()

	dst := make([]byte, len(big))
	read := 0
	for read < len(dst) {
		n, err := consumer.Read(dst[read:])
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		read += n
	}
	if err := <-writeDone; err != nil {
		t.Fatalf("Write: %v", err)
	}
	for i := range dst {
		if dst[i] != big[i] {
			t.Fatalf("byte %d = %d, want %d", i, dst[i], big[i])
		}
	}
}

func TestLocalChannel_ListenerAcceptConnect(t *testing.T) {
	skipIfNoSHM(t)
	base := uniqueBase(t)
	listener, err := NewListener(base)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer listener.Close()

	serverSide := make(chan *LocalChannel, 1)
	serverErr := make(chan error, 1)
	go func() {
		s, err := listener.Accept()
		serverSide <- s
		serverErr <- err
	}()

	clientSide, err := Connect(base)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer clientSide.Close()

	server := <-serverSide
	if err := <-serverErr; err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		if err := clientSide.Writer.WriteUint32(7); err != nil {
			done <- err
			return
		}
		done <- clientSide.Writer.EndWrite()
	}()

	if err := server.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	v, err := server.Reader.ReadUint32()
	if err != nil {
		t.Fatalf("ReadUint32: %v", err)
	}
	if v != 7 {
		t.Fatalf("v = %d, want 7", v)
	}
	if err := server.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("client write: %v", err)
	}
}
