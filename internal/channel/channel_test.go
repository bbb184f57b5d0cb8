package channel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	cosim "github.com/dspace-group/veos-cosim-go"
)

func newTestChannelPair(t *testing.T) (*SocketChannel, *SocketChannel) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	return NewSocketChannel(a), NewSocketChannel(b)
}

func TestWriter_LenPrefixMatchesBytesWritten(t *testing.T) {
	left, right := newTestChannelPair(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := left.Writer.WriteUint32(0xAABBCCDD); err != nil {
			t.Errorf("WriteUint32: %v", err)
			return
		}
		if err := left.Writer.EndWrite(); err != nil {
			t.Errorf("EndWrite: %v", err)
		}
	}()

	if err := right.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	v, err := right.Reader.ReadUint32()
	if err != nil {
		t.Fatalf("ReadUint32: %v", err)
	}
	if v != 0xAABBCCDD {
		t.Fatalf("value = %#x, want 0xAABBCCDD", v)
	}
	if err := right.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	<-done
}

func TestReader_TwoFramesInOnePacket(t *testing.T) {
	// Build two complete frames manually and feed them through a fake
	// backend in a single Receive call, proving the reader retains
	// over-read bytes across a frame boundary.
	var frame1, frame2 bytes.Buffer
	writeFrame := func(buf *bytes.Buffer, payload uint32) {
		body := make([]byte, 4)
		binary.LittleEndian.PutUint32(body, payload)
		total := uint32(headerSize + len(body))
		header := make([]byte, headerSize)
		binary.LittleEndian.PutUint32(header, total)
		buf.Write(header)
		buf.Write(body)
	}
	writeFrame(&frame1, 111)
	writeFrame(&frame2, 222)

	packet := append(append([]byte{}, frame1.Bytes()...), frame2.Bytes()...)
	backend := &singleShotReceiver{data: packet}
	r := NewReader(backend)

	if err := r.BeginRead(); err != nil {
		t.Fatalf("BeginRead 1: %v", err)
	}
	v1, err := r.ReadUint32()
	if err != nil {
		t.Fatalf("ReadUint32 1: %v", err)
	}
	if err := r.EndRead(); err != nil {
		t.Fatalf("EndRead 1: %v", err)
	}
	if v1 != 111 {
		t.Fatalf("v1 = %d, want 111", v1)
	}

	if err := r.BeginRead(); err != nil {
		t.Fatalf("BeginRead 2: %v", err)
	}
	v2, err := r.ReadUint32()
	if err != nil {
		t.Fatalf("ReadUint32 2: %v", err)
	}
	if err := r.EndRead(); err != nil {
		t.Fatalf("EndRead 2: %v", err)
	}
	if v2 != 222 {
		t.Fatalf("v2 = %d, want 222", v2)
	}
	if backend.calls != 1 {
		t.Fatalf("backend.Receive called %d times, want 1", backend.calls)
	}
}

// singleShotReceiver hands its entire buffer back on the first Receive
// call, then reports no further data (the reader must not need to call
// Receive again once it already has both frames buffered).
type singleShotReceiver struct {
	data  []byte
	calls int
	sent  bool
}

func (s *singleShotReceiver) Receive(dst []byte) (int, error) {
	s.calls++
	if s.sent {
		return 0, nil
	}
	s.sent = true
	n := copy(dst, s.data)
	return n, nil
}

func TestWriter_FrameOfExactly65536IsAccepted(t *testing.T) {
	left, right := newTestChannelPair(t)
	payload := make([]byte, MaxFrameSize-headerSize)
	go func() {
		if err := left.Writer.WriteBytes(payload); err != nil {
			t.Errorf("WriteBytes: %v", err)
			return
		}
		if err := left.Writer.EndWrite(); err != nil {
			t.Errorf("EndWrite: %v", err)
		}
	}()
	if err := right.Reader.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if _, err := right.Reader.ReadBlock(len(payload)); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if err := right.Reader.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
}

func TestWriter_FrameLargerThanMaxIsRejected(t *testing.T) {
	w := NewWriter(discardSender{})
	_, err := w.Reserve(MaxFrameSize) // pos already at headerSize, so this overflows
	if err == nil {
		t.Fatalf("expected error reserving past MaxFrameSize")
	}
}

type discardSender struct{}

func (discardSender) Send(frame []byte) error { return nil }

func TestReader_FrameLengthOver65536IsRejected(t *testing.T) {
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header, MaxFrameSize+1)
	backend := &singleShotReceiver{data: header}
	r := NewReader(backend)
	if err := r.BeginRead(); err == nil {
		t.Fatalf("expected error for frame length > MaxFrameSize")
	}
}

func TestEndRead_ShortReadIsRejected(t *testing.T) {
	var buf bytes.Buffer
	body := make([]byte, 8)
	total := uint32(headerSize + len(body))
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header, total)
	buf.Write(header)
	buf.Write(body)

	backend := &singleShotReceiver{data: buf.Bytes()}
	r := NewReader(backend)
	if err := r.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if _, err := r.ReadUint32(); err != nil { // consume only 4 of 8 body bytes
		t.Fatalf("ReadUint32: %v", err)
	}
	if err := r.EndRead(); err == nil {
		t.Fatalf("expected ErrShortRead for partial consumption")
	}
}

func TestSocketChannel_SendAfterCloseIsNotConnected(t *testing.T) {
	a, b := net.Pipe()
	_ = b.Close()
	c := NewSocketChannel(a)
	_ = a.SetWriteDeadline(time.Now().Add(100 * time.Millisecond))
	if err := c.Writer.WriteUint8(1); err != nil {
		t.Fatalf("WriteUint8: %v", err)
	}
	if err := c.Writer.EndWrite(); !errors.Is(err, cosim.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected writing to closed peer", err)
	}
}
