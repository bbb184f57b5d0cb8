// Copyright dSPACE GmbH. All rights reserved.

// Package channel implements the framed, bidirectional byte-stream contract
// on top of two interchangeable backends: a stream socket
// (socket_channel.go) and a shared-memory ring with named-event signaling
// (local_channel.go). Both expose the same Writer/Reader framing so the
// protocol layer above never knows which backend it is talking to.
package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxFrameSize is the fixed size of the writer's staging buffer and the
// largest total frame length (including the 4-byte header) a conforming
// endpoint accepts.
const MaxFrameSize = 65536

// headerSize is the length of the little-endian frame-length prefix.
const headerSize = 4

// ErrFrameTooLarge is a programmer error: a single frame did not fit in the
// fixed staging buffer.
var ErrFrameTooLarge = errors.New("channel: frame exceeds maximum size")

// ErrFrameTooBig is returned by the reader when a decoded frame length
// exceeds MaxFrameSize.
var ErrFrameTooBig = errors.New("channel: decoded frame length exceeds maximum size")

// ErrShortRead is returned by EndRead when the caller consumed fewer or
// more bytes than the frame declared.
var ErrShortRead = errors.New("channel: frame under- or over-read")

// Sender is the backend contract a Writer flushes completed frames to.
type Sender interface {
	Send(frame []byte) error
}

// Receiver is the backend contract a Reader pulls raw bytes from. A single
// call performs at most one syscall/wake and returns whatever is
// immediately available, mirroring a socket `receive` primitive.
type Receiver interface {
	Receive(dst []byte) (int, error)
}

// Writer accumulates one frame at a time into a fixed staging buffer and
// flushes it to a Sender on EndWrite.
type Writer struct {
	backend Sender
	buf     [MaxFrameSize]byte
	pos     int
}

// NewWriter returns a Writer flushing completed frames to backend.
func NewWriter(backend Sender) *Writer {
	return &Writer{backend: backend, pos: headerSize}
}

// Reserve exposes the next n bytes of the staging buffer for the caller to
// fill directly, advancing the write position past them.
func (w *Writer) Reserve(n int) ([]byte, error) {
	if w.pos+n > len(w.buf) {
		return nil, fmt.Errorf("%w: need %d more bytes, have %d", ErrFrameTooLarge, n, len(w.buf)-w.pos)
	}
	b := w.buf[w.pos : w.pos+n]
	w.pos += n
	return b, nil
}

// WriteBytes copies p into the staging buffer.
func (w *Writer) WriteBytes(p []byte) error {
	b, err := w.Reserve(len(p))
	if err != nil {
		return err
	}
	copy(b, p)
	return nil
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) error {
	b, err := w.Reserve(1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// WriteUint16 appends a host-endian uint16.
func (w *Writer) WriteUint16(v uint16) error {
	b, err := w.Reserve(2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

// WriteUint32 appends a host-endian uint32.
func (w *Writer) WriteUint32(v uint32) error {
	b, err := w.Reserve(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// WriteUint64 appends a host-endian uint64.
func (w *Writer) WriteUint64(v uint64) error {
	b, err := w.Reserve(8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

// WriteInt64 appends a host-endian int64 (used for simulation time).
func (w *Writer) WriteInt64(v int64) error {
	return w.WriteUint64(uint64(v))
}

// WriteString appends a length-prefixed string: size:u32 then size raw
// bytes, size ≤ 65536.
func (w *Writer) WriteString(s string) error {
	if len(s) > MaxFrameSize {
		return fmt.Errorf("%w: string length %d", ErrFrameTooLarge, len(s))
	}
	if err := w.WriteUint32(uint32(len(s))); err != nil {
		return err
	}
	return w.WriteBytes([]byte(s))
}

// EndWrite stamps the 4-byte length header over the accumulated frame and
// flushes it to the backend, resetting the buffer for the next frame.
func (w *Writer) EndWrite() error {
	binary.LittleEndian.PutUint32(w.buf[0:headerSize], uint32(w.pos))
	frame := w.buf[:w.pos]
	w.pos = headerSize
	if err := w.backend.Send(frame); err != nil {
		return err
	}
	return nil
}

// Reader decodes frames out of a byte stream that may deliver more or fewer
// bytes per Receive than a single frame needs; bytes past the end of the
// current frame are retained verbatim as the start of the next.
type Reader struct {
	backend  Receiver
	buf      []byte
	pos      int // consumed offset
	frameEnd int // end offset of current frame in buf; -1 before header decode
	chunk    []byte
}

// receiveChunkSize is the default read size for a single backend Receive
// call.
const receiveChunkSize = 1024

// NewReader returns a Reader pulling bytes from backend.
func NewReader(backend Receiver) *Reader {
	return &Reader{backend: backend, buf: make([]byte, 0, MaxFrameSize), frameEnd: -1, chunk: make([]byte, receiveChunkSize)}
}

// fill ensures at least n unconsumed bytes are buffered, reading from the
// backend as needed.
func (r *Reader) fill(n int) error {
	for len(r.buf)-r.pos < n {
		read, err := r.backend.Receive(r.chunk)
		if err != nil {
			return err
		}
		if read > 0 {
			r.buf = append(r.buf, r.chunk[:read]...)
		}
	}
	return nil
}

// BeginRead blocks until the next frame's 4-byte header is available,
// decodes it, and records the frame's end offset. Must be called once
// before the first ReadBlock of a frame.
func (r *Reader) BeginRead() error {
	if err := r.fill(headerSize); err != nil {
		return err
	}
	length := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+headerSize])
	if length > MaxFrameSize {
		return fmt.Errorf("%w: %d", ErrFrameTooBig, length)
	}
	if int(length) < headerSize {
		return fmt.Errorf("%w: %d", ErrFrameTooBig, length)
	}
	r.frameEnd = r.pos + int(length)
	r.pos += headerSize
	return nil
}

// ReadBlock blocks until n contiguous bytes of the current frame are
// available and returns a slice viewing them, advancing past them. The
// returned slice aliases the reader's internal buffer and is only valid
// until the next ReadBlock/EndRead call.
func (r *Reader) ReadBlock(n int) ([]byte, error) {
	if r.frameEnd < 0 {
		return nil, fmt.Errorf("channel: ReadBlock called before BeginRead")
	}
	if r.pos+n > r.frameEnd {
		return nil, fmt.Errorf("%w: requested %d bytes past frame end", ErrShortRead, n)
	}
	if err := r.fill(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadUint8 decodes a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.ReadBlock(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 decodes a host-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.ReadBlock(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 decodes a host-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.ReadBlock(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 decodes a host-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.ReadBlock(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadInt64 decodes a host-endian int64.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadString decodes a length-prefixed string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	if n > MaxFrameSize {
		return "", fmt.Errorf("%w: string length %d", ErrFrameTooBig, n)
	}
	b, err := r.ReadBlock(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EndRead asserts that exactly the declared frame length was consumed and
// compacts the retained buffer, keeping any bytes belonging to the next
// frame for the following BeginRead.
func (r *Reader) EndRead() error {
	if r.pos != r.frameEnd {
		return fmt.Errorf("%w: consumed %d, frame end %d", ErrShortRead, r.pos, r.frameEnd)
	}
	remaining := r.buf[r.pos:]
	copy(r.buf[:len(remaining)], remaining)
	r.buf = r.buf[:len(remaining)]
	r.pos = 0
	r.frameEnd = -1
	return nil
}
