// Copyright dSPACE GmbH. All rights reserved.

package cosim

import "errors"

// Result mirrors the closed error taxonomy of the wire protocol and the
// session coordinator. Most Go APIs in this module return a plain
// error and use the sentinels below with errors.Is; Result carries the
// same taxonomy as a value rather than as a Go error, and ResultFromError
// converts one into the other. No wire frame in this module carries a
// Result.
type Result uint32

const (
	ResultOk Result = iota
	ResultError
	ResultEmpty
	ResultFull
	ResultInvalidArgument
	ResultDisconnected
)

func (r Result) String() string {
	switch r {
	case ResultOk:
		return "Ok"
	case ResultError:
		return "Error"
	case ResultEmpty:
		return "Empty"
	case ResultFull:
		return "Full"
	case ResultInvalidArgument:
		return "InvalidArgument"
	case ResultDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Sentinel errors. Every fallible operation in this module returns one of
// these (wrapped with %w and a log-worthy message) or nil.
var (
	// ErrNotConnected means the peer is gone and the channel is dead. It
	// collapses the session: callers should treat it as terminal.
	ErrNotConnected = errors.New("cosim: not connected")

	// ErrTimeout means a bounded wait elapsed without the awaited condition.
	ErrTimeout = errors.New("cosim: timeout")

	// ErrEmpty means nothing was available to receive. Not a failure.
	ErrEmpty = errors.New("cosim: empty")

	// ErrFull means a bounded queue is saturated. The caller may retry later.
	ErrFull = errors.New("cosim: full")

	// ErrInvalidArgument means the caller misused an API (bad length, bad
	// flag combination, duplicate signal id, zero-length descriptor, ...).
	ErrInvalidArgument = errors.New("cosim: invalid argument")

	// ErrProtocol means a recoverable protocol or framing violation was
	// detected (oversized frame, short read_block assertion, malformed
	// header). Surfaced to the caller, who decides whether to disconnect.
	ErrProtocol = errors.New("cosim: protocol error")
)

// ResultFromError classifies err against the closed taxonomy for wire
// encoding or logging. Unrecognized errors map to ResultError.
func ResultFromError(err error) Result {
	switch {
	case err == nil:
		return ResultOk
	case errors.Is(err, ErrNotConnected):
		return ResultDisconnected
	case errors.Is(err, ErrTimeout):
		return ResultError
	case errors.Is(err, ErrEmpty):
		return ResultEmpty
	case errors.Is(err, ErrFull):
		return ResultFull
	case errors.Is(err, ErrInvalidArgument):
		return ResultInvalidArgument
	default:
		return ResultError
	}
}
