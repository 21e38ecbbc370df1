package tp_layer

import (
	"errors"
	"fmt"
)

var (
	// ErrBackpressure is returned by a transport whose queue is full. It
	// is not a failure; the engine retries on the next poll.
	ErrBackpressure = errors.New("tp_layer: transport backpressure")

	// ErrBusy means a transfer in that direction is already staged or
	// running.
	ErrBusy = errors.New("tp_layer: transfer already in progress")

	// ErrPeerOverflow means the peer answered a first frame with
	// FC(Overflow).
	ErrPeerOverflow = errors.New("tp_layer: peer reported buffer overflow")

	// ErrTooManyWaits means the peer sent more FC(Wait) frames than the
	// configured maximum.
	ErrTooManyWaits = errors.New("tp_layer: too many flow control waits")

	// ErrPaddingMismatch means a received frame failed the configured
	// padding length or content check.
	ErrPaddingMismatch = errors.New("tp_layer: frame padding mismatch")

	// ErrLengthTooLarge means the SDU is empty or exceeds the link-layer
	// or configured maximum.
	ErrLengthTooLarge = errors.New("tp_layer: message length out of range")

	// ErrCancelled means the caller aborted the transfer.
	ErrCancelled = errors.New("tp_layer: transfer cancelled")
)

// Timer names the ISO 15765-2 timing parameter that expired.
type Timer int

const (
	TimerN_As Timer = iota
	TimerN_Ar
	TimerN_Bs
	TimerN_Br
	TimerN_Cs
	TimerN_Cr
)

func (t Timer) String() string {
	switch t {
	case TimerN_As:
		return "N_As"
	case TimerN_Ar:
		return "N_Ar"
	case TimerN_Bs:
		return "N_Bs"
	case TimerN_Br:
		return "N_Br"
	case TimerN_Cs:
		return "N_Cs"
	case TimerN_Cr:
		return "N_Cr"
	}
	return "unknown"
}

// TimeoutError reports the expiry of one of the protocol timers.
type TimeoutError struct {
	Timer Timer
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tp_layer: timer %s expired", e.Timer)
}

// ProtocolErrorKind classifies peer behaviour that violates the protocol.
type ProtocolErrorKind int

const (
	UnexpectedPci ProtocolErrorKind = iota
	SequenceMismatch
	CfBeforeFf
	LengthInconsistent
	RxOverflow
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case UnexpectedPci:
		return "unexpected pci"
	case SequenceMismatch:
		return "sequence mismatch"
	case CfBeforeFf:
		return "consecutive frame before first frame"
	case LengthInconsistent:
		return "inconsistent length"
	case RxOverflow:
		return "receive overflow"
	}
	return "unknown"
}

// ProtocolError reports a malformed or out-of-order frame from the peer.
type ProtocolError struct {
	Kind   ProtocolErrorKind
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("tp_layer: protocol error: %s", e.Kind)
	}
	return fmt.Sprintf("tp_layer: protocol error: %s: %s", e.Kind, e.Detail)
}

func protoErr(kind ProtocolErrorKind, format string, args ...interface{}) error {
	return &ProtocolError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
