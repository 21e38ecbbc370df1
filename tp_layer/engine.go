package tp_layer

import (
	"errors"
	"fmt"
	"time"
)

// MTU sentinels distinguishing Classical CAN from CAN FD link layers.
const (
	CANMTU   = 16
	CANFDMTU = 72
)

// FrameTransport is the link-layer channel an Endpoint drives. SendFrame
// must not block; a full queue returns ErrBackpressure and the engine
// retries on a later poll. TryRecvFrame returns the next pending frame, if
// any. Now supplies the engine's clock so hosts and tests control time.
type FrameTransport interface {
	SendFrame(msg CanMessage) error
	TryRecvFrame() (CanMessage, bool)
	Now() time.Time
}

// Endpoint is one ISO 15765-2 connection bound to a CAN identifier pair.
//
// The endpoint never blocks and owns no file descriptors. The host stages
// outgoing messages with Send, collects delivered ones with Recv, and
// drives the state machines by calling Poll whenever frames may have
// arrived or the deadline returned by the previous Poll has passed. Each
// endpoint must be driven from a single goroutine; Transport wraps one in
// a channel event loop for hosts that prefer that model.
type Endpoint struct {
	addr   *Address
	txAddr *Address
	cfg    Config
	fd     bool

	// Frames built but not yet accepted by the transport.
	pendingFrames []CanMessage
	lastTxAt      time.Time

	txState      State
	txPending    []byte
	txBuf        []byte
	txOffset     int
	txSeq        int
	txBlocksLeft int // consecutive frames before the next FC, -1 unlimited
	txSTmin      time.Duration
	txWait       int
	txDeadline   time.Time
	txNextCFAt   time.Time

	rxState    State
	rxBuf      []byte
	rxLen      int
	rxSeq      int
	rxBlocks   int
	rxDeadline time.Time
	rxQueue    [][]byte

	errs []error
}

// NewEndpoint builds an endpoint for the given address and configuration.
func NewEndpoint(addr *Address, cfg Config) (*Endpoint, error) {
	if cfg.MaxSDULength == 0 {
		cfg.MaxSDULength = defaultMaxSDULength
	}
	if cfg.TxDataLength == 0 {
		cfg.TxDataLength = 8
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tp_layer: %w", err)
	}
	return &Endpoint{
		addr:    addr,
		cfg:     cfg,
		fd:      cfg.TxDataLength > 8,
		txState: StateIdle,
		rxState: StateIdle,
	}, nil
}

// SetTxAddress switches the transmit address without affecting receive
// filtering. Nil restores the address given at construction.
func (e *Endpoint) SetTxAddress(addr *Address) { e.txAddr = addr }

// SetFDMode forces FD framing even when TxDataLength is 8.
func (e *Endpoint) SetFDMode(fd bool) { e.fd = fd || e.cfg.TxDataLength > 8 }

func (e *Endpoint) transmitAddress() *Address {
	if e.txAddr != nil {
		return e.txAddr
	}
	return e.addr
}

// Capacity of one frame after the address prefix.
func (e *Endpoint) txAvail() int {
	return e.cfg.TxDataLength - e.transmitAddress().TxPrefixSize()
}

func (e *Endpoint) sfCapacity() int {
	avail := e.txAvail()
	if e.fd && avail-2 > 7 {
		return avail - 2 // escape form
	}
	if avail-1 < 7 {
		return avail - 1
	}
	return 7
}

func (e *Endpoint) ffCapacity(total int) int {
	if total > maxShortLength {
		return e.txAvail() - 6
	}
	return e.txAvail() - 2
}

func (e *Endpoint) cfCapacity() int { return e.txAvail() - 1 }

// Send stages one message for transmission. It fails immediately when a
// transmission is already staged or running, or when the length cannot be
// carried by the configured link layer. The transfer itself happens across
// subsequent Poll calls.
func (e *Endpoint) Send(data []byte) error {
	if e.txState != StateIdle || e.txPending != nil {
		return ErrBusy
	}
	if len(data) == 0 || len(data) > e.cfg.MaxSDULength {
		return fmt.Errorf("%w: %d bytes", ErrLengthTooLarge, len(data))
	}
	if !e.fd && len(data) > maxShortLength {
		return fmt.Errorf("%w: %d bytes need the fd escape encoding", ErrLengthTooLarge, len(data))
	}
	e.txPending = data
	return nil
}

// Recv returns the next fully reassembled message, if one is ready.
func (e *Endpoint) Recv() ([]byte, bool) {
	if len(e.rxQueue) == 0 {
		return nil, false
	}
	data := e.rxQueue[0]
	e.rxQueue = e.rxQueue[1:]
	return data, true
}

// TxActive reports whether a transmission is staged, in flight, or still
// queued behind transport backpressure.
func (e *Endpoint) TxActive() bool {
	return e.txState != StateIdle || e.txPending != nil || len(e.pendingFrames) > 0
}

// RxActive reports whether a multi-frame reception is in flight.
func (e *Endpoint) RxActive() bool { return e.rxState != StateIdle }

// Cancel aborts any transfer in progress. On an idle endpoint it is a
// no-op. An aborted transfer surfaces ErrCancelled from the next Poll.
func (e *Endpoint) Cancel() error {
	active := e.TxActive() || e.RxActive()
	if !active {
		return nil
	}
	e.resetTx()
	e.txPending = nil
	e.resetRx()
	e.pendingFrames = nil
	e.errs = append(e.errs, ErrCancelled)
	return nil
}

// Poll advances the state machines: it flushes frames the transport
// refused earlier, drains received frames, emits consecutive frames that
// are due, and fires expired timers.
//
// The returned time is the next moment the host must call Poll again even
// if no frame arrives; it is zero when the endpoint only waits for frames
// or is idle. The returned error is the outcome of a transfer that ended
// since the previous Poll; each failure is reported exactly once.
func (e *Endpoint) Poll(tr FrameTransport) (time.Time, error) {
	if err := e.flushPending(tr); err != nil {
		return time.Time{}, err
	}

	for {
		msg, ok := tr.TryRecvFrame()
		if !ok {
			break
		}
		if err := e.onFrame(tr, msg); err != nil {
			return time.Time{}, err
		}
	}

	if err := e.advanceTx(tr); err != nil {
		return time.Time{}, err
	}
	e.checkTimers(tr.Now())

	next := e.nextDeadline()
	if len(e.errs) > 0 {
		err := e.errs[0]
		e.errs = e.errs[1:]
		return next, err
	}
	return next, nil
}

// flushPending retries frames the transport previously refused.
func (e *Endpoint) flushPending(tr FrameTransport) error {
	for len(e.pendingFrames) > 0 {
		err := tr.SendFrame(e.pendingFrames[0])
		if errors.Is(err, ErrBackpressure) {
			return nil
		}
		if err != nil {
			return err
		}
		e.lastTxAt = tr.Now()
		e.pendingFrames = e.pendingFrames[1:]
	}
	return nil
}

// emit hands one frame to the transport, queueing it on backpressure. A
// non-nil return is a transport failure.
func (e *Endpoint) emit(tr FrameTransport, msg CanMessage) error {
	if len(e.pendingFrames) > 0 {
		e.pendingFrames = append(e.pendingFrames, msg)
		return nil
	}
	err := tr.SendFrame(msg)
	if errors.Is(err, ErrBackpressure) {
		e.pendingFrames = append(e.pendingFrames, msg)
		return nil
	}
	if err == nil {
		e.lastTxAt = tr.Now()
	}
	return err
}

// makeMsg wraps a protocol payload into a CAN frame: address prefix,
// padding and FD flags.
func (e *Endpoint) makeMsg(addr *Address, payload []byte, addrType AddressType) CanMessage {
	full := make([]byte, 0, e.cfg.TxDataLength)
	full = append(full, addr.txPrefix...)
	full = append(full, payload...)

	if e.cfg.PaddingByte != nil || (e.fd && len(full) > 8) {
		target := 8
		if e.fd {
			target = nextFDTargetLength(len(full))
			if target > e.cfg.TxDataLength {
				target = e.cfg.TxDataLength
			}
		}
		pad := byte(0xCC)
		if e.cfg.PaddingByte != nil {
			pad = *e.cfg.PaddingByte
		}
		for len(full) < target {
			full = append(full, pad)
		}
	}

	return CanMessage{
		ArbitrationID: addr.TxArbitrationID(Physical),
		Data:          full,
		IsExtendedID:  addr.Is29Bit(),
		IsFD:          e.fd,
		BitrateSwitch: e.fd && e.cfg.BitrateSwitch,
		ErrorState:    e.fd && e.cfg.ErrorState,
	}
}

// advanceTx starts a staged transmission and emits consecutive frames that
// have become due.
func (e *Endpoint) advanceTx(tr FrameTransport) error {
	now := tr.Now()

	if e.txState == StateIdle && e.txPending != nil {
		if e.cfg.HalfDuplex && e.rxState != StateIdle {
			return nil // deferred until reception finishes
		}
		if !e.throttleDue(now) {
			return nil
		}
		return e.startTx(tr)
	}

	if e.txState != StateTransmit {
		return nil
	}

	for e.txBlocksLeft != 0 && len(e.pendingFrames) == 0 {
		now = tr.Now()
		if now.Before(e.txNextCFAt) || !e.throttleDue(now) {
			return nil
		}

		remaining := len(e.txBuf) - e.txOffset
		chunk := e.cfCapacity()
		if chunk > remaining {
			chunk = remaining
		}
		payload := createConsecutiveFramePayload(e.txBuf[e.txOffset:e.txOffset+chunk], e.txSeq)
		if err := e.emit(tr, e.makeMsg(e.transmitAddress(), payload, Physical)); err != nil {
			return err
		}

		e.txOffset += chunk
		e.txSeq = (e.txSeq + 1) % 16
		if e.txBlocksLeft > 0 {
			e.txBlocksLeft--
		}
		e.txNextCFAt = now.Add(e.txSTmin)
		e.txDeadline = now.Add(e.cfg.TimeoutN_Cs)

		if e.txOffset >= len(e.txBuf) {
			e.resetTx()
			return nil
		}
	}

	if e.txState == StateTransmit && e.txBlocksLeft == 0 && e.txOffset < len(e.txBuf) {
		// Block exhausted, wait for the peer's next flow control.
		e.txState = StateWaitFC
		e.txDeadline = tr.Now().Add(e.cfg.TimeoutN_Bs)
	}
	return nil
}

func (e *Endpoint) throttleDue(now time.Time) bool {
	if e.cfg.FrameTxTime == 0 || e.lastTxAt.IsZero() {
		return true
	}
	return !now.Before(e.lastTxAt.Add(e.cfg.FrameTxTime))
}

func (e *Endpoint) startTx(tr FrameTransport) error {
	data := e.txPending
	e.txPending = nil

	if len(data) <= e.sfCapacity() {
		payload, err := createSingleFramePayload(data, e.txAvail())
		if err != nil {
			e.errs = append(e.errs, err)
			return nil
		}
		return e.emit(tr, e.makeMsg(e.transmitAddress(), payload, Physical))
	}

	chunk := e.ffCapacity(len(data))
	payload, err := createFirstFramePayload(data[:chunk], len(data), e.txAvail())
	if err != nil {
		e.errs = append(e.errs, err)
		return nil
	}
	if err := e.emit(tr, e.makeMsg(e.transmitAddress(), payload, Physical)); err != nil {
		return err
	}

	e.txBuf = data
	e.txOffset = chunk
	e.txSeq = 1
	e.txWait = 0
	e.txBlocksLeft = 0
	e.txState = StateWaitFC
	e.txDeadline = tr.Now().Add(e.cfg.TimeoutN_Bs)
	return nil
}

func (e *Endpoint) resetTx() {
	e.txState = StateIdle
	e.txBuf = nil
	e.txOffset = 0
	e.txSeq = 0
	e.txBlocksLeft = 0
	e.txWait = 0
	e.txDeadline = time.Time{}
	e.txNextCFAt = time.Time{}
}

func (e *Endpoint) resetRx() {
	e.rxState = StateIdle
	e.rxBuf = nil
	e.rxLen = 0
	e.rxSeq = 0
	e.rxBlocks = 0
	e.rxDeadline = time.Time{}
}

// abortTx ends the running transmission and records its outcome.
func (e *Endpoint) abortTx(err error) {
	e.resetTx()
	e.errs = append(e.errs, err)
}

func (e *Endpoint) onFrame(tr FrameTransport, msg CanMessage) error {
	if !e.addr.IsForMe(&msg) {
		return nil
	}
	if e.cfg.LengthCheck && !paddedLengthOK(&msg) {
		e.errs = append(e.errs, fmt.Errorf("%w: frame length %d", ErrPaddingMismatch, len(msg.Data)))
		return nil
	}

	frame, err := ParseFrame(&msg, e.addr.RxPrefixSize())
	if err != nil {
		e.errs = append(e.errs, err)
		return nil
	}

	switch f := frame.(type) {
	case *FlowControlFrame:
		if !e.checkTailPadding(&msg, e.addr.RxPrefixSize()+3) {
			return nil
		}
		e.onFlowControl(tr, f)
	case *SingleFrame:
		e.onSingleFrame(&msg, f)
	case *FirstFrame:
		return e.onFirstFrame(tr, f)
	case *ConsecutiveFrame:
		return e.onConsecutiveFrame(tr, &msg, f)
	}
	return nil
}

// paddedLengthOK enforces the length check: Classical frames must be full
// 8 bytes, FD frames must sit exactly on a valid FD data length.
func paddedLengthOK(msg *CanMessage) bool {
	if !msg.IsFD {
		return len(msg.Data) == 8
	}
	return len(msg.Data) >= 8 && len(msg.Data) == nextFDTargetLength(len(msg.Data))
}

// checkTailPadding verifies pad bytes beyond the protocol content when the
// content check is enabled. It records the mismatch and reports false so
// the caller drops the frame.
func (e *Endpoint) checkTailPadding(msg *CanMessage, used int) bool {
	if !e.cfg.ContentCheck {
		return true
	}
	pad, ok := e.cfg.rxPadValue()
	if !ok {
		return true
	}
	for i := used; i < len(msg.Data); i++ {
		if msg.Data[i] != pad {
			e.errs = append(e.errs, fmt.Errorf("%w: byte %d is 0x%02x, expected 0x%02x",
				ErrPaddingMismatch, i, msg.Data[i], pad))
			return false
		}
	}
	return true
}

func (e *Endpoint) onFlowControl(tr FrameTransport, f *FlowControlFrame) {
	if e.txState != StateWaitFC {
		return
	}
	switch f.FlowStatus {
	case FlowStatusContinueToSend:
		if f.BlockSize == 0 {
			e.txBlocksLeft = -1
		} else {
			e.txBlocksLeft = f.BlockSize
		}
		e.txSTmin = f.STmin
		if e.cfg.STminRxOverride != nil {
			e.txSTmin = *e.cfg.STminRxOverride
		}
		e.txState = StateTransmit
		now := tr.Now()
		e.txNextCFAt = now.Add(e.txSTmin)
		e.txDeadline = now.Add(e.cfg.TimeoutN_Cs)
	case FlowStatusWait:
		e.txWait++
		if e.txWait > e.cfg.MaxWaitFrame {
			e.abortTx(ErrTooManyWaits)
			return
		}
		e.txDeadline = tr.Now().Add(e.cfg.TimeoutN_Bs)
	case FlowStatusOverflow:
		e.abortTx(ErrPeerOverflow)
	}
}

func (e *Endpoint) onSingleFrame(msg *CanMessage, f *SingleFrame) {
	if e.cfg.HalfDuplex && e.txState != StateIdle {
		return
	}
	used := e.addr.RxPrefixSize() + 1 + len(f.Data)
	if f.Escaped {
		used++
	}
	if !e.checkTailPadding(msg, used) {
		return
	}
	if e.rxState != StateIdle {
		// A single frame aborts the reception in progress.
		e.resetRx()
		e.errs = append(e.errs, protoErr(UnexpectedPci, "single frame during reassembly"))
	}
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	e.rxQueue = append(e.rxQueue, data)
}

func (e *Endpoint) onFirstFrame(tr FrameTransport, f *FirstFrame) error {
	if e.cfg.HalfDuplex && e.txState != StateIdle {
		return nil
	}
	if e.rxState != StateIdle {
		e.errs = append(e.errs, protoErr(UnexpectedPci, "first frame during reassembly"))
		e.resetRx()
	}
	if f.TotalSize > e.cfg.MaxSDULength {
		e.errs = append(e.errs, protoErr(RxOverflow,
			"peer announced %d bytes, limit %d", f.TotalSize, e.cfg.MaxSDULength))
		return e.sendFlowControl(tr, FlowStatusOverflow)
	}

	chunk := f.Data
	if len(chunk) > f.TotalSize {
		chunk = chunk[:f.TotalSize]
	}
	e.rxLen = f.TotalSize
	e.rxBuf = make([]byte, 0, f.TotalSize)
	e.rxBuf = append(e.rxBuf, chunk...)

	if len(e.rxBuf) >= e.rxLen {
		// Degenerate first frame already carrying everything.
		e.rxQueue = append(e.rxQueue, e.rxBuf)
		e.resetRx()
		return nil
	}

	e.rxState = StateWaitCF
	e.rxSeq = 1
	e.rxBlocks = e.cfg.BlockSize
	e.rxDeadline = tr.Now().Add(e.cfg.TimeoutN_Cr)
	return e.sendFlowControl(tr, FlowStatusContinueToSend)
}

func (e *Endpoint) onConsecutiveFrame(tr FrameTransport, msg *CanMessage, f *ConsecutiveFrame) error {
	if e.rxState != StateWaitCF {
		e.errs = append(e.errs, protoErr(CfBeforeFf, "no reassembly in progress"))
		return nil
	}
	if f.SequenceNumber != e.rxSeq {
		e.errs = append(e.errs, protoErr(SequenceMismatch,
			"expected %d, got %d", e.rxSeq, f.SequenceNumber))
		e.resetRx()
		return nil
	}

	remaining := e.rxLen - len(e.rxBuf)
	chunk := f.Data
	if len(chunk) > remaining {
		chunk = chunk[:remaining]
	}
	if !e.checkTailPadding(msg, e.addr.RxPrefixSize()+1+len(chunk)) {
		return nil
	}

	e.rxSeq = (e.rxSeq + 1) % 16
	e.rxBuf = append(e.rxBuf, chunk...)
	e.rxDeadline = tr.Now().Add(e.cfg.TimeoutN_Cr)

	if len(e.rxBuf) >= e.rxLen {
		e.rxQueue = append(e.rxQueue, e.rxBuf)
		e.resetRx()
		return nil
	}

	if e.cfg.BlockSize > 0 {
		e.rxBlocks--
		if e.rxBlocks == 0 {
			e.rxBlocks = e.cfg.BlockSize
			return e.sendFlowControl(tr, FlowStatusContinueToSend)
		}
	}
	return nil
}

func (e *Endpoint) sendFlowControl(tr FrameTransport, status FlowStatus) error {
	payload := createFlowControlPayload(status, e.cfg.BlockSize, e.cfg.advertisedSTmin())
	return e.emit(tr, e.makeMsg(e.addr, payload, Physical))
}

func (e *Endpoint) checkTimers(now time.Time) {
	if !e.txDeadline.IsZero() && now.After(e.txDeadline) {
		switch e.txState {
		case StateWaitFC:
			e.abortTx(&TimeoutError{Timer: TimerN_Bs})
		case StateTransmit:
			e.abortTx(&TimeoutError{Timer: TimerN_Cs})
		}
	}
	if e.rxState == StateWaitCF && !e.rxDeadline.IsZero() && now.After(e.rxDeadline) {
		e.resetRx()
		e.errs = append(e.errs, &TimeoutError{Timer: TimerN_Cr})
	}
}

// nextDeadline is the earliest moment the host must poll again.
func (e *Endpoint) nextDeadline() time.Time {
	var next time.Time
	earliest := func(t time.Time) {
		if t.IsZero() {
			return
		}
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	if e.txState == StateWaitFC || e.txState == StateTransmit {
		earliest(e.txDeadline)
	}
	if e.txState == StateTransmit && e.txBlocksLeft != 0 {
		earliest(e.txNextCFAt)
	}
	if e.rxState == StateWaitCF {
		earliest(e.rxDeadline)
	}
	if len(e.pendingFrames) > 0 || (e.txPending != nil && e.txState == StateIdle) {
		earliest(e.lastTxAt.Add(e.cfg.FrameTxTime))
	}
	return next
}
