package tp_layer

import (
	"context"
	"time"
)

// Transport runs an Endpoint as a channel event loop for hosts that feed
// CAN frames through channels instead of driving Poll themselves.
type Transport struct {
	ep *Endpoint

	txDataChan chan txRequest
	rxDataChan chan []byte

	// ErrorChan carries transfer failures. It is never closed and drops
	// errors when full rather than blocking the loop.
	ErrorChan chan error
}

type txRequest struct {
	data []byte
	done chan error
}

// NewTransport wraps an endpoint built from the address and configuration.
func NewTransport(address *Address, cfg Config) (*Transport, error) {
	ep, err := NewEndpoint(address, cfg)
	if err != nil {
		return nil, err
	}
	return &Transport{
		ep:         ep,
		txDataChan: make(chan txRequest, 10),
		rxDataChan: make(chan []byte, 10),
		ErrorChan:  make(chan error, 10),
	}, nil
}

// Endpoint exposes the wrapped engine for configuration calls such as
// SetTxAddress before Run starts.
func (t *Transport) Endpoint() *Endpoint { return t.ep }

// Send queues one message for transmission. With WaitTxDone set it blocks
// until the transfer completes and returns its outcome; otherwise it
// returns once the message is queued.
func (t *Transport) Send(data []byte) error {
	req := txRequest{data: data}
	if t.ep.cfg.WaitTxDone {
		req.done = make(chan error, 1)
	}
	t.txDataChan <- req
	if req.done != nil {
		return <-req.done
	}
	return nil
}

// Recv returns the next fully received message, if one is ready.
func (t *Transport) Recv() ([]byte, bool) {
	select {
	case data := <-t.rxDataChan:
		return data, true
	default:
		return nil, false
	}
}

// RecvChan exposes received messages for select-based hosts.
func (t *Transport) RecvChan() <-chan []byte { return t.rxDataChan }

// chanTransport adapts the Run channels to the FrameTransport the engine
// expects.
type chanTransport struct {
	rxQueue []CanMessage
	txChan  chan<- CanMessage
}

func (c *chanTransport) SendFrame(msg CanMessage) error {
	select {
	case c.txChan <- msg:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *chanTransport) TryRecvFrame() (CanMessage, bool) {
	if len(c.rxQueue) == 0 {
		return CanMessage{}, false
	}
	msg := c.rxQueue[0]
	c.rxQueue = c.rxQueue[1:]
	return msg, true
}

func (c *chanTransport) Now() time.Time { return time.Now() }

// Run drives the endpoint until the context is cancelled. Frames arriving
// on rxChan are fed to the engine; frames the engine emits go to txChan.
func (t *Transport) Run(ctx context.Context, rxChan <-chan CanMessage, txChan chan<- CanMessage) {
	ct := &chanTransport{txChan: txChan}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var cur *txRequest

	for {
		var txEnable <-chan txRequest
		if !t.ep.TxActive() && cur == nil {
			txEnable = t.txDataChan
		}

		select {
		case <-ctx.Done():
			if cur != nil && cur.done != nil {
				cur.done <- ErrCancelled
			}
			return

		case msg := <-rxChan:
			ct.rxQueue = append(ct.rxQueue, msg)

		case req := <-txEnable:
			if err := t.ep.Send(req.data); err != nil {
				if req.done != nil {
					req.done <- err
				} else {
					t.fireError(err)
				}
				continue
			}
			cur = &req

		case <-timer.C:
		}

		var txErr error
		next, err := t.ep.Poll(ct)
		for err != nil {
			txErr = err
			t.fireError(err)
			next, err = t.ep.Poll(ct)
		}

		for {
			data, ok := t.ep.Recv()
			if !ok {
				break
			}
			select {
			case t.rxDataChan <- data:
			default:
				// Receive queue full, message dropped.
			}
		}

		if cur != nil && !t.ep.TxActive() {
			if cur.done != nil {
				cur.done <- txErr
			}
			cur = nil
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if !next.IsZero() {
			d := time.Until(next)
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
		}
	}
}

func (t *Transport) fireError(err error) {
	select {
	case t.ErrorChan <- err:
	default:
	}
}
