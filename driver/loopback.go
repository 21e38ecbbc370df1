package driver

import (
	"context"
	"errors"
	"sync"
)

// Bus is an in-memory CAN bus. Every frame written by one attached driver
// is delivered to all other drivers on the bus, which makes it the test
// double for the hardware backends and the transport under the ISO-TP
// tools' self-test modes.
type Bus struct {
	mu    sync.RWMutex
	taps  []*Loopback
	echo  bool
	trace bool
}

// NewBus creates an empty bus. With echo set, writers also receive their
// own frames, the way a CAN controller in loopback mode would.
func NewBus(echo bool) *Bus {
	return &Bus{echo: echo}
}

// SetTrace enables frame logging on the bus.
func (b *Bus) SetTrace(on bool) { b.trace = on }

// Attach creates a new driver endpoint on the bus.
func (b *Bus) Attach() *Loopback {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loopback{
		bus:    b,
		rxChan: make(chan UnifiedCANMessage, RxChannelBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	b.mu.Lock()
	b.taps = append(b.taps, l)
	b.mu.Unlock()
	return l
}

func (b *Bus) broadcast(from *Loopback, msg UnifiedCANMessage) {
	if b.trace {
		canType := CAN
		if msg.IsFD {
			canType = CANFD
		}
		logCANMessage("BUS", msg.ID, int(msg.Length), msg.Payload(), canType)
	}
	msg.Direction = RX
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, tap := range b.taps {
		if tap == from && !b.echo {
			continue
		}
		select {
		case <-tap.ctx.Done():
		case tap.rxChan <- msg:
		default:
			// Receiver queue full, frame lost like on a saturated bus.
		}
	}
}

func (b *Bus) detach(l *Loopback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, tap := range b.taps {
		if tap == l {
			b.taps = append(b.taps[:i], b.taps[i+1:]...)
			return
		}
	}
}

// Loopback is one endpoint of a Bus implementing CANDriver.
type Loopback struct {
	bus    *Bus
	rxChan chan UnifiedCANMessage
	ctx    context.Context
	cancel context.CancelFunc
}

var errLoopbackClosed = errors.New("driver: loopback endpoint closed")

func (l *Loopback) Init() error { return nil }
func (l *Loopback) Start()      {}

func (l *Loopback) Stop() {
	l.cancel()
	l.bus.detach(l)
}

func (l *Loopback) Write(msg UnifiedCANMessage) error {
	select {
	case <-l.ctx.Done():
		return errLoopbackClosed
	default:
	}
	msg.Direction = TX
	l.bus.broadcast(l, msg)
	return nil
}

func (l *Loopback) RxChan() <-chan UnifiedCANMessage { return l.rxChan }
func (l *Loopback) Context() context.Context         { return l.ctx }
