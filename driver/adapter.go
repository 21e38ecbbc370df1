package driver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/LoveWonYoung/cantool/tp_layer"
)

// Adapter bridges a CANDriver backend to the transport layer's frame
// channels. It owns the conversion between the backend's fixed-size
// message and the transport's CanMessage.
type Adapter struct {
	driver CANDriver
	rxOut  chan tp_layer.CanMessage
	txIn   chan tp_layer.CanMessage
	trace  bool
	wg     sync.WaitGroup
}

// NewAdapter initialises and starts the backend.
func NewAdapter(dev CANDriver) (*Adapter, error) {
	if dev == nil {
		return nil, errors.New("driver: CAN driver instance cannot be nil")
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("driver: initialise CAN device: %w", err)
	}
	dev.Start()

	return &Adapter{
		driver: dev,
		rxOut:  make(chan tp_layer.CanMessage, MsgBufferSize),
		txIn:   make(chan tp_layer.CanMessage, MsgBufferSize),
	}, nil
}

// RxChan carries frames from the bus towards a transport.
func (a *Adapter) RxChan() <-chan tp_layer.CanMessage { return a.rxOut }

// TxChan carries frames from a transport towards the bus.
func (a *Adapter) TxChan() chan<- tp_layer.CanMessage { return a.txIn }

// SetTrace enables logging of every received frame. Must be set before
// Run.
func (a *Adapter) SetTrace(on bool) { a.trace = on }

// Run pumps frames in both directions until the context is cancelled.
// The receive side goes through a fanout so a trace tap can observe the
// raw frames without slowing the transport down.
func (a *Adapter) Run(ctx context.Context) {
	fan := newRxFanout(ctx, a.driver.RxChan())
	rxSub := fan.Subscribe(MsgBufferSize)
	if a.trace {
		traceSub := fan.Subscribe(MsgBufferSize)
		go func() {
			for raw := range traceSub {
				logCANMessage("RX", raw.ID, int(raw.Length), raw.Payload(), canTypeOf(&raw))
			}
		}()
	}

	a.wg.Add(2)

	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-rxSub:
				if !ok {
					return
				}
				msg := fromUnified(&raw)
				select {
				case a.rxOut <- msg:
				default:
					// Transport too slow, frame dropped.
				}
			}
		}
	}()

	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-a.txIn:
				if err := a.driver.Write(toUnified(&msg)); err != nil {
					log.Printf("driver: adapter failed to send frame: %v", err)
				}
			}
		}
	}()
}

// Close stops the backend after the pumps have drained.
func (a *Adapter) Close() {
	a.wg.Wait()
	a.driver.Stop()
}

func fromUnified(raw *UnifiedCANMessage) tp_layer.CanMessage {
	data := make([]byte, len(raw.Payload()))
	copy(data, raw.Payload())
	return tp_layer.CanMessage{
		ArbitrationID: raw.ID,
		Data:          data,
		IsExtendedID:  raw.IsExtended,
		IsFD:          raw.IsFD,
		BitrateSwitch: raw.BitrateSwitch,
		ErrorState:    raw.ErrorState,
	}
}

func toUnified(msg *tp_layer.CanMessage) UnifiedCANMessage {
	raw := NewMessage(msg.ArbitrationID, msg.Data, msg.IsExtendedID, msg.IsFD)
	raw.Direction = TX
	raw.BitrateSwitch = msg.BitrateSwitch
	raw.ErrorState = msg.ErrorState
	return raw
}
