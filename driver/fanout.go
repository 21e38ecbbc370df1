package driver

import (
	"context"
	"sync"
)

// rxFanout tees one backend receive channel to any number of subscribers.
// Slow subscribers lose frames rather than stall the others.
type rxFanout struct {
	mu     sync.RWMutex
	subs   map[chan UnifiedCANMessage]struct{}
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newRxFanout(ctx context.Context, source <-chan UnifiedCANMessage) *rxFanout {
	ctx, cancel := context.WithCancel(ctx)
	f := &rxFanout{
		subs:   make(map[chan UnifiedCANMessage]struct{}),
		cancel: cancel,
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.closeAll()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-source:
				if !ok {
					return
				}
				f.broadcast(msg)
			}
		}
	}()
	return f
}

// Subscribe returns a fresh channel fed with every frame from the source.
// The channel is closed when the fanout shuts down.
func (f *rxFanout) Subscribe(buffer int) <-chan UnifiedCANMessage {
	ch := make(chan UnifiedCANMessage, buffer)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	f.subs[ch] = struct{}{}
	return ch
}

func (f *rxFanout) broadcast(msg UnifiedCANMessage) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subs {
		select {
		case ch <- msg:
		default:
			// Subscriber too slow, frame dropped.
		}
	}
}

func (f *rxFanout) closeAll() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()

	for ch := range subs {
		close(ch)
	}
}

// Close stops the pump and closes every subscriber channel. Safe to call
// while the parent context is still live.
func (f *rxFanout) Close() {
	f.cancel()
	f.wg.Wait()
}
