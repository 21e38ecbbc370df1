package tp_layer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

// Two Transports wired back to back through channels, the way a host wires
// them to a CAN driver's rx/tx channels.
func TestTransportRoundTrip(t *testing.T) {
	cfgA := DefaultConfig()
	cfgA.WaitTxDone = true
	addrA, _ := NewAddress(Normal11Bit, WithTxID(0x712), WithRxID(0x7A2))
	addrB, _ := NewAddress(Normal11Bit, WithTxID(0x7A2), WithRxID(0x712))

	ta, err := NewTransport(addrA, cfgA)
	if err != nil {
		t.Fatal(err)
	}
	tb, err := NewTransport(addrB, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	aToB := make(chan CanMessage, 64)
	bToA := make(chan CanMessage, 64)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ta.Run(ctx, bToA, aToB)
	go tb.Run(ctx, aToB, bToA)

	sdu := pattern(300)
	if err := ta.Send(sdu); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case got := <-tb.RecvChan():
		if !bytes.Equal(got, sdu) {
			t.Fatalf("delivered %d bytes, mismatch", len(got))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestTransportReportsErrors(t *testing.T) {
	addrA, _ := NewAddress(Normal11Bit, WithTxID(0x712), WithRxID(0x7A2))
	cfg := DefaultConfig()
	cfg.TimeoutN_Bs = 50 * time.Millisecond

	ta, err := NewTransport(addrA, cfg)
	if err != nil {
		t.Fatal(err)
	}

	rx := make(chan CanMessage)
	tx := make(chan CanMessage, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ta.Run(ctx, rx, tx)

	// Multi-frame send with nobody answering the first frame.
	if err := ta.Send(pattern(100)); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case err := <-ta.ErrorChan:
		var te *TimeoutError
		if !errors.As(err, &te) || te.Timer != TimerN_Bs {
			t.Fatalf("got %v, want N_Bs timeout", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout never reported")
	}
}
