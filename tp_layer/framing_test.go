package tp_layer

import (
	"bytes"
	"testing"
	"time"
)

func TestSTminEncoding(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want byte
	}{
		{0, 0x00},
		{time.Millisecond, 0x01},
		{20 * time.Millisecond, 0x14},
		{127 * time.Millisecond, 0x7F},
		{500 * time.Millisecond, 0x7F}, // clamped
		{100 * time.Microsecond, 0xF1},
		{900 * time.Microsecond, 0xF9},
		{250 * time.Microsecond, 0xF3}, // rounded up
		{901 * time.Microsecond, 0x01}, // 0xFA is reserved, round up to 1ms
		{950 * time.Microsecond, 0x01},
		{999 * time.Microsecond, 0x01},
	}
	for _, c := range cases {
		if got := encodeSTmin(c.d); got != c.want {
			t.Errorf("encodeSTmin(%v) = 0x%02x, want 0x%02x", c.d, got, c.want)
		}
	}
}

func TestSTminDecoding(t *testing.T) {
	cases := []struct {
		b    byte
		want time.Duration
	}{
		{0x00, 0},
		{0x7F, 127 * time.Millisecond},
		{0xF1, 100 * time.Microsecond},
		{0xF9, 900 * time.Microsecond},
		{0x80, 127 * time.Millisecond}, // reserved
		{0xFA, 127 * time.Millisecond}, // reserved
	}
	for _, c := range cases {
		if got := decodeSTmin(c.b); got != c.want {
			t.Errorf("decodeSTmin(0x%02x) = %v, want %v", c.b, got, c.want)
		}
	}
}

func TestParseFrameRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty after prefix", []byte{}},
		{"sf longer than frame", []byte{0x05, 0x01, 0x02}},
		{"escaped sf without length", []byte{0x00}},
		{"ff single byte", []byte{0x10}},
		{"fc two bytes", []byte{0x30, 0x00}},
		{"unknown pci", []byte{0x40, 0x00, 0x00}},
	}
	for _, c := range cases {
		msg := CanMessage{ArbitrationID: 0x123, Data: c.data}
		if _, err := ParseFrame(&msg, 0); err == nil {
			t.Errorf("%s: parsed without error", c.name)
		}
	}
}

func TestCreateSingleFramePayload(t *testing.T) {
	payload, err := createSingleFramePayload([]byte{0xDE, 0xAD}, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, []byte{0x02, 0xDE, 0xAD}) {
		t.Fatalf("payload % x", payload)
	}
	if _, err := createSingleFramePayload(make([]byte, 8), 8); err == nil {
		t.Fatal("8 bytes fit into a classical sf")
	}
}

func TestNormalFixedArbitrationIDs(t *testing.T) {
	addr, err := NewAddress(NormalFixed29Bit,
		WithTargetAddress(0xF1), WithSourceAddress(0x10))
	if err != nil {
		t.Fatal(err)
	}
	if id := addr.TxArbitrationID(Physical); id != 0x18DAF110 {
		t.Errorf("physical id %08x, want 18daf110", id)
	}
	if id := addr.TxArbitrationID(Functional); id != 0x18DBF110 {
		t.Errorf("functional id %08x, want 18dbf110", id)
	}
	if !addr.Is29Bit() {
		t.Error("normal fixed addressing must use 29-bit ids")
	}
}

func TestAddressFiltering(t *testing.T) {
	addr, err := NewAddress(Normal11Bit, WithTxID(0x712), WithRxID(0x7A2))
	if err != nil {
		t.Fatal(err)
	}
	match := CanMessage{ArbitrationID: 0x7A2, Data: []byte{0x01, 0xFF}}
	if !addr.IsForMe(&match) {
		t.Error("frame on rx id rejected")
	}
	other := CanMessage{ArbitrationID: 0x7A3, Data: []byte{0x01, 0xFF}}
	if addr.IsForMe(&other) {
		t.Error("frame on foreign id accepted")
	}
	ext := CanMessage{ArbitrationID: 0x7A2, IsExtendedID: true, Data: []byte{0x01, 0xFF}}
	if addr.IsForMe(&ext) {
		t.Error("29-bit frame accepted by 11-bit endpoint")
	}
}
