package framelen

import "testing"

func mkFrame(id uint32, ext, rtr bool, data []byte) Frame {
	f := Frame{ID: id, Extended: ext, RTR: rtr, DLC: uint8(len(data))}
	copy(f.Data[:], data)
	return f
}

func mustBits(t *testing.T, f Frame, mode Mode) uint32 {
	t.Helper()
	n, err := FrameBits(f, mode, CANMTU)
	if err != nil {
		t.Fatalf("FrameBits: %v", err)
	}
	return n
}

func TestEnvelopeCounts(t *testing.T) {
	cases := []struct {
		f         Frame
		noStuff   uint32
		worstCase uint32
	}{
		{mkFrame(0x123, false, false, nil), 47, 55},
		{mkFrame(0x100, false, true, nil), 47, 55},
		{mkFrame(0x18FEDF55, true, false, make([]byte, 8)), 131, 160},
		{mkFrame(0x000, false, false, make([]byte, 8)), 111, 135},
	}
	for _, c := range cases {
		if got := mustBits(t, c.f, NoBitStuffing); got != c.noStuff {
			t.Errorf("id=0x%X no-stuffing: got %d want %d", c.f.ID, got, c.noStuff)
		}
		if got := mustBits(t, c.f, WorstCase); got != c.worstCase {
			t.Errorf("id=0x%X worst-case: got %d want %d", c.f.ID, got, c.worstCase)
		}
	}
}

func TestExactCounts(t *testing.T) {
	// Reference values from the table-driven CRC/stuff calculation in
	// canframelen.c, cross-checked against an independent bit-stuffer.
	cases := []struct {
		f    Frame
		want uint32
	}{
		{mkFrame(0x123, false, false, nil), 48},
		{mkFrame(0x100, false, true, nil), 49},
		{mkFrame(0x18FEDF55, true, false, []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}), 133},
		// All-zero frame maximises stuffing.
		{mkFrame(0x000, false, false, make([]byte, 8)), 127},
		{mkFrame(0x7FF, false, false, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}), 126},
		{mkFrame(0x1FFFFFFF, true, false, []byte{0x55, 0xAA, 0x55, 0xAA, 0x55, 0xAA, 0x55, 0xAA}), 138},
		{mkFrame(0x555, false, false, []byte{0x01, 0x02, 0x03}), 75},
	}
	for _, c := range cases {
		if got := mustBits(t, c.f, Exact); got != c.want {
			t.Errorf("id=0x%X dlc=%d exact: got %d want %d", c.f.ID, c.f.DLC, got, c.want)
		}
	}
}

// The three modes are ordered for every classical frame:
// worst-case >= exact >= no-stuffing.
func TestModeOrdering(t *testing.T) {
	patterns := [][]byte{
		nil,
		{0x00},
		{0xFF, 0x00, 0xFF, 0x00},
		{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04},
		{0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55},
		make([]byte, 8),
	}
	ids := []uint32{0x000, 0x123, 0x7FF, 0x1FFFFFFF, 0x18DAF110}
	for _, id := range ids {
		for _, ext := range []bool{false, true} {
			if !ext && id > 0x7FF {
				continue
			}
			for _, p := range patterns {
				f := mkFrame(id, ext, false, p)
				ns := mustBits(t, f, NoBitStuffing)
				ex := mustBits(t, f, Exact)
				wc := mustBits(t, f, WorstCase)
				if !(wc >= ex && ex >= ns) {
					t.Errorf("id=0x%X ext=%v dlc=%d: worst=%d exact=%d nostuff=%d out of order",
						id, ext, f.DLC, wc, ex, ns)
				}
			}
		}
	}
}

func TestFDUnsupported(t *testing.T) {
	f := mkFrame(0x123, false, false, []byte{1, 2, 3})
	n, err := FrameBits(f, Exact, CANFDMTU)
	if err != nil || n != 0 {
		t.Errorf("FD mtu: got (%d, %v), want (0, nil)", n, err)
	}
}

func TestInvalidDLC(t *testing.T) {
	f := Frame{ID: 0x123, DLC: 9}
	if _, err := FrameBits(f, Exact, CANMTU); err != ErrFrameInvalid {
		t.Errorf("DLC=9: got err %v, want ErrFrameInvalid", err)
	}
}
