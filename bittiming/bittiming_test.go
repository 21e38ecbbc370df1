package bittiming

import (
	"errors"
	"testing"
)

func mustLookup(t *testing.T, name string) Const {
	t.Helper()
	c, ok := Lookup(name)
	if !ok {
		t.Fatalf("controller %q not in registry", name)
	}
	return c.Const
}

func checkInvariants(t *testing.T, c Const, clockHz uint32, bt BitTiming) {
	t.Helper()
	tseg1 := bt.PropSeg + bt.PhaseSeg1
	if tseg1 < c.TSeg1Min || tseg1 > c.TSeg1Max {
		t.Errorf("tseg1 %d outside [%d, %d]", tseg1, c.TSeg1Min, c.TSeg1Max)
	}
	if bt.PhaseSeg2 < c.TSeg2Min || bt.PhaseSeg2 > c.TSeg2Max {
		t.Errorf("tseg2 %d outside [%d, %d]", bt.PhaseSeg2, c.TSeg2Min, c.TSeg2Max)
	}
	if bt.BRP < c.BRPMin || bt.BRP > c.BRPMax || (bt.BRP-c.BRPMin)%c.BRPInc != 0 {
		t.Errorf("brp %d outside [%d, %d] inc %d", bt.BRP, c.BRPMin, c.BRPMax, c.BRPInc)
	}
	if bt.SJW < 1 || bt.SJW > c.SJWMax || bt.SJW > bt.PhaseSeg1 || bt.SJW > bt.PhaseSeg2 {
		t.Errorf("sjw %d violates limits (max %d, ps1 %d, ps2 %d)",
			bt.SJW, c.SJWMax, bt.PhaseSeg1, bt.PhaseSeg2)
	}
	if want := clockHz / (bt.BRP * (1 + tseg1 + bt.PhaseSeg2)); bt.Bitrate != want {
		t.Errorf("bitrate %d, want clock/(brp*bittime) = %d", bt.Bitrate, want)
	}
}

func TestSolveSJA1000(t *testing.T) {
	c := mustLookup(t, "sja1000")
	bt, err := Solve(c, 8000000, 500000, 0)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	want := BitTiming{
		Bitrate: 500000, SamplePoint: 875, TQ: 125,
		PropSeg: 6, PhaseSeg1: 7, PhaseSeg2: 2, SJW: 1, BRP: 1,
	}
	if bt != want {
		t.Errorf("got %+v\nwant %+v", bt, want)
	}
	checkInvariants(t, c, 8000000, bt)
}

func TestSolveFlexcanOddClock(t *testing.T) {
	c := mustLookup(t, "flexcan")
	bt, err := Solve(c, 49875000, 500000, 0)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	// 49.875 MHz does not divide evenly; the closest divisor lands at
	// 498750 bit/s, 0.25% below nominal.
	if diff := absDiff(bt.Bitrate, 500000); diff*400 > 500000 {
		t.Errorf("bitrate %d more than 0.25%% off nominal", bt.Bitrate)
	}
	want := BitTiming{
		Bitrate: 498750, SamplePoint: 850, TQ: 100,
		PropSeg: 8, PhaseSeg1: 8, PhaseSeg2: 3, SJW: 1, BRP: 5,
	}
	if bt != want {
		t.Errorf("got %+v\nwant %+v", bt, want)
	}
	checkInvariants(t, c, 49875000, bt)
}

func TestSolveInvariantsSweep(t *testing.T) {
	clocks := []uint32{8000000, 16000000, 24000000, 49875000, 80000000}
	for _, ctrl := range Controllers() {
		for _, clock := range clocks {
			for _, rate := range CommonBitrates {
				bt := BitTiming{Bitrate: rate}
				err := Default().Calc(ctrl.Const, clock, &bt)
				if errors.Is(err, ErrBitrateUnreachable) {
					continue
				}
				if err != nil {
					t.Fatalf("%s @%d %d: %v", ctrl.Name, clock, rate, err)
				}
				checkInvariants(t, ctrl.Const, clock, bt)
				if diff := uint64(absDiff(bt.Bitrate, rate)); diff*1000 > uint64(rate)*50 {
					t.Errorf("%s @%d %d: accepted bitrate error above 5%%", ctrl.Name, clock, rate)
				}
			}
		}
	}
}

func TestClockDoublingDoublesBRP(t *testing.T) {
	c := mustLookup(t, "sja1000")
	a, err := Solve(c, 8000000, 500000, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Solve(c, 16000000, 500000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b.BRP != 2*a.BRP {
		t.Errorf("brp: 8 MHz %d, 16 MHz %d, want doubled", a.BRP, b.BRP)
	}
	if a.PropSeg != b.PropSeg || a.PhaseSeg1 != b.PhaseSeg1 || a.PhaseSeg2 != b.PhaseSeg2 {
		t.Errorf("segments changed with clock: %+v vs %+v", a, b)
	}
}

func TestVariantsDiffer(t *testing.T) {
	c := mustLookup(t, "flexcan")

	legacy, err := ByName("legacy")
	if err != nil {
		t.Fatal(err)
	}
	bt := BitTiming{Bitrate: 500000}
	if err := legacy.Calc(c, 49875000, &bt); err != nil {
		t.Fatalf("legacy: %v", err)
	}
	// The legacy variant never refines the sample point when no exact
	// bitrate match exists and therefore stops at a different tseg.
	want := BitTiming{
		Bitrate: 498750, SamplePoint: 800, TQ: 200,
		PropSeg: 3, PhaseSeg1: 4, PhaseSeg2: 2, SJW: 1, BRP: 10,
	}
	if bt != want {
		t.Errorf("legacy got %+v\nwant %+v", bt, want)
	}

	v48, err := ByName("v4.8")
	if err != nil {
		t.Fatal(err)
	}
	bt = BitTiming{Bitrate: 500000}
	if err := v48.Calc(c, 49875000, &bt); err != nil {
		t.Fatalf("v4.8: %v", err)
	}
	if bt.BRP != 5 || bt.SamplePoint != 850 {
		t.Errorf("v4.8 got %+v, want brp=5 sample point 850", bt)
	}
}

func TestSJWUser(t *testing.T) {
	c := mustLookup(t, "sja1000")
	bt := BitTiming{Bitrate: 500000, SJW: 4}
	if err := Default().Calc(c, 8000000, &bt); err != nil {
		t.Fatal(err)
	}
	// phase_seg2 is 2 here, so the requested 4 is clamped.
	if bt.SJW != 2 {
		t.Errorf("sjw %d, want 2 (clamped to phase segments)", bt.SJW)
	}
}

func TestBitrateUnreachable(t *testing.T) {
	c := mustLookup(t, "sja1000")
	if _, err := Solve(c, 8000000, 1, 0); !errors.Is(err, ErrBitrateUnreachable) {
		t.Errorf("got %v, want ErrBitrateUnreachable", err)
	}
}

func TestEvaluate(t *testing.T) {
	c := mustLookup(t, "sja1000")
	bt, err := Evaluate(c, 8000000, BitTiming{
		PropSeg: 6, PhaseSeg1: 7, PhaseSeg2: 2, TQ: 125,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := BitTiming{
		Bitrate: 500000, SamplePoint: 875, TQ: 125,
		PropSeg: 6, PhaseSeg1: 7, PhaseSeg2: 2, SJW: 1, BRP: 1,
	}
	if bt != want {
		t.Errorf("got %+v\nwant %+v", bt, want)
	}
}

func TestEvaluateMatchesSolve(t *testing.T) {
	for _, name := range []string{"sja1000", "flexcan", "mcp251x", "c_can"} {
		c := mustLookup(t, name)
		for _, rate := range []uint32{125000, 250000, 500000, 1000000} {
			solved, err := Solve(c, 16000000, rate, 0)
			if errors.Is(err, ErrBitrateUnreachable) {
				continue
			}
			if err != nil {
				t.Fatalf("%s %d: %v", name, rate, err)
			}
			got, err := Evaluate(c, 16000000, BitTiming{
				PropSeg:   solved.PropSeg,
				PhaseSeg1: solved.PhaseSeg1,
				PhaseSeg2: solved.PhaseSeg2,
				SJW:       solved.SJW,
				TQ:        solved.TQ,
			})
			if err != nil {
				t.Fatalf("%s %d evaluate: %v", name, rate, err)
			}
			if got.Bitrate != solved.Bitrate {
				t.Errorf("%s %d: evaluate bitrate %d, solve %d",
					name, rate, got.Bitrate, solved.Bitrate)
			}
			// Solve keeps its achieved rate within 5% of nominal.
			if diff := uint64(absDiff(got.Bitrate, rate)); diff*1000 > uint64(rate)*50 {
				t.Errorf("%s %d: round-trip error above 5%%", name, rate)
			}
		}
	}
}

func TestEvaluateOutOfRange(t *testing.T) {
	c := mustLookup(t, "sja1000")
	cases := []BitTiming{
		{PropSeg: 10, PhaseSeg1: 8, PhaseSeg2: 2, TQ: 125},        // tseg1 18 > 16
		{PropSeg: 3, PhaseSeg1: 3, PhaseSeg2: 9, TQ: 125},         // tseg2 9 > 8
		{PropSeg: 6, PhaseSeg1: 7, PhaseSeg2: 2, SJW: 5, TQ: 125}, // sjw > max
		{PropSeg: 6, PhaseSeg1: 7, PhaseSeg2: 2, TQ: 1000000},     // brp way out
	}
	for i, in := range cases {
		if _, err := Evaluate(c, 8000000, in); !errors.Is(err, ErrParametersOutOfRange) {
			t.Errorf("case %d: got %v, want ErrParametersOutOfRange", i, err)
		}
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := ByName("v9.99"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("got %v, want ErrUnknownAlgorithm", err)
	}
}

func TestRegistryConsistent(t *testing.T) {
	seen := map[string]bool{}
	for _, ctrl := range Controllers() {
		if seen[ctrl.Name] {
			t.Errorf("duplicate controller %q", ctrl.Name)
		}
		seen[ctrl.Name] = true
		if err := ctrl.Validate(); err != nil {
			t.Errorf("%s: %v", ctrl.Name, err)
		}
		if ctrl.Data != nil {
			if err := ctrl.Data.Validate(); err != nil {
				t.Errorf("%s data phase: %v", ctrl.Name, err)
			}
		}
	}
}
