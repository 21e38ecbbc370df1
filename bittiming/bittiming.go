// Package bittiming calculates CAN controller bit-timing register values.
//
// Given a controller's hardware constraints, a clock frequency and a nominal
// bit-rate, the solver searches the integer space of prescaler and time
// segment combinations for the configuration that minimises the bit-rate
// error first and the sample-point error second. Several historical
// algorithm variants are provided; they share the same data model and are
// selected by name. The inverse direction (low-level parameters to
// effective bit-rate) is available as Evaluate.
package bittiming

import (
	"errors"
	"fmt"
)

const (
	// syncSeg is the fixed one-quantum synchronisation segment at the
	// start of every bit time.
	syncSeg = 1

	// maxBitrateError is the accepted residual bit-rate error in
	// permille. Above this the requested rate is unreachable.
	maxBitrateError = 50

	nsPerSec = 1000000000
)

// Const describes the bit-timing limits of one CAN controller.
type Const struct {
	Name     string
	TSeg1Min uint32 // prop_seg + phase_seg1
	TSeg1Max uint32
	TSeg2Min uint32 // phase_seg2
	TSeg2Max uint32
	SJWMax   uint32
	BRPMin   uint32
	BRPMax   uint32
	BRPInc   uint32
}

// Validate reports whether the limits themselves are consistent.
func (c Const) Validate() error {
	switch {
	case c.TSeg1Min > c.TSeg1Max || c.TSeg2Min > c.TSeg2Max:
		return fmt.Errorf("%w: tseg min above max", ErrParametersOutOfRange)
	case c.BRPMin > c.BRPMax:
		return fmt.Errorf("%w: brp min above max", ErrParametersOutOfRange)
	case c.BRPInc < 1:
		return fmt.Errorf("%w: brp_inc must be at least 1", ErrParametersOutOfRange)
	case c.SJWMax < 1:
		return fmt.Errorf("%w: sjw_max must be at least 1", ErrParametersOutOfRange)
	}
	return nil
}

// BitTiming carries both the request and the result of a calculation.
//
// On input to an algorithm's Calc, Bitrate holds the nominal bit-rate,
// SamplePoint the nominal sample point in permille (0 selects the CiA
// recommendation) and SJW the requested jump width (0 selects the variant's
// default). Calc fills in every field with the achieved configuration.
type BitTiming struct {
	Bitrate     uint32 // bit/s
	SamplePoint uint32 // permille
	TQ          uint32 // time quantum in ns
	PropSeg     uint32
	PhaseSeg1   uint32
	PhaseSeg2   uint32
	SJW         uint32
	BRP         uint32
}

// bitTime is the duration of one bit in time quanta.
func (bt *BitTiming) bitTime() uint32 {
	return syncSeg + bt.PropSeg + bt.PhaseSeg1 + bt.PhaseSeg2
}

var (
	// ErrBitrateUnreachable means no register combination gets within
	// 5% of the nominal bit-rate.
	ErrBitrateUnreachable = errors.New("bittiming: bitrate not reachable")

	// ErrParametersOutOfRange means user-supplied low-level parameters
	// violate the controller's limits.
	ErrParametersOutOfRange = errors.New("bittiming: parameters exceed controller range")

	// ErrUnknownAlgorithm is returned when an algorithm name does not
	// match any registered variant.
	ErrUnknownAlgorithm = errors.New("bittiming: unknown algorithm")
)

// CiASamplePoint returns the CiA recommended sample point in permille for
// a nominal bit-rate.
func CiASamplePoint(bitrate uint32) uint32 {
	switch {
	case bitrate > 800000:
		return 750
	case bitrate > 500000:
		return 800
	default:
		return 875
	}
}

// Algorithm is one solver variant. Calc computes bit timing from a nominal
// bit-rate; Fixup derives the effective bit-rate from user-supplied
// low-level parameters.
type Algorithm struct {
	Name  string
	Calc  func(c Const, clockHz uint32, bt *BitTiming) error
	Fixup func(c Const, clockHz uint32, bt *BitTiming) error
}

// algorithms lists the variants, newest first. The first entry is the
// default.
var algorithms = []Algorithm{
	{Name: "current", Calc: calcCurrent, Fixup: fixupCurrent},
	{Name: "v4.8", Calc: calcV48, Fixup: fixupCurrent},
	{Name: "legacy", Calc: calcLegacy, Fixup: fixupCurrent},
}

// Default returns the algorithm used when no variant is named.
func Default() Algorithm {
	return algorithms[0]
}

// ByName looks up an algorithm variant.
func ByName(name string) (Algorithm, error) {
	for _, a := range algorithms {
		if a.Name == name {
			return a, nil
		}
	}
	return Algorithm{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

// Algorithms returns the variant names, default first.
func Algorithms() []string {
	names := make([]string, len(algorithms))
	for i, a := range algorithms {
		names[i] = a.Name
	}
	return names
}

// Solve runs the default algorithm for the given constraints.
func Solve(c Const, clockHz, bitrate, samplePoint uint32) (BitTiming, error) {
	bt := BitTiming{Bitrate: bitrate, SamplePoint: samplePoint}
	if err := c.Validate(); err != nil {
		return BitTiming{}, err
	}
	if err := Default().Calc(c, clockHz, &bt); err != nil {
		return BitTiming{}, err
	}
	return bt, nil
}

// Evaluate validates user-supplied prop_seg/phase_seg/sjw/tq/brp values
// against the controller limits and fills in the effective bit-rate and
// sample point.
func Evaluate(c Const, clockHz uint32, bt BitTiming) (BitTiming, error) {
	if err := c.Validate(); err != nil {
		return BitTiming{}, err
	}
	if err := Default().Fixup(c, clockHz, &bt); err != nil {
		return BitTiming{}, err
	}
	return bt, nil
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
