package bittiming

import "fmt"

// fixupCurrent validates user-supplied prop_seg, phase_seg1, phase_seg2 and
// sjw against the controller limits, determines the prescaler from the time
// quantum when none is given, and derives the effective bit-rate and sample
// point.
func fixupCurrent(c Const, clockHz uint32, bt *BitTiming) error {
	if clockHz == 0 {
		return fmt.Errorf("%w: zero clock", ErrParametersOutOfRange)
	}

	tseg1 := bt.PropSeg + bt.PhaseSeg1
	if tseg1 < c.TSeg1Min || tseg1 > c.TSeg1Max {
		return fmt.Errorf("%w: prop-seg + phase-seg1 %d outside [%d, %d]",
			ErrParametersOutOfRange, tseg1, c.TSeg1Min, c.TSeg1Max)
	}
	if bt.PhaseSeg2 < c.TSeg2Min || bt.PhaseSeg2 > c.TSeg2Max {
		return fmt.Errorf("%w: phase-seg2 %d outside [%d, %d]",
			ErrParametersOutOfRange, bt.PhaseSeg2, c.TSeg2Min, c.TSeg2Max)
	}

	if bt.SJW == 0 {
		bt.SJW = max32(1, min32(bt.PhaseSeg1, bt.PhaseSeg2/2))
	}
	switch {
	case bt.SJW > c.SJWMax:
		return fmt.Errorf("%w: sjw %d greater than max sjw %d",
			ErrParametersOutOfRange, bt.SJW, c.SJWMax)
	case bt.SJW > bt.PhaseSeg1:
		return fmt.Errorf("%w: sjw %d greater than phase-seg1 %d",
			ErrParametersOutOfRange, bt.SJW, bt.PhaseSeg1)
	case bt.SJW > bt.PhaseSeg2:
		return fmt.Errorf("%w: sjw %d greater than phase-seg2 %d",
			ErrParametersOutOfRange, bt.SJW, bt.PhaseSeg2)
	}

	if bt.BRP == 0 {
		// Round the prescaler implied by tq to the closest value the
		// hardware can step to.
		brp64 := uint64(clockHz) * uint64(bt.TQ)
		if c.BRPInc > 1 {
			brp64 /= uint64(c.BRPInc)
		}
		brp64 = (brp64 + 500000000 - 1) / nsPerSec
		if c.BRPInc > 1 {
			brp64 *= uint64(c.BRPInc)
		}
		bt.BRP = uint32(brp64)
	}
	if bt.BRP < c.BRPMin || bt.BRP > c.BRPMax {
		return fmt.Errorf("%w: resulting brp %d outside [%d, %d]",
			ErrParametersOutOfRange, bt.BRP, c.BRPMin, c.BRPMax)
	}

	bitTime := bt.bitTime()
	bt.Bitrate = clockHz / (bt.BRP * bitTime)
	bt.SamplePoint = (syncSeg + tseg1) * 1000 / bitTime
	bt.TQ = uint32((uint64(bt.BRP)*nsPerSec + uint64(clockHz)/2) / uint64(clockHz))

	return nil
}
