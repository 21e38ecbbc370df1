package bittiming

// The solver variants below mirror the historical evolution of the kernel
// calculation. All of them walk tseg = tseg1 + tseg2 from the largest to
// the smallest value supported by the controller, in half-integer steps
// encoded by doubling, derive a prescaler candidate for each, and keep the
// combination with the smallest bit-rate error. They differ in how and when
// the sample-point error participates in the decision:
//
//	current - sample-point error evaluated on every candidate; ties on
//	          sample-point error are rejected; SJW defaults to
//	          max(1, min(phase_seg1, phase_seg2/2))
//	v4.8    - as current, but ties on sample-point error are accepted
//	          and SJW defaults to 1
//	legacy  - sample point only refined once the bit-rate matches
//	          exactly, with a single rounding candidate

const uintMax = ^uint32(0)

// updateSamplePoint splits tseg into (tseg1, tseg2) so that the resulting
// sample point comes as close to the nominal as possible without exceeding
// it. Two rounding candidates are tried.
func updateSamplePoint(c Const, sptNominal, tseg uint32) (spt, tseg1, tseg2, sptErr uint32) {
	sptErr = uintMax
	for i := 0; i <= 1; i++ {
		t2 := int(tseg) + syncSeg - int(sptNominal)*(int(tseg)+syncSeg)/1000 - i
		if t2 < 0 {
			t2 = 0
		}
		ct2 := clamp(uint32(t2), c.TSeg2Min, c.TSeg2Max)
		ct1 := tseg - ct2
		if ct1 > c.TSeg1Max {
			ct1 = c.TSeg1Max
			ct2 = tseg - ct1
		}

		cspt := 1000 * (tseg + syncSeg - ct2) / (tseg + syncSeg)
		cerr := absDiff(sptNominal, cspt)

		if cspt <= sptNominal && cerr < sptErr {
			spt, sptErr = cspt, cerr
			tseg1, tseg2 = ct1, ct2
		}
	}
	return spt, tseg1, tseg2, sptErr
}

// calcSearch is the shared search loop. rejectSptTies selects between the
// current (>=) and v4.8 (>) acceptance of equal sample-point errors.
func calcSearch(c Const, clockHz uint32, bt *BitTiming, rejectSptTies bool) (bestTseg, bestBRP, sptNominal uint32, err error) {
	if clockHz == 0 || bt.Bitrate == 0 {
		return 0, 0, 0, ErrBitrateUnreachable
	}
	sptNominal = bt.SamplePoint
	if sptNominal == 0 {
		sptNominal = CiASamplePoint(bt.Bitrate)
	}

	bestBitrateError := uintMax
	bestSptError := uintMax

	// tseg even = round brp down, odd = round up
	for tseg := int(c.TSeg1Max+c.TSeg2Max)*2 + 1; tseg >= int(c.TSeg1Min+c.TSeg2Min)*2; tseg-- {
		tsegall := uint32(syncSeg + tseg/2)

		brp := clockHz/(tsegall*bt.Bitrate) + uint32(tseg%2)
		brp = brp / c.BRPInc * c.BRPInc
		if brp < c.BRPMin || brp > c.BRPMax {
			continue
		}

		bitrate := clockHz / (brp * tsegall)
		bitrateError := absDiff(bt.Bitrate, bitrate)
		if bitrateError > bestBitrateError {
			continue
		}
		// A better bitrate voids the previous sample-point error.
		if bitrateError < bestBitrateError {
			bestSptError = uintMax
		}

		_, _, _, sptError := updateSamplePoint(c, sptNominal, uint32(tseg/2))
		if rejectSptTies {
			if sptError >= bestSptError {
				continue
			}
		} else if sptError > bestSptError {
			continue
		}

		bestSptError = sptError
		bestBitrateError = bitrateError
		bestTseg = uint32(tseg / 2)
		bestBRP = brp

		if bitrateError == 0 && sptError == 0 {
			break
		}
	}

	if bestBitrateError != 0 {
		errorPermille := uint32(uint64(bestBitrateError) * 1000 / uint64(bt.Bitrate))
		if errorPermille > maxBitrateError {
			return 0, 0, 0, ErrBitrateUnreachable
		}
	}
	return bestTseg, bestBRP, sptNominal, nil
}

// fill completes the result record from the winning (tseg, brp) pair.
func fill(c Const, clockHz uint32, bt *BitTiming, bestTseg, bestBRP, sptNominal uint32) {
	spt, tseg1, tseg2, _ := updateSamplePoint(c, sptNominal, bestTseg)
	bt.SamplePoint = spt
	bt.TQ = uint32(uint64(bestBRP) * nsPerSec / uint64(clockHz))
	bt.PropSeg = tseg1 / 2
	bt.PhaseSeg1 = tseg1 - bt.PropSeg
	bt.PhaseSeg2 = tseg2
	bt.BRP = bestBRP
	bt.Bitrate = clockHz / (bestBRP * (syncSeg + tseg1 + tseg2))
}

func calcCurrent(c Const, clockHz uint32, bt *BitTiming) error {
	bestTseg, bestBRP, sptNominal, err := calcSearch(c, clockHz, bt, true)
	if err != nil {
		return err
	}
	fill(c, clockHz, bt, bestTseg, bestBRP, sptNominal)

	if bt.SJW == 0 {
		bt.SJW = max32(1, min32(bt.PhaseSeg1, bt.PhaseSeg2/2))
	}
	bt.SJW = min32(min32(bt.SJW, c.SJWMax), min32(bt.PhaseSeg1, bt.PhaseSeg2))
	return nil
}

func calcV48(c Const, clockHz uint32, bt *BitTiming) error {
	bestTseg, bestBRP, sptNominal, err := calcSearch(c, clockHz, bt, false)
	if err != nil {
		return err
	}
	fill(c, clockHz, bt, bestTseg, bestBRP, sptNominal)

	sjwFixupOld(c, bt)
	return nil
}

// sjwFixupOld applies the pre-v6.3 SJW default and clamping.
func sjwFixupOld(c Const, bt *BitTiming) {
	if bt.SJW == 0 || c.SJWMax == 0 {
		bt.SJW = 1
		return
	}
	if bt.SJW > c.SJWMax {
		bt.SJW = c.SJWMax
	}
	if bt.SJW > bt.PhaseSeg2 {
		bt.SJW = bt.PhaseSeg2
	}
}

// legacyUpdateSamplePoint is the v3.18 split: one rounding candidate and no
// restriction to sample points at or below the nominal.
func legacyUpdateSamplePoint(c Const, sptNominal, tseg uint32) (spt, tseg1, tseg2 uint32) {
	t2 := int(tseg) + syncSeg - int(sptNominal)*(int(tseg)+syncSeg)/1000
	if t2 < 0 {
		t2 = 0
	}
	tseg2 = clamp(uint32(t2), c.TSeg2Min, c.TSeg2Max)
	tseg1 = tseg - tseg2
	if tseg1 > c.TSeg1Max {
		tseg1 = c.TSeg1Max
		tseg2 = tseg - tseg1
	}
	spt = 1000 * (tseg + syncSeg - tseg2) / (tseg + syncSeg)
	return spt, tseg1, tseg2
}

func calcLegacy(c Const, clockHz uint32, bt *BitTiming) error {
	if clockHz == 0 || bt.Bitrate == 0 {
		return ErrBitrateUnreachable
	}
	sptNominal := bt.SamplePoint
	if sptNominal == 0 {
		sptNominal = CiASamplePoint(bt.Bitrate)
	}

	bestError := uintMax
	sptError := uintMax
	var bestTseg, bestBRP uint32

	for tseg := int(c.TSeg1Max+c.TSeg2Max)*2 + 1; tseg >= int(c.TSeg1Min+c.TSeg2Min)*2; tseg-- {
		tsegall := uint32(syncSeg + tseg/2)
		brp := clockHz/(tsegall*bt.Bitrate) + uint32(tseg%2)
		brp = brp / c.BRPInc * c.BRPInc
		if brp < c.BRPMin || brp > c.BRPMax {
			continue
		}

		rate := clockHz / (brp * tsegall)
		err := absDiff(bt.Bitrate, rate)
		if err > bestError {
			continue
		}
		bestError = err

		// Sample point only matters between exact bit-rate matches.
		if err == 0 {
			spt, _, _ := legacyUpdateSamplePoint(c, sptNominal, uint32(tseg/2))
			err = absDiff(sptNominal, spt)
			if err > sptError {
				continue
			}
			sptError = err
		}
		bestTseg = uint32(tseg / 2)
		bestBRP = brp
		if err == 0 {
			break
		}
	}

	if bestError != 0 {
		errorPermille := uint32(uint64(bestError) * 1000 / uint64(bt.Bitrate))
		if errorPermille > maxBitrateError {
			return ErrBitrateUnreachable
		}
	}

	spt, tseg1, tseg2 := legacyUpdateSamplePoint(c, sptNominal, bestTseg)
	bt.SamplePoint = spt
	bt.TQ = uint32(uint64(bestBRP) * nsPerSec / uint64(clockHz))
	bt.PropSeg = tseg1 / 2
	bt.PhaseSeg1 = tseg1 - bt.PropSeg
	bt.PhaseSeg2 = tseg2
	bt.BRP = bestBRP
	bt.Bitrate = clockHz / (bestBRP * (syncSeg + tseg1 + tseg2))

	sjwFixupOld(c, bt)
	return nil
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
