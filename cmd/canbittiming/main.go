// canbittiming prints CAN bit-timing register settings for the known
// controllers, in the manner of the kernel's calculation: best bit-rate
// match first, best sample point second.
//
// Without -bitrate the tool sweeps the common CiA rates. With low-level
// parameters (-tq, -prop-seg, ...) it runs the inverse direction and
// reports the effective bit-rate they produce.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/LoveWonYoung/cantool/bittiming"
)

// registerFormatter renders one controller's register encoding of a
// solved timing. The encodings live here, not in the solver: they are a
// property of the chip's programming model, not of the search.
type registerFormatter struct {
	header string
	format func(bt bittiming.BitTiming) string
}

var formatters = map[string]registerFormatter{
	"sja1000": {
		header: "BTR0 BTR1",
		format: func(bt bittiming.BitTiming) string {
			tseg1 := bt.PropSeg + bt.PhaseSeg1
			btr0 := (bt.BRP-1)&0x3F | ((bt.SJW-1)&0x3)<<6
			btr1 := (tseg1-1)&0xF | ((bt.PhaseSeg2-1)&0x7)<<4
			return fmt.Sprintf("0x%02X 0x%02X", btr0, btr1)
		},
	},
	"mcp251x": {
		header: "CNF1 CNF2 CNF3",
		format: func(bt bittiming.BitTiming) string {
			cnf1 := (bt.SJW-1)<<6 | (bt.BRP - 1)
			cnf2 := 0x80 | (bt.PhaseSeg1-1)<<3 | (bt.PropSeg - 1)
			cnf3 := bt.PhaseSeg2 - 1
			return fmt.Sprintf("0x%02X 0x%02X 0x%02X", cnf1, cnf2, cnf3)
		},
	},
	"bxcan": {
		header: "CAN_BTR",
		format: func(bt bittiming.BitTiming) string {
			tseg1 := bt.PropSeg + bt.PhaseSeg1
			btr := (bt.SJW-1)<<24 | (bt.PhaseSeg2-1)<<20 | (tseg1-1)<<16 | (bt.BRP - 1)
			return fmt.Sprintf("0x%08X", btr)
		},
	},
	"at91": {
		header: "CAN_BR",
		format: func(bt bittiming.BitTiming) string {
			br := (bt.BRP-1)<<16 | (bt.SJW-1)<<12 | (bt.PropSeg-1)<<8 |
				(bt.PhaseSeg1-1)<<4 | (bt.PhaseSeg2 - 1)
			return fmt.Sprintf("0x%08X", br)
		},
	},
}

func listControllers() {
	fmt.Println("Known controllers:")
	for _, c := range bittiming.Controllers() {
		fmt.Printf("  %-12s", c.Name)
		for _, rc := range c.RefClocks {
			if rc.Comment != "" {
				fmt.Printf("  %.6f MHz (%s)", float64(rc.Hz)/1e6, rc.Comment)
			} else {
				fmt.Printf("  %.6f MHz", float64(rc.Hz)/1e6)
			}
		}
		fmt.Println()
	}
}

func printHeader(name string, clockHz uint32, regHeader string) {
	fmt.Printf("Bit timing parameters for %s with %.6f MHz ref clock\n",
		name, float64(clockHz)/1e6)
	fmt.Printf(" nominal  sp      real  err     tq  prop seg1 seg2 sjw brp")
	if regHeader != "" {
		fmt.Printf("  %s", regHeader)
	}
	fmt.Println()
}

func printRow(nominal uint32, bt bittiming.BitTiming, regs string) {
	err := 100 * (float64(bt.Bitrate) - float64(nominal)) / float64(nominal)
	fmt.Printf("%8d %2d.%d%% %8d %+5.1f%% %5d  %3d %4d %4d %3d %3d",
		nominal, bt.SamplePoint/10, bt.SamplePoint%10,
		bt.Bitrate, err, bt.TQ,
		bt.PropSeg, bt.PhaseSeg1, bt.PhaseSeg2, bt.SJW, bt.BRP)
	if regs != "" {
		fmt.Printf("  %s", regs)
	}
	fmt.Println()
}

func solveTable(ctrl bittiming.Controller, clockHz uint32, alg bittiming.Algorithm,
	bitrate, samplePoint, sjw uint32) {

	fmtr := formatters[ctrl.Name]
	printHeader(ctrl.Name, clockHz, fmtr.header)

	rates := bittiming.CommonBitrates
	if bitrate != 0 {
		rates = []uint32{bitrate}
	}
	for _, rate := range rates {
		bt := bittiming.BitTiming{Bitrate: rate, SamplePoint: samplePoint, SJW: sjw}
		if err := alg.Calc(ctrl.Const, clockHz, &bt); err != nil {
			fmt.Printf("%8d  ***  %v\n", rate, err)
			continue
		}
		regs := ""
		if fmtr.format != nil {
			regs = fmtr.format(bt)
		}
		printRow(rate, bt, regs)
	}
	fmt.Println()
}

func evaluateTable(ctrl bittiming.Controller, clockHz uint32, bt bittiming.BitTiming) {
	out, err := bittiming.Evaluate(ctrl.Const, clockHz, bt)
	if err != nil {
		log.Fatalf("canbittiming: %s: %v", ctrl.Name, err)
	}
	fmtr := formatters[ctrl.Name]
	printHeader(ctrl.Name, clockHz, fmtr.header)
	regs := ""
	if fmtr.format != nil {
		regs = fmtr.format(out)
	}
	printRow(out.Bitrate, out, regs)
	fmt.Println()
}

func main() {
	list := flag.Bool("l", false, "list known controllers and their reference clocks")
	name := flag.String("c", "", "controller name (default: all)")
	algName := flag.String("alg", "", "algorithm variant (default: newest)")
	clock := flag.Uint("clock", 0, "ref clock in Hz (default: the controller's known clocks)")
	bitrate := flag.Uint("bitrate", 0, "nominal bitrate in bit/s (default: sweep common rates)")
	spt := flag.Uint("samplepoint", 0, "nominal sample point in permille (default: CiA recommendation)")
	sjw := flag.Uint("sjw", 0, "synchronisation jump width in tq")

	tq := flag.Uint("tq", 0, "time quantum in ns (low-level mode)")
	propSeg := flag.Uint("prop-seg", 0, "propagation segment in tq (low-level mode)")
	phaseSeg1 := flag.Uint("phase-seg1", 0, "phase segment 1 in tq (low-level mode)")
	phaseSeg2 := flag.Uint("phase-seg2", 0, "phase segment 2 in tq (low-level mode)")
	brp := flag.Uint("brp", 0, "bit-rate prescaler (low-level mode)")
	flag.Parse()

	if *list {
		listControllers()
		return
	}

	alg := bittiming.Default()
	if *algName != "" {
		var err error
		alg, err = bittiming.ByName(*algName)
		if err != nil {
			log.Fatalf("canbittiming: %v (have: %v)", err, bittiming.Algorithms())
		}
	}

	var ctrls []bittiming.Controller
	if *name != "" {
		ctrl, ok := bittiming.Lookup(*name)
		if !ok {
			log.Fatalf("canbittiming: unknown controller %q, try -l", *name)
		}
		ctrls = []bittiming.Controller{ctrl}
	} else {
		ctrls = bittiming.Controllers()
	}

	lowLevel := *propSeg != 0 || *phaseSeg1 != 0 || *phaseSeg2 != 0 || *tq != 0 || *brp != 0
	if lowLevel && *name == "" {
		log.Fatal("canbittiming: low-level parameters need an explicit -c controller")
	}

	for _, ctrl := range ctrls {
		clocks := make([]uint32, 0, 2)
		if *clock != 0 {
			clocks = append(clocks, uint32(*clock))
		} else {
			for _, rc := range ctrl.RefClocks {
				clocks = append(clocks, rc.Hz)
			}
		}
		if len(clocks) == 0 {
			fmt.Fprintf(os.Stderr, "%s: no known ref clock, pass -clock\n", ctrl.Name)
			continue
		}

		for _, clockHz := range clocks {
			if lowLevel {
				evaluateTable(ctrl, clockHz, bittiming.BitTiming{
					TQ:        uint32(*tq),
					PropSeg:   uint32(*propSeg),
					PhaseSeg1: uint32(*phaseSeg1),
					PhaseSeg2: uint32(*phaseSeg2),
					SJW:       uint32(*sjw),
					BRP:       uint32(*brp),
				})
				continue
			}
			solveTable(ctrl, clockHz, alg, uint32(*bitrate), uint32(*spt), uint32(*sjw))
		}
	}
}
