package bittiming

// RefClock is one clock frequency a controller is commonly run at.
type RefClock struct {
	Hz      uint32
	Comment string
}

// Controller bundles a controller's arbitration-phase limits with the
// optional data-phase limits of FD parts and its known reference clocks.
type Controller struct {
	Const
	Data      *Const // FD data phase, nil for classical-only parts
	RefClocks []RefClock
}

// The registry is package data; callers get copies through Lookup and
// Controllers and cannot mutate it.
var controllers = []Controller{
	{
		Const: Const{
			Name:     "sja1000",
			TSeg1Min: 1, TSeg1Max: 16,
			TSeg2Min: 1, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 64, BRPInc: 1,
		},
		RefClocks: []RefClock{{Hz: 8000000}, {Hz: 12000000, Comment: "f81601"}},
	},
	{
		Const: Const{
			Name:     "mcp251x",
			TSeg1Min: 3, TSeg1Max: 16,
			TSeg2Min: 2, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 64, BRPInc: 1,
		},
		// The mcp251x runs on half the external oscillator clock.
		RefClocks: []RefClock{
			{Hz: 4000000, Comment: "8 MHz OSC"},
			{Hz: 6000000, Comment: "12 MHz OSC"},
			{Hz: 8000000, Comment: "16 MHz OSC"},
			{Hz: 10000000, Comment: "20 MHz OSC"},
		},
	},
	{
		Const: Const{
			Name:     "mcp251xfd",
			TSeg1Min: 2, TSeg1Max: 256,
			TSeg2Min: 1, TSeg2Max: 128,
			SJWMax: 128,
			BRPMin: 1, BRPMax: 256, BRPInc: 1,
		},
		Data: &Const{
			Name:     "mcp251xfd",
			TSeg1Min: 1, TSeg1Max: 32,
			TSeg2Min: 1, TSeg2Max: 16,
			SJWMax: 16,
			BRPMin: 1, BRPMax: 256, BRPInc: 1,
		},
		RefClocks: []RefClock{
			{Hz: 20000000, Comment: "CiA recommendation"},
			{Hz: 40000000, Comment: "CiA recommendation"},
		},
	},
	{
		Const: Const{
			Name:     "flexcan",
			TSeg1Min: 4, TSeg1Max: 16,
			TSeg2Min: 2, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 256, BRPInc: 1,
		},
		RefClocks: []RefClock{
			{Hz: 24000000, Comment: "mx28"},
			{Hz: 30000000, Comment: "mx6"},
			{Hz: 49875000},
			{Hz: 66000000},
			{Hz: 66500000, Comment: "mx25"},
			{Hz: 66666666},
			{Hz: 83368421, Comment: "vybrid"},
		},
	},
	{
		Const: Const{
			Name:     "flexcan-fd",
			TSeg1Min: 2, TSeg1Max: 96,
			TSeg2Min: 2, TSeg2Max: 32,
			SJWMax: 16,
			BRPMin: 1, BRPMax: 1024, BRPInc: 1,
		},
		Data: &Const{
			Name:     "flexcan-fd",
			TSeg1Min: 2, TSeg1Max: 39,
			TSeg2Min: 2, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 1024, BRPInc: 1,
		},
		RefClocks: []RefClock{
			{Hz: 20000000, Comment: "CiA recommendation"},
			{Hz: 40000000, Comment: "CiA recommendation"},
		},
	},
	{
		Const: Const{
			Name:     "bxcan",
			TSeg1Min: 1, TSeg1Max: 16,
			TSeg2Min: 1, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 1024, BRPInc: 1,
		},
		RefClocks: []RefClock{{Hz: 48000000}},
	},
	{
		Const: Const{
			Name:     "at91",
			TSeg1Min: 4, TSeg1Max: 16,
			TSeg2Min: 2, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 2, BRPMax: 128, BRPInc: 1,
		},
		RefClocks: []RefClock{
			{Hz: 99532800, Comment: "ronetix PM9263"},
			{Hz: 100000000},
		},
	},
	{
		Const: Const{
			Name:     "c_can",
			TSeg1Min: 2, TSeg1Max: 16,
			TSeg2Min: 1, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 1024, BRPInc: 1,
		},
		RefClocks: []RefClock{{Hz: 24000000}},
	},
	{
		Const: Const{
			Name:     "mcan-v3.0",
			TSeg1Min: 2, TSeg1Max: 64,
			TSeg2Min: 1, TSeg2Max: 16,
			SJWMax: 16,
			BRPMin: 1, BRPMax: 1024, BRPInc: 1,
		},
		Data: &Const{
			Name:     "mcan-v3.0",
			TSeg1Min: 2, TSeg1Max: 16,
			TSeg2Min: 1, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 32, BRPInc: 1,
		},
		RefClocks: []RefClock{
			{Hz: 20000000, Comment: "CiA recommendation"},
			{Hz: 40000000, Comment: "CiA recommendation"},
		},
	},
	{
		Const: Const{
			Name:     "mcan-v3.1+",
			TSeg1Min: 2, TSeg1Max: 256,
			TSeg2Min: 2, TSeg2Max: 128,
			SJWMax: 128,
			BRPMin: 1, BRPMax: 512, BRPInc: 1,
		},
		Data: &Const{
			Name:     "mcan-v3.1+",
			TSeg1Min: 1, TSeg1Max: 32,
			TSeg2Min: 1, TSeg2Max: 16,
			SJWMax: 16,
			BRPMin: 1, BRPMax: 32, BRPInc: 1,
		},
		RefClocks: []RefClock{
			{Hz: 20000000, Comment: "CiA recommendation"},
			{Hz: 40000000, Comment: "CiA recommendation"},
			{Hz: 24000000, Comment: "stm32mp1 ck_hse"},
			{Hz: 74250000, Comment: "stm32mp1 pll4_r"},
		},
	},
	{
		Const: Const{
			Name:     "ti_hecc",
			TSeg1Min: 1, TSeg1Max: 16,
			TSeg2Min: 1, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 256, BRPInc: 1,
		},
		RefClocks: []RefClock{{Hz: 13000000}},
	},
	{
		Const: Const{
			Name:     "rcar_can",
			TSeg1Min: 4, TSeg1Max: 16,
			TSeg2Min: 2, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 1024, BRPInc: 1,
		},
		RefClocks: []RefClock{{Hz: 65000000}},
	},
	{
		Const: Const{
			Name:     "kvaser_usb",
			TSeg1Min: 1, TSeg1Max: 16,
			TSeg2Min: 1, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 64, BRPInc: 1,
		},
		RefClocks: []RefClock{{Hz: 8000000}},
	},
	{
		Const: Const{
			Name:     "ems_usb",
			TSeg1Min: 1, TSeg1Max: 16,
			TSeg2Min: 1, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 64, BRPInc: 1,
		},
		RefClocks: []RefClock{{Hz: 8000000}},
	},
	{
		Const: Const{
			Name:     "usb_8dev",
			TSeg1Min: 1, TSeg1Max: 16,
			TSeg2Min: 1, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 1024, BRPInc: 1,
		},
		RefClocks: []RefClock{{Hz: 32000000}},
	},
	{
		Const: Const{
			Name:     "peak_canfd",
			TSeg1Min: 1, TSeg1Max: 256,
			TSeg2Min: 1, TSeg2Max: 128,
			SJWMax: 128,
			BRPMin: 1, BRPMax: 1024, BRPInc: 1,
		},
		Data: &Const{
			Name:     "peak_canfd",
			TSeg1Min: 1, TSeg1Max: 32,
			TSeg2Min: 1, TSeg2Max: 16,
			SJWMax: 16,
			BRPMin: 1, BRPMax: 1024, BRPInc: 1,
		},
		RefClocks: []RefClock{
			{Hz: 20000000}, {Hz: 24000000}, {Hz: 30000000},
			{Hz: 40000000}, {Hz: 60000000}, {Hz: 80000000},
		},
	},
	{
		Const: Const{
			Name:     "xilinx_can",
			TSeg1Min: 1, TSeg1Max: 16,
			TSeg2Min: 1, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 256, BRPInc: 1,
		},
	},
	{
		Const: Const{
			Name:     "hi311x",
			TSeg1Min: 2, TSeg1Max: 16,
			TSeg2Min: 2, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 64, BRPInc: 1,
		},
		RefClocks: []RefClock{{Hz: 24000000}},
	},
	{
		Const: Const{
			Name:     "mscan",
			TSeg1Min: 4, TSeg1Max: 16,
			TSeg2Min: 2, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 64, BRPInc: 1,
		},
		RefClocks: []RefClock{
			{Hz: 32000000}, {Hz: 33000000}, {Hz: 33300000},
			{Hz: 33333333}, {Hz: 66660000, Comment: "mpc5121"},
		},
	},
	{
		Const: Const{
			Name:     "cc770",
			TSeg1Min: 1, TSeg1Max: 16,
			TSeg2Min: 1, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 64, BRPInc: 1,
		},
		RefClocks: []RefClock{{Hz: 8000000}},
	},
	{
		Const: Const{
			Name:     "softing",
			TSeg1Min: 1, TSeg1Max: 16,
			TSeg2Min: 1, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 32, BRPInc: 1,
		},
		RefClocks: []RefClock{{Hz: 8000000}, {Hz: 16000000}},
	},
	{
		Const: Const{
			Name:     "grcan",
			TSeg1Min: 2, TSeg1Max: 16,
			TSeg2Min: 2, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 256, BRPInc: 1,
		},
	},
}

// Lookup returns the named controller's limits, by nominal-phase name.
func Lookup(name string) (Controller, bool) {
	for _, c := range controllers {
		if c.Name == name {
			return c, true
		}
	}
	return Controller{}, false
}

// Controllers returns a copy of the registry.
func Controllers() []Controller {
	out := make([]Controller, len(controllers))
	copy(out, controllers)
	return out
}

// CommonBitrates is the sweep used when no bit-rate is given.
var CommonBitrates = []uint32{
	1000000, 800000, 666666, 500000, 250000, 125000,
	100000, 83333, 50000, 33333, 20000, 10000,
}

// CommonDataBitrates is the FD data-phase sweep.
var CommonDataBitrates = []uint32{
	12000000, 10000000, 8000000, 5000000, 4000000, 2000000, 1000000,
}
