// canbusload measures how much of the configured bit-rate each CAN
// interface actually carries. Frame lengths come from the wire-level bit
// calculator, so the reported load can include stuff bits.
//
// Usage:
//
//	canbusload [options] <interface>@<bitrate> ...
//
// Example:
//
//	canbusload -exact -bar can0@500000 can1@250000
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/LoveWonYoung/cantool/driver"
	"github.com/LoveWonYoung/cantool/framelen"
)

const barWidth = 35

type busStats struct {
	Interface string `json:"interface"`
	Bitrate   uint32 `json:"bitrate"`
	Frames    uint64 `json:"frames"`
	Bits      uint64 `json:"bits"`
	LoadPct   uint64 `json:"load_percent"`
}

// monitor accumulates one reporting window for one interface.
type monitor struct {
	mu      sync.Mutex
	ifName  string
	bitrate uint32
	mode    framelen.Mode

	frames uint64
	bits   uint64
	last   busStats
}

func (m *monitor) account(msg driver.UnifiedCANMessage) {
	mtu := framelen.CANMTU
	if msg.IsFD {
		mtu = framelen.CANFDMTU
	}
	f := framelen.Frame{
		ID:       msg.ID,
		Extended: msg.IsExtended,
		RTR:      msg.IsRTR,
	}
	if !msg.IsFD {
		f.DLC = msg.Length
		copy(f.Data[:], msg.Payload())
	}
	bits, err := framelen.FrameBits(f, m.mode, mtu)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.frames++
	m.bits += uint64(bits)
	m.mu.Unlock()
}

// flush closes the current window and returns its totals.
func (m *monitor) flush() busStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := busStats{
		Interface: m.ifName,
		Bitrate:   m.bitrate,
		Frames:    m.frames,
		Bits:      m.bits,
	}
	if m.bitrate > 0 {
		s.LoadPct = s.Bits * 100 / uint64(m.bitrate)
	}
	m.frames, m.bits = 0, 0
	m.last = s
	return s
}

func (m *monitor) snapshot() busStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func parseSpec(spec string) (string, uint32, error) {
	name, rate, ok := strings.Cut(spec, "@")
	if !ok || name == "" {
		return "", 0, fmt.Errorf("expected <interface>@<bitrate>, got %q", spec)
	}
	bitrate, err := strconv.ParseUint(rate, 10, 32)
	if err != nil || bitrate == 0 {
		return "", 0, fmt.Errorf("bad bitrate in %q", spec)
	}
	return name, uint32(bitrate), nil
}

func bargraph(pct uint64) string {
	fill := int(pct) * barWidth / 100
	if fill > barWidth {
		fill = barWidth
	}
	return "|" + strings.Repeat("X", fill) + strings.Repeat(".", barWidth-fill) + "|"
}

func statsHandler(monitors []*monitor) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		out := make([]busStats, 0, len(monitors))
		for _, m := range monitors {
			out = append(out, m.snapshot())
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			log.Printf("canbusload: encode stats: %v", err)
		}
	}
}

func main() {
	exact := flag.Bool("exact", false, "count the stuff bits that actually occur")
	noStuff := flag.Bool("nostuff", false, "ignore bit stuffing entirely")
	bar := flag.Bool("bar", false, "print a load bargraph per interface")
	showTime := flag.Bool("time", false, "prefix each report with a timestamp")
	interval := flag.Duration("interval", time.Second, "reporting window")
	httpAddr := flag.String("http", "", "serve JSON stats on this address (e.g. :8080)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [options] <interface>@<bitrate> ...\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	mode := framelen.WorstCase
	switch {
	case *exact && *noStuff:
		log.Fatal("canbusload: -exact and -nostuff are mutually exclusive")
	case *exact:
		mode = framelen.Exact
	case *noStuff:
		mode = framelen.NoBitStuffing
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var monitors []*monitor
	for _, spec := range flag.Args() {
		name, bitrate, err := parseSpec(spec)
		if err != nil {
			log.Fatalf("canbusload: %v", err)
		}
		m := &monitor{ifName: name, bitrate: bitrate, mode: mode}
		monitors = append(monitors, m)

		dev := driver.NewSocketCAN(name, driver.CANFD)
		if err := dev.Init(); err != nil {
			log.Fatalf("canbusload: %v", err)
		}
		dev.Start()
		defer dev.Stop()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-dev.RxChan():
					if !ok {
						return
					}
					m.account(msg)
				}
			}
		}()
	}

	if *httpAddr != "" {
		router := httprouter.New()
		router.GET("/stats", statsHandler(monitors))
		go func() {
			if err := http.ListenAndServe(*httpAddr, router); err != nil {
				log.Fatalf("canbusload: http server: %v", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-sig:
			return
		case <-ticker.C:
			if *showTime {
				fmt.Printf("%s\n", time.Now().Format("2006-01-02 15:04:05"))
			}
			for _, m := range monitors {
				s := m.flush()
				fmt.Printf(" %s@%d %5d %7d %3d%%", s.Interface, s.Bitrate, s.Frames, s.Bits, s.LoadPct)
				if *bar {
					fmt.Printf("  %s", bargraph(s.LoadPct))
				}
				fmt.Println()
			}
		}
	}
}
