// isotprecv receives ISO-TP PDUs on a CAN interface and prints each one
// as a hex dump line.
//
// Example:
//
//	isotprecv -tx 7A2 -rx 712 -bs 8 -stmin 5ms can0
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/LoveWonYoung/cantool/driver"
	"github.com/LoveWonYoung/cantool/tp_layer"
)

func parseCANID(s string) uint32 {
	id, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 32)
	if err != nil {
		log.Fatalf("isotprecv: bad CAN id %q", s)
	}
	return uint32(id)
}

func buildAddress(mode string, txID, rxID uint32, ta, sa, ae uint) (*tp_layer.Address, error) {
	var m tp_layer.AddressingMode
	switch mode {
	case "normal11":
		m = tp_layer.Normal11Bit
	case "normal29":
		m = tp_layer.Normal29Bit
	case "fixed":
		m = tp_layer.NormalFixed29Bit
	case "ext11":
		m = tp_layer.Extended11Bit
	case "ext29":
		m = tp_layer.Extended29Bit
	case "mixed11":
		m = tp_layer.Mixed11Bit
	case "mixed29":
		m = tp_layer.Mixed29Bit
	default:
		return nil, fmt.Errorf("unknown addressing mode %q", mode)
	}
	return tp_layer.NewAddress(m,
		tp_layer.WithTxID(txID),
		tp_layer.WithRxID(rxID),
		tp_layer.WithTargetAddress(byte(ta)),
		tp_layer.WithSourceAddress(byte(sa)),
		tp_layer.WithAddressExtension(byte(ae)),
	)
}

func main() {
	txIDStr := flag.String("tx", "", "transmit CAN id for flow control (hex)")
	rxIDStr := flag.String("rx", "", "receive CAN id (hex)")
	mode := flag.String("mode", "normal11", "addressing: normal11 normal29 fixed ext11 ext29 mixed11 mixed29")
	ta := flag.Uint("ta", 0, "target address octet (fixed/ext/mixed modes)")
	sa := flag.Uint("sa", 0, "source address octet (fixed/ext/mixed modes)")
	ae := flag.Uint("ae", 0, "address extension octet (mixed modes)")

	padStr := flag.String("pad", "", "pad flow-control frames with this byte (hex)")
	lenCheck := flag.Bool("lencheck", false, "require incoming frames to be padded to full length")
	contentCheck := flag.Bool("contentcheck", false, "also require the expected padding byte value")
	bs := flag.Int("bs", 0, "advertised block size, 0 means no limit")
	stmin := flag.Duration("stmin", 0, "advertised minimum CF separation")
	maxLen := flag.Int("maxlen", 0, "reject incoming PDUs above this size")

	fd := flag.Bool("fd", false, "CAN FD frames")
	txdl := flag.Int("txdl", 0, "tx frame payload size (FD: up to 64)")
	loops := flag.Int("loops", 0, "exit after this many PDUs, 0 means run forever")
	trace := flag.Bool("trace", false, "log every received raw frame")
	flag.Parse()

	if flag.NArg() != 1 || *txIDStr == "" || *rxIDStr == "" {
		fmt.Fprintf(os.Stderr, "usage: %s [options] -tx <id> -rx <id> <interface>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	ifName := flag.Arg(0)

	addr, err := buildAddress(*mode, parseCANID(*txIDStr), parseCANID(*rxIDStr), *ta, *sa, *ae)
	if err != nil {
		log.Fatalf("isotprecv: %v", err)
	}

	cfg := tp_layer.DefaultConfig()
	cfg.BlockSize = *bs
	cfg.StMin = *stmin
	cfg.LengthCheck = *lenCheck
	cfg.ContentCheck = *contentCheck
	if *maxLen > 0 {
		cfg.MaxSDULength = *maxLen
	}
	if *padStr != "" {
		b, err := strconv.ParseUint(strings.TrimPrefix(*padStr, "0x"), 16, 8)
		if err != nil {
			log.Fatalf("isotprecv: bad pad byte %q", *padStr)
		}
		cfg.PaddingByte = tp_layer.Pad(byte(b))
	}
	canType := driver.CAN
	if *fd {
		canType = driver.CANFD
		cfg.TxDataLength = 64
	}
	if *txdl > 0 {
		cfg.TxDataLength = *txdl
	}

	tp, err := tp_layer.NewTransport(addr, cfg)
	if err != nil {
		log.Fatalf("isotprecv: %v", err)
	}

	adapter, err := driver.NewAdapter(driver.NewSocketCAN(ifName, canType))
	if err != nil {
		log.Fatalf("isotprecv: %v", err)
	}
	adapter.SetTrace(*trace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	adapter.Run(ctx)
	go tp.Run(ctx, adapter.RxChan(), adapter.TxChan())
	go func() {
		for err := range tp.ErrorChan {
			log.Printf("isotprecv: transfer error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	received := 0
	for {
		select {
		case <-sig:
			return
		case sdu := <-tp.RecvChan():
			var sb strings.Builder
			for i, b := range sdu {
				if i > 0 {
					sb.WriteByte(' ')
				}
				fmt.Fprintf(&sb, "%02X", b)
			}
			fmt.Println(sb.String())

			received++
			if *loops > 0 && received >= *loops {
				return
			}
		}
	}
}
