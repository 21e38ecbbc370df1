// isotpsend transmits ISO-TP PDUs on a CAN interface.
//
// The payload comes from -data (hex string), from -image (an Intel HEX,
// S-record or raw binary file, sent block by block), or from stdin.
//
// Examples:
//
//	echo "DE AD BE EF" | isotpsend -tx 712 -rx 7A2 can0
//	isotpsend -tx 712 -rx 7A2 -fd -image fw.hex -block 4095 can0
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LoveWonYoung/cantool/driver"
	"github.com/LoveWonYoung/cantool/services"
	"github.com/LoveWonYoung/cantool/tp_layer"
)

func parseCANID(s string) uint32 {
	id, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 32)
	if err != nil {
		log.Fatalf("isotpsend: bad CAN id %q", s)
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

func loadPayloads(dataHex, imagePath string, blockSize int) ([][]byte, error) {
	switch {
	case dataHex != "":
		clean := strings.NewReplacer(" ", "", "\t", "", ".", "").Replace(dataHex)
		raw, err := hex.DecodeString(clean)
		if err != nil {
			return nil, fmt.Errorf("bad hex payload: %w", err)
		}
		return [][]byte{raw}, nil

	case imagePath != "":
		im, err := services.LoadFile(imagePath)
		if err != nil {
			return nil, err
		}
		var payloads [][]byte
		for _, seg := range im.Segments {
			payloads = append(payloads, services.SplitBlocks(seg.Data, blockSize)...)
		}
		log.Printf("isotpsend: image %s: %d bytes in %d blocks",
			imagePath, im.TotalBytes(), len(payloads))
		return payloads, nil

	default:
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			return nil, fmt.Errorf("empty payload on stdin")
		}
		return [][]byte{raw}, nil
	}
}

func main() {
	txIDStr := flag.String("tx", "", "transmit CAN id (hex)")
	rxIDStr := flag.String("rx", "", "receive CAN id (hex)")
	mode := flag.String("mode", "normal11", "addressing: normal11 normal29 fixed ext11 ext29 mixed11 mixed29")
	ta := flag.Uint("ta", 0, "target address octet (fixed/ext/mixed modes, hexless byte)")
	sa := flag.Uint("sa", 0, "source address octet (fixed/ext/mixed modes)")
	ae := flag.Uint("ae", 0, "address extension octet (mixed modes)")

	padStr := flag.String("pad", "", "pad frames with this byte (hex)")
	bs := flag.Int("bs", 0, "advertised block size, 0 means no limit")
	stmin := flag.Duration("stmin", 0, "advertised minimum CF separation")
	wft := flag.Int("wft", 0, "max FC.WAIT frames tolerated")
	frameTxTime := flag.Duration("frame-txtime", 0, "minimum spacing between our own frames")
	half := flag.Bool("half", false, "half duplex: defer sends while receiving")

	fd := flag.Bool("fd", false, "CAN FD frames")
	brs := flag.Bool("brs", false, "request bit-rate switch on FD frames")
	txdl := flag.Int("txdl", 0, "tx frame payload size (FD: up to 64)")

	dataHex := flag.String("data", "", "payload as a hex string")
	imagePath := flag.String("image", "", "firmware image file to stream")
	blockSize := flag.Int("block", 4095, "image block size per PDU")
	loops := flag.Int("loops", 1, "number of send rounds")
	gap := flag.Duration("gap", 0, "pause between rounds")
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
		log.Fatalf("isotpsend: %v", err)
	}

	cfg := tp_layer.DefaultConfig()
	cfg.WaitTxDone = true
	cfg.BlockSize = *bs
	cfg.StMin = *stmin
	cfg.HalfDuplex = *half
	if *wft > 0 {
		cfg.MaxWaitFrame = *wft
	}
	if *frameTxTime > 0 {
		cfg.FrameTxTime = *frameTxTime
	}
	if *padStr != "" {
		b, err := strconv.ParseUint(strings.TrimPrefix(*padStr, "0x"), 16, 8)
		if err != nil {
			log.Fatalf("isotpsend: bad pad byte %q", *padStr)
		}
		cfg.PaddingByte = tp_layer.Pad(byte(b))
	}
	canType := driver.CAN
	if *fd {
		canType = driver.CANFD
		cfg.TxDataLength = 64
		cfg.BitrateSwitch = *brs
	}
	if *txdl > 0 {
		cfg.TxDataLength = *txdl
	}

	payloads, err := loadPayloads(*dataHex, *imagePath, *blockSize)
	if err != nil {
		log.Fatalf("isotpsend: %v", err)
	}

	tp, err := tp_layer.NewTransport(addr, cfg)
	if err != nil {
		log.Fatalf("isotpsend: %v", err)
	}

	adapter, err := driver.NewAdapter(driver.NewSocketCAN(ifName, canType))
	if err != nil {
		log.Fatalf("isotpsend: %v", err)
	}
	adapter.SetTrace(*trace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	adapter.Run(ctx)
	go tp.Run(ctx, adapter.RxChan(), adapter.TxChan())
	go func() {
		for err := range tp.ErrorChan {
			log.Printf("isotpsend: transfer error: %v", err)
		}
	}()

	for round := 0; round < *loops; round++ {
		if round > 0 && *gap > 0 {
			time.Sleep(*gap)
		}
		for i, sdu := range payloads {
			if err := tp.Send(sdu); err != nil {
				log.Fatalf("isotpsend: block %d: %v", i, err)
			}
		}
	}
	cancel()
	adapter.Close()
}
