// Package framelen computes the number of line bits a Classical CAN frame
// occupies on the wire, including CRC, stuff bits, end-of-frame and
// inter-frame space.
//
// Three modes are available:
//   - NoBitStuffing: the plain envelope count without any stuff bits
//   - WorstCase: the Tindell-style upper bound on stuffed length
//   - Exact: counts the stuff bits that actually occur, given the
//     identifier, control field, payload and the 15-bit CRC
//
// CAN FD frames are not supported; passing an FD MTU returns 0.
package framelen

import "errors"

// MTU sentinels, matching the kernel's sizeof(struct can_frame) and
// sizeof(struct canfd_frame). The caller tells us which socket family the
// frame came from; the core itself never touches a socket.
const (
	CANMTU   = 16
	CANFDMTU = 72
)

// Mode selects how stuff bits are accounted for.
type Mode int

const (
	NoBitStuffing Mode = iota
	WorstCase
	Exact
)

// Frame is the on-wire Classical CAN frame as seen by the calculator.
type Frame struct {
	ID       uint32 // 11-bit (std) or 29-bit (ext)
	Extended bool   // 29-bit identifier
	RTR      bool   // remote transmission request, DLC must be 0
	DLC      uint8  // 0..8
	Data     [8]byte
}

// ErrFrameInvalid is returned for frames a Classical CAN bus cannot carry.
var ErrFrameInvalid = errors.New("framelen: DLC exceeds classical CAN limit")

// FrameBits returns the number of bits the frame occupies on the bus,
// from start-of-frame through the 3-bit inter-frame space.
//
// mtu must be CANMTU; CAN FD frames are not bit-exact countable here and
// yield 0 without error. A DLC above 8 yields ErrFrameInvalid.
func FrameBits(f Frame, mode Mode, mtu int) (uint32, error) {
	if mtu != CANMTU {
		return 0, nil
	}
	if f.DLC > 8 {
		return 0, ErrFrameInvalid
	}

	switch mode {
	case NoBitStuffing:
		if f.Extended {
			return 67 + 8*uint32(f.DLC), nil
		}
		return 47 + 8*uint32(f.DLC), nil
	case WorstCase:
		if f.Extended {
			return 80 + 10*uint32(f.DLC), nil
		}
		return 55 + 10*uint32(f.DLC), nil
	case Exact:
		return exactBits(f), nil
	}
	return 0, nil
}

// bitstring accumulates frame bits most-significant first, byte aligned to
// the start so the CRC can run table-driven over whole bytes.
type bitstring struct {
	buf [16]byte
	n   int
}

func (b *bitstring) append(v uint32, bits int) {
	for i := bits - 1; i >= 0; i-- {
		if v&(1<<uint(i)) != 0 {
			b.buf[b.n/8] |= 0x80 >> uint(b.n%8)
		}
		b.n++
	}
}

func (b *bitstring) bit(i int) byte {
	return (b.buf[i/8] >> uint(7-i%8)) & 1
}

// exactBits lays out the frame from SOF to the last data bit, appends the
// 15-bit CRC and counts the stuff bits over the whole stuffed region.
// Field order per ISO 11898-1:
//
//	SFF: SOF, ID[10:0], RTR, IDE, r0, DLC, data
//	EFF: SOF, ID[28:18], SRR, IDE, ID[17:0], RTR, r1, r0, DLC, data
func exactBits(f Frame) uint32 {
	var bs bitstring

	bs.append(0, 1) // SOF
	if f.Extended {
		id := f.ID & 0x1fffffff
		bs.append(id>>18, 11)
		bs.append(3, 2) // SRR, IDE
		bs.append(id&0x3ffff, 18)
		if f.RTR {
			bs.append(1, 1)
		} else {
			bs.append(0, 1)
		}
		bs.append(0, 2) // r1, r0
	} else {
		bs.append(f.ID&0x7ff, 11)
		if f.RTR {
			bs.append(1, 1)
		} else {
			bs.append(0, 1)
		}
		bs.append(0, 2) // IDE, r0
	}
	bs.append(uint32(f.DLC), 4)
	for i := 0; i < int(f.DLC); i++ {
		bs.append(uint32(f.Data[i]), 8)
	}

	crc := crc15Bitmap(bs.buf[:], bs.n)
	bs.append(uint32(crc), 15)

	// Count the stuff bits. A run of five identical bits forces a stuff
	// bit of opposite polarity; the stuff bit itself opens the next run.
	stuffed := uint32(0)
	prev := bs.bit(0)
	run := 1
	for i := 1; i < bs.n; i++ {
		b := bs.bit(i)
		if b == prev {
			run++
			if run == 5 {
				stuffed++
				prev = 1 - b
				run = 1
			}
		} else {
			prev = b
			run = 1
		}
	}

	return uint32(bs.n) + stuffed +
		3 + // CRC delimiter, ACK, ACK delimiter
		7 + // EOF
		3 // IFS
}
