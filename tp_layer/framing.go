package tp_layer

import (
	"encoding/binary"
	"time"
)

const (
	pciTypeSingleFrame      = 0x00
	pciTypeFirstFrame       = 0x10
	pciTypeConsecutiveFrame = 0x20
	pciTypeFlowControl      = 0x30

	// maxShortLength is the largest message length encodable in the
	// 12-bit first-frame field. Longer messages use the escape form.
	maxShortLength = 4095
)

// ISOTPFrame is one parsed protocol frame: *SingleFrame, *FirstFrame,
// *ConsecutiveFrame or *FlowControlFrame.
type ISOTPFrame interface{}

type SingleFrame struct {
	Data []byte
	// Escaped marks the two-byte FD length form.
	Escaped bool
}

type FirstFrame struct {
	TotalSize int
	Data      []byte
}

type ConsecutiveFrame struct {
	SequenceNumber int
	Data           []byte
}

type FlowControlFrame struct {
	FlowStatus FlowStatus
	BlockSize  int
	STmin      time.Duration
}

// encodeSTmin maps a separation time onto the wire byte: 0x00-0x7F are
// milliseconds, 0xF1-0xF9 are 100-900 microseconds. Everything in between
// is rounded up to the next encodable value.
func encodeSTmin(d time.Duration) byte {
	if d <= 0 {
		return 0x00
	}
	if d < time.Millisecond {
		us := (d + 99*time.Microsecond) / (100 * time.Microsecond)
		if us < 1 {
			us = 1
		}
		if us > 9 {
			// Between 900us and 1ms; 0xFA is reserved, so round up
			// to the next encodable value.
			return 0x01
		}
		return 0xF0 | byte(us)
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > 127 {
		ms = 127
	}
	return byte(ms)
}

// decodeSTmin is the inverse of encodeSTmin. Reserved values decode to the
// maximum of 127 ms as required by the standard.
func decodeSTmin(b byte) time.Duration {
	if b <= 0x7F {
		return time.Duration(b) * time.Millisecond
	}
	if b >= 0xF1 && b <= 0xF9 {
		return time.Duration(b-0xF0) * 100 * time.Microsecond
	}
	return 127 * time.Millisecond
}

// createFlowControlPayload builds the FC payload without address prefix.
func createFlowControlPayload(status FlowStatus, blockSize int, stMin time.Duration) []byte {
	return []byte{
		pciTypeFlowControl | byte(status),
		byte(blockSize),
		encodeSTmin(stMin),
	}
}

// createSingleFramePayload builds the SF payload. maxDataLength is the
// frame capacity left after the address prefix.
func createSingleFramePayload(data []byte, maxDataLength int) ([]byte, error) {
	var pci []byte
	if len(data) <= 7 && len(data)+1 <= maxDataLength {
		pci = []byte{pciTypeSingleFrame | byte(len(data))}
	} else {
		// FD escape form with an explicit length byte.
		pci = []byte{pciTypeSingleFrame, byte(len(data))}
	}
	if len(pci)+len(data) > maxDataLength {
		return nil, ErrLengthTooLarge
	}
	payload := make([]byte, 0, len(pci)+len(data))
	payload = append(payload, pci...)
	return append(payload, data...), nil
}

// createFirstFramePayload builds the FF payload carrying the first chunk.
func createFirstFramePayload(firstChunk []byte, totalSize, maxDataLength int) ([]byte, error) {
	var pci []byte
	if totalSize <= maxShortLength {
		pci = []byte{
			pciTypeFirstFrame | byte(totalSize>>8&0x0F),
			byte(totalSize),
		}
	} else {
		pci = make([]byte, 6)
		pci[0] = pciTypeFirstFrame
		binary.BigEndian.PutUint32(pci[2:], uint32(totalSize))
	}
	if len(pci)+len(firstChunk) > maxDataLength {
		return nil, ErrLengthTooLarge
	}
	payload := make([]byte, 0, len(pci)+len(firstChunk))
	payload = append(payload, pci...)
	return append(payload, firstChunk...), nil
}

// createConsecutiveFramePayload builds a CF payload for one data chunk.
func createConsecutiveFramePayload(chunk []byte, seq int) []byte {
	payload := make([]byte, 0, 1+len(chunk))
	payload = append(payload, pciTypeConsecutiveFrame|byte(seq&0x0F))
	return append(payload, chunk...)
}

// ParseFrame decodes a CAN frame into its protocol frame, skipping
// rxPrefixSize address bytes.
func ParseFrame(msg *CanMessage, rxPrefixSize int) (ISOTPFrame, error) {
	if len(msg.Data) <= rxPrefixSize {
		return nil, protoErr(LengthInconsistent,
			"frame length %d leaves no pci after %d address bytes", len(msg.Data), rxPrefixSize)
	}
	payload := msg.Data[rxPrefixSize:]

	switch payload[0] & 0xF0 {
	case pciTypeSingleFrame:
		length := int(payload[0] & 0x0F)
		if length == 0 {
			// FD escape form.
			if len(payload) < 2 {
				return nil, protoErr(LengthInconsistent, "escaped sf without length byte")
			}
			length = int(payload[1])
			if length == 0 || len(payload)-2 < length {
				return nil, protoErr(LengthInconsistent,
					"escaped sf declares %d bytes, frame carries %d", length, len(payload)-2)
			}
			return &SingleFrame{Data: payload[2 : 2+length], Escaped: true}, nil
		}
		if len(payload)-1 < length {
			return nil, protoErr(LengthInconsistent,
				"sf declares %d bytes, frame carries %d", length, len(payload)-1)
		}
		return &SingleFrame{Data: payload[1 : 1+length]}, nil

	case pciTypeFirstFrame:
		if len(payload) < 2 {
			return nil, protoErr(LengthInconsistent, "ff shorter than two bytes")
		}
		totalSize := int(payload[0]&0x0F)<<8 | int(payload[1])
		dataStart := 2
		if totalSize == 0 {
			// FD escape form with a 32-bit length.
			if len(payload) < 6 {
				return nil, protoErr(LengthInconsistent, "escaped ff shorter than six bytes")
			}
			totalSize = int(binary.BigEndian.Uint32(payload[2:6]))
			dataStart = 6
		}
		return &FirstFrame{TotalSize: totalSize, Data: payload[dataStart:]}, nil

	case pciTypeConsecutiveFrame:
		return &ConsecutiveFrame{
			SequenceNumber: int(payload[0] & 0x0F),
			Data:           payload[1:],
		}, nil

	case pciTypeFlowControl:
		if len(payload) < 3 {
			return nil, protoErr(LengthInconsistent, "fc shorter than three bytes")
		}
		fs := FlowStatus(payload[0] & 0x0F)
		if fs > FlowStatusOverflow {
			return nil, protoErr(UnexpectedPci, "reserved flow status %d", fs)
		}
		return &FlowControlFrame{
			FlowStatus: fs,
			BlockSize:  int(payload[1]),
			STmin:      decodeSTmin(payload[2]),
		}, nil
	}
	return nil, protoErr(UnexpectedPci, "pci byte 0x%02x", payload[0])
}
