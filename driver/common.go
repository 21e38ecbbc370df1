package driver

import (
	"context"
	"log"
)

// dataLenToDlc converts a payload byte count to the wire DLC code.
func dataLenToDlc(len int) byte {
	if len <= 8 {
		return byte(len)
	}
	switch {
	case len <= 12:
		return 9
	case len <= 16:
		return 10
	case len <= 20:
		return 11
	case len <= 24:
		return 12
	case len <= 32:
		return 13
	case len <= 48:
		return 14
	default:
		return 15
	}
}

// dlcToLen converts a wire DLC code to the payload byte count.
func dlcToLen(dlc byte) int {
	if dlc <= 8 {
		return int(dlc)
	}
	switch dlc {
	case 9:
		return 12
	case 10:
		return 16
	case 11:
		return 20
	case 12:
		return 24
	case 13:
		return 32
	case 14:
		return 48
	default:
		return 64
	}
}

// canTypeOf maps a message back to the frame family it travelled as.
func canTypeOf(m *UnifiedCANMessage) CanType {
	if m.IsFD {
		return CANFD
	}
	return CAN
}

// logCANMessage is the shared trace format of the backends.
func logCANMessage(direction string, id uint32, length int, data []byte, canType CanType) {
	typeStr := "CANFD"
	if canType == CAN {
		typeStr = "CAN  "
	}
	log.Printf("%s %s: ID=0x%03X, LEN=%02d, Data=% 02X", direction, typeStr, id, length, data)
}

// UnifiedCANMessage carries one Classical CAN or CAN FD frame between a
// backend and its consumers, hiding the differences of the underlying
// frame structures.
type UnifiedCANMessage struct {
	Direction     DirectionType
	ID            uint32
	Length        byte
	Data          [64]byte
	IsFD          bool
	IsExtended    bool
	IsRTR         bool
	BitrateSwitch bool
	ErrorState    bool
}

// Payload is the Length-bounded view of the data array.
func (m *UnifiedCANMessage) Payload() []byte {
	n := int(m.Length)
	if n > len(m.Data) {
		n = len(m.Data)
	}
	return m.Data[:n]
}

// NewMessage builds a message from a payload slice.
func NewMessage(id uint32, data []byte, extended, fd bool) UnifiedCANMessage {
	msg := UnifiedCANMessage{
		ID:         id,
		Length:     byte(len(data)),
		IsFD:       fd,
		IsExtended: extended,
	}
	copy(msg.Data[:], data)
	return msg
}

// CANDriver is the unified interface of every CAN/CAN FD backend.
type CANDriver interface {
	Init() error
	Start()
	Stop()
	Write(msg UnifiedCANMessage) error
	RxChan() <-chan UnifiedCANMessage
	Context() context.Context
}
