package tp_layer

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// CanMessage is one CAN frame as exchanged with the link layer (ISO 11898).
type CanMessage struct {
	ArbitrationID uint32
	Data          []byte
	IsExtendedID  bool
	IsFD          bool
	BitrateSwitch bool
	ErrorState    bool
}

func (m *CanMessage) String() string {
	var idStr string
	if m.IsExtendedID {
		idStr = fmt.Sprintf("%08x", m.ArbitrationID)
	} else {
		idStr = fmt.Sprintf("%03x", m.ArbitrationID)
	}
	var flags []string
	if m.IsFD {
		flags = append(flags, "fd")
	}
	if m.BitrateSwitch {
		flags = append(flags, "brs")
	}
	if m.ErrorState {
		flags = append(flags, "esi")
	}
	var flagStr string
	if len(flags) > 0 {
		flagStr = fmt.Sprintf(" (%s)", strings.Join(flags, ","))
	}
	return fmt.Sprintf("<CanMessage %s [%d]%s \"%s\">",
		idStr, len(m.Data), flagStr, hex.EncodeToString(m.Data))
}

// State is one side of the endpoint state machine.
type State uint8

const (
	StateIdle State = iota
	StateWaitFC
	StateTransmit
	StateWaitCF
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitFC:
		return "wait-fc"
	case StateTransmit:
		return "transmit"
	case StateWaitCF:
		return "wait-cf"
	}
	return "unknown"
}

// FlowStatus is the FS field of a flow-control frame.
type FlowStatus uint8

const (
	FlowStatusContinueToSend FlowStatus = 0x00
	FlowStatusWait           FlowStatus = 0x01
	FlowStatusOverflow       FlowStatus = 0x02
)
