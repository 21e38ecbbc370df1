package tp_layer

import "fmt"

// AddressingMode selects how the pair of CAN identifiers and the optional
// in-payload address byte are formed.
type AddressingMode int

const (
	Normal11Bit      AddressingMode = iota // 11-bit IDs, no address byte
	Normal29Bit                            // 29-bit IDs, no address byte
	NormalFixed29Bit                       // 29-bit IDs carrying target/source address
	Extended11Bit                          // 11-bit IDs, address octet in first payload byte
	Extended29Bit                          // 29-bit IDs, address octet in first payload byte
	Mixed11Bit                             // 11-bit IDs, address extension in first payload byte
	Mixed29Bit                             // 29-bit target/source IDs plus address extension
)

// AddressType distinguishes physical (point to point) from functional
// (broadcast) addressing on modes that encode it in the identifier.
type AddressType int

const (
	Physical AddressType = iota
	Functional
)

// Address binds an endpoint to its identifier pair and, for the extended
// and mixed modes, to the payload address octets. TargetAddress is what we
// put into transmitted frames; SourceAddress is what we expect in received
// ones, so the two octets may differ.
type Address struct {
	AddressingMode AddressingMode

	TxID uint32
	RxID uint32

	TargetAddress    byte // address octet on transmit
	SourceAddress    byte // address octet expected on receive
	AddressExtension byte // mixed-mode extension byte

	txPrefix     []byte
	rxPrefixSize int
	is29Bit      bool
}

// NewAddress builds an Address for the given mode. Identifier and address
// octets are supplied through the With options.
func NewAddress(mode AddressingMode, opts ...func(*Address)) (*Address, error) {
	addr := &Address{AddressingMode: mode}
	for _, opt := range opts {
		opt(addr)
	}

	switch mode {
	case Normal11Bit:
	case Normal29Bit, NormalFixed29Bit:
		addr.is29Bit = true
	case Extended11Bit:
		addr.txPrefix = []byte{addr.TargetAddress}
		addr.rxPrefixSize = 1
	case Extended29Bit:
		addr.is29Bit = true
		addr.txPrefix = []byte{addr.TargetAddress}
		addr.rxPrefixSize = 1
	case Mixed11Bit:
		addr.txPrefix = []byte{addr.AddressExtension}
		addr.rxPrefixSize = 1
	case Mixed29Bit:
		addr.is29Bit = true
		addr.txPrefix = []byte{addr.AddressExtension}
		addr.rxPrefixSize = 1
	default:
		return nil, fmt.Errorf("tp_layer: unsupported addressing mode %d", mode)
	}
	return addr, nil
}

func WithTxID(id uint32) func(*Address) { return func(a *Address) { a.TxID = id } }
func WithRxID(id uint32) func(*Address) { return func(a *Address) { a.RxID = id } }
func WithTargetAddress(ta byte) func(*Address) {
	return func(a *Address) { a.TargetAddress = ta }
}
func WithSourceAddress(sa byte) func(*Address) {
	return func(a *Address) { a.SourceAddress = sa }
}
func WithAddressExtension(ae byte) func(*Address) {
	return func(a *Address) { a.AddressExtension = ae }
}

// TxArbitrationID is the identifier used for transmitted frames.
func (a *Address) TxArbitrationID(addrType AddressType) uint32 {
	switch a.AddressingMode {
	case NormalFixed29Bit:
		// 18DAttss physical, 18DBttss functional
		prefix := uint32(0x18DA0000)
		if addrType == Functional {
			prefix = 0x18DB0000
		}
		return prefix | uint32(a.TargetAddress)<<8 | uint32(a.SourceAddress)
	case Mixed29Bit:
		// 18CEttss physical, 18CDttss functional
		prefix := uint32(0x18CE0000)
		if addrType == Functional {
			prefix = 0x18CD0000
		}
		return prefix | uint32(a.TargetAddress)<<8 | uint32(a.SourceAddress)
	default:
		return a.TxID
	}
}

// IsForMe reports whether a received frame belongs to this endpoint. The
// engine drops everything else before touching its state machines.
func (a *Address) IsForMe(msg *CanMessage) bool {
	if msg.IsExtendedID != a.is29Bit {
		return false
	}

	switch a.AddressingMode {
	case Normal11Bit, Normal29Bit:
		return msg.ArbitrationID == a.RxID
	case NormalFixed29Bit:
		return msg.ArbitrationID&0xFFFF0000 == a.TxArbitrationID(Physical)&0xFFFF0000
	case Extended11Bit, Extended29Bit:
		if msg.ArbitrationID != a.RxID || len(msg.Data) < 1 {
			return false
		}
		return msg.Data[0] == a.SourceAddress
	case Mixed11Bit:
		if msg.ArbitrationID != a.RxID || len(msg.Data) < 1 {
			return false
		}
		return msg.Data[0] == a.AddressExtension
	case Mixed29Bit:
		if msg.ArbitrationID&0xFFFF0000 != a.TxArbitrationID(Physical)&0xFFFF0000 {
			return false
		}
		return len(msg.Data) >= 1 && msg.Data[0] == a.AddressExtension
	}
	return false
}

// Is29Bit reports whether the mode uses 29-bit identifiers.
func (a *Address) Is29Bit() bool { return a.is29Bit }

// TxPrefixSize is the number of payload bytes consumed by addressing on
// transmit.
func (a *Address) TxPrefixSize() int { return len(a.txPrefix) }

// RxPrefixSize is the number of payload bytes consumed by addressing on
// receive.
func (a *Address) RxPrefixSize() int { return a.rxPrefixSize }
