package driver

// Buffer defaults shared by the backends.
const (
	RxChannelBufferSize = 1024
	MsgBufferSize       = 1024
)

// CanType selects the link layer of a backend.
type CanType byte

const (
	CAN   CanType = 0
	CANFD CanType = 1
)

// DirectionType tags a message as transmitted or received.
type DirectionType byte

const (
	TX DirectionType = iota
	RX
)
