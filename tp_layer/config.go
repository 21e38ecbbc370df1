package tp_layer

import (
	"fmt"
	"time"
)

// Config carries every tunable of an endpoint. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// PaddingByte, if not nil, pads every transmitted frame to the full
	// link-layer length (8 for Classical CAN, the next valid data length
	// for FD).
	PaddingByte *byte

	// RxPaddingByte is the pad value expected on received frames when
	// ContentCheck is set. When nil, PaddingByte is used.
	RxPaddingByte *byte

	// LengthCheck rejects received frames shorter than the full padded
	// link-layer length.
	LengthCheck bool

	// ContentCheck rejects received frames whose pad bytes differ from
	// the expected pad value.
	ContentCheck bool

	// Transmitter side timeouts.
	TimeoutN_As time.Duration // own frame transmission
	TimeoutN_Bs time.Duration // wait for flow control
	TimeoutN_Cs time.Duration // gap before next consecutive frame

	// Receiver side timeouts.
	TimeoutN_Ar time.Duration // peer frame transmission
	TimeoutN_Br time.Duration // gap before own flow control
	TimeoutN_Cr time.Duration // wait for next consecutive frame

	// Flow control advertised to the peer. BlockSize 0 means a single
	// flow control for the whole transfer.
	BlockSize int
	StMin     time.Duration

	// MaxWaitFrame caps consecutive FC(Wait) frames from the peer before
	// the transfer aborts.
	MaxWaitFrame int

	// FrameTxTime is the minimum spacing between any two frames this
	// endpoint emits, regardless of the peer's STmin.
	FrameTxTime time.Duration

	// STminRxOverride, if not nil, replaces the STmin received from the
	// peer when pacing outgoing consecutive frames.
	STminRxOverride *time.Duration

	// STminTxOverride, if not nil, replaces StMin in the flow control
	// frames this endpoint emits.
	STminTxOverride *time.Duration

	// WaitTxDone makes the channel transport's Send block until the
	// whole transfer completes or fails.
	WaitTxDone bool

	// TxDataLength is the frame payload size used for transmission: 8
	// for Classical CAN, up to 64 for FD.
	TxDataLength int

	// FD transmit flags.
	BitrateSwitch bool
	ErrorState    bool

	// HalfDuplex makes transmit and receive mutually exclusive; a send
	// staged during reception starts once the reception finishes.
	HalfDuplex bool

	// MaxSDULength bounds the accepted and transmitted message size.
	// With the FD escape encodings the wire format allows far more than
	// any sane buffer; the limit keeps a hostile first frame from
	// forcing a huge allocation.
	MaxSDULength int
}

const defaultMaxSDULength = 64 * 1024

// DefaultConfig returns the ISO 15765-2 recommended timeouts with padding
// and overrides disabled.
func DefaultConfig() Config {
	return Config{
		TimeoutN_As: 1000 * time.Millisecond,
		TimeoutN_Bs: 1000 * time.Millisecond,
		TimeoutN_Cs: 1000 * time.Millisecond,

		TimeoutN_Ar: 1000 * time.Millisecond,
		TimeoutN_Br: 1000 * time.Millisecond,
		TimeoutN_Cr: 1000 * time.Millisecond,

		BlockSize: 0,
		StMin:     0,

		MaxWaitFrame: 0,

		TxDataLength: 8,
		MaxSDULength: defaultMaxSDULength,
	}
}

// Validate checks the configuration for values the engine cannot work with.
func (c *Config) Validate() error {
	if c.TxDataLength != 8 && nextFDTargetLength(c.TxDataLength) != c.TxDataLength {
		return fmt.Errorf("tx data length %d is not a valid CAN data length", c.TxDataLength)
	}
	if c.BlockSize < 0 || c.BlockSize > 255 {
		return fmt.Errorf("block size %d outside [0, 255]", c.BlockSize)
	}
	if c.MaxWaitFrame < 0 {
		return fmt.Errorf("max wait frame count %d is negative", c.MaxWaitFrame)
	}
	if c.MaxSDULength < 1 {
		return fmt.Errorf("max message length %d must be positive", c.MaxSDULength)
	}
	return nil
}

// rxPadValue is the byte expected by the content check.
func (c *Config) rxPadValue() (byte, bool) {
	if c.RxPaddingByte != nil {
		return *c.RxPaddingByte, true
	}
	if c.PaddingByte != nil {
		return *c.PaddingByte, true
	}
	return 0, false
}

// advertisedSTmin is the separation time put into outgoing flow controls.
func (c *Config) advertisedSTmin() time.Duration {
	if c.STminTxOverride != nil {
		return *c.STminTxOverride
	}
	return c.StMin
}

// Pad returns a pointer to b, for use as Config.PaddingByte.
func Pad(b byte) *byte { return &b }

// nextFDTargetLength returns the smallest valid CAN FD data length that
// holds length bytes. Valid sizes are 0-8, 12, 16, 20, 24, 32, 48, 64.
func nextFDTargetLength(length int) int {
	switch {
	case length <= 8:
		return 8
	case length <= 12:
		return 12
	case length <= 16:
		return 16
	case length <= 20:
		return 20
	case length <= 24:
		return 24
	case length <= 32:
		return 32
	case length <= 48:
		return 48
	default:
		return 64
	}
}
