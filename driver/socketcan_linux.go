//go:build linux

package driver

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	canFrameSize   = 16
	canFDFrameSize = 72

	// canfd_frame flag bits from linux/can.h, not exported by x/sys.
	canfdBRS = 0x01
	canfdESI = 0x02
)

// Filter is one (id, mask) pair installed on the raw socket. A frame is
// delivered when received_id & mask == id & mask.
type Filter struct {
	ID   uint32
	Mask uint32
}

// SocketCAN is the CANDriver backend for the kernel's raw CAN socket
// family.
type SocketCAN struct {
	ifName  string
	canType CanType
	filters []Filter
	trace   bool

	fd     int
	rxChan chan UnifiedCANMessage
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeMu sync.Mutex
}

// NewSocketCAN prepares a backend for the named interface. canType CANFD
// enables reception and transmission of FD frames.
func NewSocketCAN(ifName string, canType CanType) *SocketCAN {
	ctx, cancel := context.WithCancel(context.Background())
	return &SocketCAN{
		ifName:  ifName,
		canType: canType,
		fd:      -1,
		rxChan:  make(chan UnifiedCANMessage, RxChannelBufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetFilters installs receive filters. Must be called before Init.
func (s *SocketCAN) SetFilters(filters ...Filter) { s.filters = filters }

// SetTrace enables frame logging.
func (s *SocketCAN) SetTrace(on bool) { s.trace = on }

func (s *SocketCAN) Init() error {
	ifi, err := net.InterfaceByName(s.ifName)
	if err != nil {
		return fmt.Errorf("driver: interface %q: %w", s.ifName, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("driver: raw CAN socket: %w", err)
	}

	if s.canType == CANFD {
		if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 1); err != nil {
			unix.Close(fd)
			return fmt.Errorf("driver: enable FD frames: %w", err)
		}
	}

	if len(s.filters) > 0 {
		raw := make([]unix.CanFilter, len(s.filters))
		for i, f := range s.filters {
			raw[i] = unix.CanFilter{Id: f.ID, Mask: f.Mask}
		}
		if err := unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, raw); err != nil {
			unix.Close(fd)
			return fmt.Errorf("driver: install filters: %w", err)
		}
	}

	// Bounded read timeout so the read loop can observe Stop.
	tv := unix.NsecToTimeval((100 * time.Millisecond).Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return fmt.Errorf("driver: set read timeout: %w", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		unix.Close(fd)
		return fmt.Errorf("driver: bind %q: %w", s.ifName, err)
	}

	s.fd = fd
	return nil
}

func (s *SocketCAN) Start() {
	s.wg.Add(1)
	go s.readLoop()
}

func (s *SocketCAN) Stop() {
	s.cancel()
	s.wg.Wait()
	if s.fd >= 0 {
		unix.Close(s.fd)
		s.fd = -1
	}
}

func (s *SocketCAN) RxChan() <-chan UnifiedCANMessage { return s.rxChan }
func (s *SocketCAN) Context() context.Context         { return s.ctx }

func (s *SocketCAN) Write(msg UnifiedCANMessage) error {
	if s.fd < 0 {
		return errors.New("driver: socket not initialised")
	}
	buf, err := marshalFrame(&msg)
	if err != nil {
		return err
	}
	if s.trace {
		logCANMessage("TX", msg.ID, int(msg.Length), msg.Payload(), s.canType)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = unix.Write(s.fd, buf)
	if err != nil {
		return fmt.Errorf("driver: write frame: %w", err)
	}
	return nil
}

func (s *SocketCAN) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, canFDFrameSize)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		n, err := unix.Read(s.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				continue
			}
			return
		}

		msg, ok := unmarshalFrame(buf[:n])
		if !ok {
			continue
		}
		if s.trace {
			logCANMessage("RX", msg.ID, int(msg.Length), msg.Payload(), s.canType)
		}
		select {
		case s.rxChan <- msg:
		default:
			// Consumer too slow, frame dropped.
		}
	}
}

// marshalFrame lays a message out as the kernel's can_frame or canfd_frame.
func marshalFrame(msg *UnifiedCANMessage) ([]byte, error) {
	id := msg.ID
	if msg.IsExtended {
		id = id&unix.CAN_EFF_MASK | unix.CAN_EFF_FLAG
	} else {
		id &= unix.CAN_SFF_MASK
	}
	if msg.IsRTR {
		id |= unix.CAN_RTR_FLAG
	}

	if msg.IsFD {
		if int(msg.Length) > 64 {
			return nil, fmt.Errorf("driver: FD payload %d exceeds 64 bytes", msg.Length)
		}
		buf := make([]byte, canFDFrameSize)
		binary.LittleEndian.PutUint32(buf[0:4], id)
		buf[4] = msg.Length
		if msg.BitrateSwitch {
			buf[5] |= canfdBRS
		}
		if msg.ErrorState {
			buf[5] |= canfdESI
		}
		copy(buf[8:], msg.Payload())
		return buf, nil
	}

	if msg.Length > 8 {
		return nil, fmt.Errorf("driver: classical payload %d exceeds 8 bytes", msg.Length)
	}
	buf := make([]byte, canFrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = msg.Length
	copy(buf[8:], msg.Payload())
	return buf, nil
}

// unmarshalFrame decodes a kernel frame. Error frames are discarded.
func unmarshalFrame(buf []byte) (UnifiedCANMessage, bool) {
	if len(buf) != canFrameSize && len(buf) != canFDFrameSize {
		return UnifiedCANMessage{}, false
	}
	id := binary.LittleEndian.Uint32(buf[0:4])
	if id&unix.CAN_ERR_FLAG != 0 {
		return UnifiedCANMessage{}, false
	}

	msg := UnifiedCANMessage{
		Direction:  RX,
		IsExtended: id&unix.CAN_EFF_FLAG != 0,
		IsRTR:      id&unix.CAN_RTR_FLAG != 0,
		IsFD:       len(buf) == canFDFrameSize,
		Length:     buf[4],
	}
	if msg.IsExtended {
		msg.ID = id & unix.CAN_EFF_MASK
	} else {
		msg.ID = id & unix.CAN_SFF_MASK
	}
	if msg.IsFD {
		msg.BitrateSwitch = buf[5]&canfdBRS != 0
		msg.ErrorState = buf[5]&canfdESI != 0
	}

	max := len(buf) - 8
	if int(msg.Length) > max {
		msg.Length = byte(max)
	}
	copy(msg.Data[:], buf[8:8+int(msg.Length)])
	return msg, true
}
