//go:build !linux

package driver

import (
	"context"
	"errors"
)

// Filter is one (id, mask) pair installed on the raw socket.
type Filter struct {
	ID   uint32
	Mask uint32
}

var errUnsupported = errors.New("driver: raw CAN sockets require linux")

// SocketCAN is only available on Linux; this stub keeps cross-platform
// builds of the tools working.
type SocketCAN struct {
	rxChan chan UnifiedCANMessage
}

func NewSocketCAN(ifName string, canType CanType) *SocketCAN {
	return &SocketCAN{rxChan: make(chan UnifiedCANMessage)}
}

func (s *SocketCAN) SetFilters(filters ...Filter)      {}
func (s *SocketCAN) SetTrace(on bool)                  {}
func (s *SocketCAN) Init() error                       { return errUnsupported }
func (s *SocketCAN) Start()                            {}
func (s *SocketCAN) Stop()                             {}
func (s *SocketCAN) Write(msg UnifiedCANMessage) error { return errUnsupported }
func (s *SocketCAN) RxChan() <-chan UnifiedCANMessage  { return s.rxChan }
func (s *SocketCAN) Context() context.Context          { return context.Background() }
