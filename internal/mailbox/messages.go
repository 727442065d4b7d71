package mailbox

import (
	"time"

	"github.com/rtio-systems/subkernel/internal/proto"
)

// Message is any value the kernel CPU or the satellite main processor
// exchanges over the mailbox. Decoding the raw pointer into one of
// these structs is ksupport's job in the original firmware and is out
// of this module's scope (spec §1); Mailbox implementations hand back
// already-typed values.
type Message interface {
	isMailboxMessage()
}

type baseMessage struct{}

func (baseMessage) isMailboxMessage() {}

// LoadRequest asks the kernel CPU to load a freshly placed image.
type LoadRequest struct {
	baseMessage
	Library []byte
}

// LoadReply is the kernel CPU's response to LoadRequest.
type LoadReply struct {
	baseMessage
	Success bool
	Error   string
}

// Log carries a formatted log line from the kernel.
type Log struct {
	baseMessage
	Text string
}

// LogSlice carries a raw chunk appended to the session's line buffer.
type LogSlice struct {
	baseMessage
	Data string
}

// RpcFlush is a no-op acknowledgement request from the kernel.
type RpcFlush struct{ baseMessage }

// CacheGetRequest asks the satellite Cache for a key.
type CacheGetRequest struct {
	baseMessage
	Key string
}

// CacheGetReply answers CacheGetRequest.
type CacheGetReply struct {
	baseMessage
	Value []byte
}

// CachePutRequest asks the satellite Cache to store a key/value pair.
type CachePutRequest struct {
	baseMessage
	Key   string
	Value []byte
}

// CachePutReply answers CachePutRequest.
type CachePutReply struct {
	baseMessage
	Succeeded bool
}

// RunFinished signals a normal run completion.
type RunFinished struct{ baseMessage }

// RunExceptionMsg signals the kernel raised an exception; it carries
// the wire-shaped RunException payload (see internal/proto).
type RunExceptionMsg struct {
	baseMessage
	proto.RunException
}

// SubkernelMsgSend asks the satellite to stage an outbound interkernel
// message.
type SubkernelMsgSend struct {
	baseMessage
	Count uint8
	Tag   uint8
	Data  []byte
}

// SubkernelMsgRecvRequest asks the satellite to wait up to Timeout for
// an inbound interkernel message.
type SubkernelMsgRecvRequest struct {
	baseMessage
	Timeout time.Duration
}

// RecvStatus is the outcome reported by SubkernelMsgRecvReply.
type RecvStatus int

const (
	RecvNoError RecvStatus = iota
	RecvTimeout
)

// SubkernelMsgRecvReply answers SubkernelMsgRecvRequest.
type SubkernelMsgRecvReply struct {
	baseMessage
	Status RecvStatus
	Count  uint8
}

// RpcRecvRequest asks for the next value slot while streaming an
// interkernel message into the kernel (§4.5).
type RpcRecvRequest struct{ baseMessage }

// RpcRecvReply answers RpcRecvRequest; Size > 0 means more heap space
// was requested for the value being decoded, Size == 0 means the value
// is complete.
type RpcRecvReply struct {
	baseMessage
	Size int
}

// HWKind identifies which peripheral operation a HWRequest performs
// (§4.7 hardware request fan-out).
type HWKind int

const (
	HWRTIOInit HWKind = iota
	HWRTIODestinationStatus
	HWI2CStart
	HWI2CRestart
	HWI2CStop
	HWI2CWrite
	HWI2CRead
	HWI2CSwitchSelect
	HWSPISetConfig
	HWSPIWrite
	HWSPIRead
)

// HWRequest is the generic shape of every hardware peripheral request
// the satellite services while Running.
type HWRequest struct {
	baseMessage
	Kind          HWKind
	Busno         uint32
	Destination   uint8
	WriteData     uint8
	ExpectAck     bool
	SwitchMask    uint16
	SPIBusno      uint32
	SPIConfig     uint32
	SPIChipSelect uint32
	SPILength     uint8
	SPIData       uint32
}

// HWReply is the generic shape of every hardware peripheral reply. All
// errors collapse to Succeeded=false plus a neutral Data field (§4.7).
type HWReply struct {
	baseMessage
	Succeeded bool
	Up        bool
	Data      uint32
	Ack       bool
}
