// Package proto defines the wire layout for interkernel messages: frame
// assembly (tag_count/tag/payload) and the outgoing RPC-argument framing
// recipe used by both the master's message_send and the satellite's
// MessageManager.accept_outgoing. The argument marshalling library
// itself ("ksupport") is outside this package's scope; Marshal/Unmarshal
// here only handle the small, fixed-layout structs this protocol
// exchanges, following the manual binary.LittleEndian field-by-field
// style used throughout this stack.
package proto

import "encoding/binary"

// Message is one assembled interkernel message: a tag_count/tag header
// plus payload, reconstructed from one or more transport frames.
type Message struct {
	TagCount uint8
	Tag      uint8
	Data     []byte
}

// FrameHeaderLen is the number of header bytes (tag_count, tag) carried
// only by the first frame of a message.
const FrameHeaderLen = 2

// AssembleFirst builds a Message from the first frame of a sequence:
// byte 0 is tag_count, byte 1 is tag, the remainder is payload.
func AssembleFirst(frame []byte) Message {
	msg := Message{}
	if len(frame) > 0 {
		msg.TagCount = frame[0]
	}
	if len(frame) > 1 {
		msg.Tag = frame[1]
	}
	if len(frame) > FrameHeaderLen {
		msg.Data = append([]byte(nil), frame[FrameHeaderLen:]...)
	}
	return msg
}

// Append appends a continuation frame's raw bytes onto an in-progress
// Message.
func (m *Message) Append(frame []byte) {
	m.Data = append(m.Data, frame...)
}

// rpcServiceTagLen is the number of leading bytes of the 4-byte service
// tag that accept_outgoing and EncodeOutgoing discard from the front of
// the encoded buffer; the remaining service-tag byte is then overwritten
// with the value count.
const rpcServiceTagLen = 3

// EncodeOutgoing builds the wire buffer for an outbound interkernel
// message: the first 3 bytes of the 4-byte service tag are dropped, and
// the remaining byte is overwritten with count, giving
// [count, tag, args...]. args is the already-serialized argument stream
// (marshalling the values themselves is the kernel support library's
// job, out of scope here).
func EncodeOutgoing(count uint8, tag uint8, args []byte) []byte {
	encoded := make([]byte, 0, rpcServiceTagLen+2+len(args))
	encoded = append(encoded, 0, 0, 0, 0) // service tag (always 0 at this call site)
	encoded = append(encoded, tag)
	encoded = append(encoded, args...)

	data := append([]byte(nil), encoded[rpcServiceTagLen:]...)
	if len(data) == 0 {
		data = []byte{0}
	}
	data[0] = count
	return data
}

// RunException is the wire shape of a kernel-raised or synthesised
// runtime exception. StackPointer, InitialBacktraceSize and
// CurrentBacktraceSize are carried through even for synthesised
// exceptions (which always write zero into them) so a host-side decoder
// needs only one code path.
type RunException struct {
	KindID                uint32
	Message               string
	StackPointer          uint32
	InitialBacktraceSize  uint32
	CurrentBacktraceSize  uint32
}

// Marshal encodes a RunException into a byte buffer: a 4-byte kind id,
// a 4-byte message length followed by the message bytes, then three
// 4-byte backtrace fields, all little-endian.
func (r RunException) Marshal() []byte {
	msgBytes := []byte(r.Message)
	buf := make([]byte, 4+4+len(msgBytes)+4+4+4)

	binary.LittleEndian.PutUint32(buf[0:4], r.KindID)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(msgBytes)))
	copy(buf[8:8+len(msgBytes)], msgBytes)

	off := 8 + len(msgBytes)
	binary.LittleEndian.PutUint32(buf[off:off+4], r.StackPointer)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], r.InitialBacktraceSize)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], r.CurrentBacktraceSize)

	return buf
}

// UnmarshalRunException decodes the buffer produced by Marshal.
func UnmarshalRunException(data []byte) (RunException, error) {
	if len(data) < 8 {
		return RunException{}, ErrShortBuffer
	}
	r := RunException{}
	r.KindID = binary.LittleEndian.Uint32(data[0:4])
	msgLen := binary.LittleEndian.Uint32(data[4:8])
	if len(data) < int(8+msgLen+12) {
		return RunException{}, ErrShortBuffer
	}
	r.Message = string(data[8 : 8+msgLen])
	off := 8 + int(msgLen)
	r.StackPointer = binary.LittleEndian.Uint32(data[off : off+4])
	r.InitialBacktraceSize = binary.LittleEndian.Uint32(data[off+4 : off+8])
	r.CurrentBacktraceSize = binary.LittleEndian.Uint32(data[off+8 : off+12])
	return r, nil
}

// ProtoError is a sentinel error type for malformed wire buffers.
type ProtoError string

func (e ProtoError) Error() string { return string(e) }

const ErrShortBuffer ProtoError = "proto: buffer too short"
