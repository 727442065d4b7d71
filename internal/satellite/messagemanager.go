package satellite

import (
	"sync"

	"github.com/rtio-systems/subkernel/internal/logging"
	"github.com/rtio-systems/subkernel/internal/proto"
	"github.com/rtio-systems/subkernel/internal/sliceable"
)

// OutMessageState is the outbound half's state machine (spec §3, §4.4).
type OutMessageState int

const (
	NoMessage OutMessageState = iota
	MessageReady
	MessageBeingSent
	MessageSent
	MessageAcknowledged
)

func (s OutMessageState) String() string {
	switch s {
	case NoMessage:
		return "NoMessage"
	case MessageReady:
		return "MessageReady"
	case MessageBeingSent:
		return "MessageBeingSent"
	case MessageSent:
		return "MessageSent"
	case MessageAcknowledged:
		return "MessageAcknowledged"
	default:
		return "Unknown"
	}
}

// MessageManager holds the satellite's independent inbound and
// outbound interkernel-message halves (§4.4). Inbound assembly follows
// the same rule as the master registry's message path; outbound is a
// Sliceable plus a five-state handshake with the transport.
type MessageManager struct {
	mu sync.Mutex

	inBuffer *proto.Message
	inQueue  []proto.Message

	outMessage *sliceable.Sliceable
	outState   OutMessageState
}

func newMessageManager() *MessageManager {
	return &MessageManager{}
}

// HandleIncoming assembles one transport frame into the inbound
// buffer, pushing the completed message onto the FIFO once last is
// true (§4.4 handle_incoming).
func (m *MessageManager) HandleIncoming(last bool, frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inBuffer == nil {
		msg := proto.AssembleFirst(frame)
		m.inBuffer = &msg
	} else {
		m.inBuffer.Append(frame)
	}

	if last {
		m.inQueue = append(m.inQueue, *m.inBuffer)
		m.inBuffer = nil
	}
}

// PopIncoming removes and returns the oldest assembled inbound
// message, if any.
func (m *MessageManager) PopIncoming() (proto.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inQueue) == 0 {
		return proto.Message{}, false
	}
	msg := m.inQueue[0]
	m.inQueue = m.inQueue[1:]
	return msg, true
}

// AcceptOutgoing stages a new outbound message (§4.4 accept_outgoing):
// encode with service tag 0, drop the service-tag framing, overwrite
// byte 0 with count, wrap as a Sliceable, state → MessageReady.
func (m *MessageManager) AcceptOutgoing(count, tag uint8, args []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	encoded := proto.EncodeOutgoing(count, tag, args)
	m.outMessage = sliceable.New(encoded)
	m.outState = MessageReady
}

// IsOutgoingReady reports whether a message is staged, transitioning
// Ready→BeingSent as a side effect of a true answer.
func (m *MessageManager) IsOutgoingReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outState == MessageReady {
		m.outState = MessageBeingSent
		return true
	}
	return false
}

// GetOutgoingSlice returns the next chunk of the staged outbound
// message sized to size, transitioning BeingSent→Sent on the final
// chunk.
func (m *MessageManager) GetOutgoingSlice(buf []byte, size int) sliceable.Slice {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outMessage == nil {
		return sliceable.Slice{Len: 0, Last: true}
	}
	slice := m.outMessage.GetSlice(buf, size)
	if slice.Last {
		m.outState = MessageSent
	}
	return slice
}

// AckSlice consumes one transport-level acknowledgement for the slice
// stream: BeingSent returns true (more slices expected), Sent
// transitions to Acknowledged and returns false. An ack arriving while
// NoMessage or Ready is unsolicited: it is logged and returns false
// without changing state.
func (m *MessageManager) AckSlice(logger *logging.Logger) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.outState {
	case MessageBeingSent:
		return true
	case MessageSent:
		m.outState = MessageAcknowledged
		return false
	default:
		if logger != nil {
			logger.Warn("unsolicited outbound message ack", "state", m.outState.String())
		}
		return false
	}
}

// WasMessageAcknowledged reports whether the staged message reached
// Acknowledged, consuming it (Acknowledged→NoMessage) if so.
func (m *MessageManager) WasMessageAcknowledged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outState == MessageAcknowledged {
		m.outState = NoMessage
		m.outMessage = nil
		return true
	}
	return false
}

// OutState returns the current outbound state, for tests and logging.
func (m *MessageManager) OutState() OutMessageState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outState
}
