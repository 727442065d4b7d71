// Package mailbox models the one-slot pointer-passing channel between
// a satellite's main processor and its auxiliary "kernel CPU" (spec
// §6). The raw pointer/address layer is simulated; what crosses the
// Mailbox interface is the already-decoded Message (decoding a raw
// address into one of these structs is ksupport's job and out of
// scope per spec §1).
package mailbox

import (
	"sync"

	"github.com/rtio-systems/subkernel/internal/constants"
)

// Mailbox is the satellite main processor's view of the hardware
// mailbox. Receive is non-blocking: it returns (nil, nil) when no
// request is pending. Every received request must be Acknowledge'd
// exactly once before the next one is delivered.
type Mailbox interface {
	Receive() (Message, error)
	Acknowledge()
	Send(Message) error
	Acknowledged() bool
}

// Error is a sentinel error type for mailbox faults.
type Error string

func (e Error) Error() string { return string(e) }

const ErrInvalidPointer Error = "mailbox: pointer outside kernel CPU address window"

// SimMailbox is an in-process simulation of the hardware mailbox, used
// by the satellite manager's tests and by the example commands in lieu
// of a real kernel CPU. A test (or a kernel-CPU simulator) pushes
// inbound requests with Push and observes outbound sends with LastSent/
// SimulateKernelConsume.
type SimMailbox struct {
	mu sync.Mutex

	queue   []Message
	addrs   []uint32
	pending Message

	outMessage Message
	outAcked   bool
}

// NewSimMailbox returns an empty simulated mailbox.
func NewSimMailbox() *SimMailbox {
	return &SimMailbox{}
}

// Push enqueues a request as if the kernel CPU had issued it, as though
// the hardware register held constants.ExecAddress — a valid pointer
// into the kernel CPU's address window.
func (m *SimMailbox) Push(msg Message) {
	m.PushAt(msg, constants.ExecAddress)
}

// PushAt enqueues a request as if the hardware register held addr,
// letting tests drive the raw pointer-validation path in Receive
// directly instead of only through ForceInvalidPointer.
func (m *SimMailbox) PushAt(msg Message, addr uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, msg)
	m.addrs = append(m.addrs, addr)
}

// ForceInvalidPointer makes the next Receive call report
// ErrInvalidPointer instead of delivering the queued message, to
// exercise the address-window validation path without consuming a
// real queued message.
func (m *SimMailbox) ForceInvalidPointer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append([]Message{nil}, m.queue...)
	m.addrs = append([]uint32{0}, m.addrs...)
}

func (m *SimMailbox) Receive() (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != nil {
		return m.pending, nil
	}
	if len(m.queue) == 0 {
		return nil, nil
	}

	msg, addr := m.queue[0], m.addrs[0]
	m.queue, m.addrs = m.queue[1:], m.addrs[1:]
	if !validAddress(addr) {
		return nil, ErrInvalidPointer
	}
	m.pending = msg
	return m.pending, nil
}

func (m *SimMailbox) Acknowledge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
}

func (m *SimMailbox) Send(msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outMessage = msg
	m.outAcked = false
	return nil
}

func (m *SimMailbox) Acknowledged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outAcked
}

// LastSent returns the most recent message handed to Send, for test
// assertions.
func (m *SimMailbox) LastSent() Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outMessage
}

// SimulateKernelConsume marks the last outbound Send as consumed and
// acknowledged by the (simulated) kernel CPU.
func (m *SimMailbox) SimulateKernelConsume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outAcked = true
}

// validAddress reports whether addr falls within the kernel CPU's
// address window, matching the real mailbox's pointer-range check.
func validAddress(addr uint32) bool {
	return addr >= constants.ExecAddress && addr <= constants.LastAddress
}

var _ Mailbox = (*SimMailbox)(nil)
