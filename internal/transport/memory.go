package transport

import (
	"context"
	"sync"
)

// MemoryTransport is an in-memory reference Transport, useful for tests
// and the example commands. It simulates a fabric of destinations that
// can be marked up or down, and stores uploaded images and pending
// exception bytes per destination.
type MemoryTransport struct {
	mu sync.Mutex

	destinationsDown map[uint8]bool
	images           map[uint32][]byte
	exceptions       map[uint8][]byte
	messages         [][]byte

	uploadCalls        int
	loadCalls          int
	sendMessageCalls   int
	retrieveExcCalls   int
}

// NewMemoryTransport creates an empty in-memory transport with every
// destination initially up.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		destinationsDown: make(map[uint8]bool),
		images:           make(map[uint32][]byte),
		exceptions:       make(map[uint8][]byte),
	}
}

// SetDestinationDown marks a destination as unreachable; subsequent
// Upload/Load/SendMessage/RetrieveException calls against it fail.
func (m *MemoryTransport) SetDestinationDown(dest uint8, down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destinationsDown[dest] = down
}

// SetPendingException stages exception bytes to be returned by the
// next RetrieveException call for dest.
func (m *MemoryTransport) SetPendingException(dest uint8, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exceptions[dest] = data
}

func (m *MemoryTransport) down(dest uint8) bool {
	return m.destinationsDown[dest]
}

func (m *MemoryTransport) Upload(ctx context.Context, id uint32, dest uint8, image []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadCalls++
	if m.down(dest) {
		return ErrDestinationDown
	}
	m.images[id] = append([]byte(nil), image...)
	return nil
}

func (m *MemoryTransport) Load(ctx context.Context, id uint32, dest uint8, run bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls++
	if m.down(dest) {
		return ErrDestinationDown
	}
	if _, ok := m.images[id]; !ok {
		return ErrImageNotUploaded
	}
	return nil
}

func (m *MemoryTransport) SendMessage(ctx context.Context, id uint32, dest uint8, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendMessageCalls++
	if m.down(dest) {
		return ErrDestinationDown
	}
	m.messages = append(m.messages, append([]byte(nil), data...))
	return nil
}

func (m *MemoryTransport) RetrieveException(ctx context.Context, dest uint8) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrieveExcCalls++
	if m.down(dest) {
		return nil, ErrDestinationDown
	}
	data := m.exceptions[dest]
	delete(m.exceptions, dest)
	return data, nil
}

// SentMessages returns every payload handed to SendMessage, in order.
func (m *MemoryTransport) SentMessages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.messages))
	copy(out, m.messages)
	return out
}

// CallCounts reports how many times each method has been invoked.
func (m *MemoryTransport) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"upload":             m.uploadCalls,
		"load":               m.loadCalls,
		"send_message":       m.sendMessageCalls,
		"retrieve_exception": m.retrieveExcCalls,
	}
}

// TransportError is a sentinel error type for the in-memory transport.
type TransportError string

func (e TransportError) Error() string { return string(e) }

const (
	ErrDestinationDown  TransportError = "transport: destination down"
	ErrImageNotUploaded TransportError = "transport: image not uploaded"
)

var _ Transport = (*MemoryTransport)(nil)
