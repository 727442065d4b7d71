package satellite

import "sync"

// kernelLibrary is the satellite's partial-or-complete view of one
// subkernel image (spec §3 KernelLibrary).
type kernelLibrary struct {
	bytes    []byte
	complete bool
}

// KernelStore holds every subkernel image chunked in via add, keyed by
// id. It is exclusively owned by Manager; no concurrent access is
// permitted (§3 Ownership), but the mutex is kept anyway since tests
// exercise it directly outside of a Manager.
type KernelStore struct {
	mu      sync.Mutex
	entries map[uint32]*kernelLibrary
}

// NewKernelStore returns an empty KernelStore.
func NewKernelStore() *KernelStore {
	return &KernelStore{entries: make(map[uint32]*kernelLibrary)}
}

// Add accumulates chunk into id's entry, or replaces it wholesale if
// an existing entry was already complete (§4.2 add). complete becomes
// the value of last for a fresh entry, or the OR of the prior value
// and last while still accumulating.
func (s *KernelStore) Add(id uint32, last bool, chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.complete {
		e = &kernelLibrary{}
		s.entries[id] = e
	}
	e.bytes = append(e.bytes, chunk...)
	e.complete = e.complete || last
}

// Get returns the accumulated bytes and completeness for id.
func (s *KernelStore) Get(id uint32) (bytes []byte, complete bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false, false
	}
	return e.bytes, e.complete, true
}
