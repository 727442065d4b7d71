// Package registry implements the master-side Subkernel state machine,
// the inbound message FIFO, and the partial-message assembly map — the
// three pieces of process-wide state guarded by a single registry
// mutex (see spec §3 Ownership, §5 Shared resources).
package registry

import (
	"sync"
	"time"

	"github.com/rtio-systems/subkernel/internal/proto"
)

// SubkernelState is the finite state machine described in spec §3.
type SubkernelState int

const (
	StateNotLoaded SubkernelState = iota
	StateUploaded
	StateRunning
	StateFinishedOk
	StateFinishedException
	StateFinishedCommLost
)

func (s SubkernelState) String() string {
	switch s {
	case StateNotLoaded:
		return "NotLoaded"
	case StateUploaded:
		return "Uploaded"
	case StateRunning:
		return "Running"
	case StateFinishedOk:
		return "Finished{Ok}"
	case StateFinishedException:
		return "Finished{Exception}"
	case StateFinishedCommLost:
		return "Finished{CommLost}"
	default:
		return "Unknown"
	}
}

// Finished reports whether the state is one of the Finished{*} variants.
func (s SubkernelState) Finished() bool {
	switch s {
	case StateFinishedOk, StateFinishedException, StateFinishedCommLost:
		return true
	default:
		return false
	}
}

// Subkernel is the master's view of one registered subkernel (spec §3).
type Subkernel struct {
	ID          uint32
	Destination uint8
	Image       []byte
	State       SubkernelState
}

// Message is one assembled interkernel message addressed to the host
// session, tagged with the subkernel id it originated from.
type Message struct {
	FromID uint32
	proto.Message
}

// Registry holds SUBKERNELS, MESSAGE_QUEUE and CURRENT_MESSAGES behind
// one mutex, exactly as spec §5 requires: every operation below
// acquires it at entry, and Clear drops all three atomically.
type Registry struct {
	mu sync.Mutex

	entries         map[uint32]*Subkernel
	messageQueue    []Message
	currentMessages map[uint32]*Message
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		entries:         make(map[uint32]*Subkernel),
		currentMessages: make(map[uint32]*Message),
	}
}

// Add inserts or overwrites the entry for id, state NotLoaded. Cannot
// fail (I-M1, I1).
func (r *Registry) Add(id uint32, destination uint8, image []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &Subkernel{
		ID:          id,
		Destination: destination,
		Image:       image,
		State:       StateNotLoaded,
	}
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id uint32) (Subkernel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Subkernel{}, false
	}
	return *e, true
}

// Clear wipes the registry, the inbound FIFO, and the partial-assembly
// map atomically under the registry mutex (I-M4).
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[uint32]*Subkernel)
	r.messageQueue = nil
	r.currentMessages = make(map[uint32]*Message)
}

// ErrNotFound/ErrIncorrectState are returned by the pure state-machine
// helpers below; callers in internal/coordinator translate them into
// *subkernel.Error.
type StateError string

func (e StateError) Error() string { return string(e) }

const (
	ErrNotFound       StateError = "registry: subkernel not found"
	ErrIncorrectState StateError = "registry: incorrect state"
)

// BeginUpload requires the entry exists (any prior state: re-upload is
// idempotent) and returns its destination/image for the caller to hand
// to the transport outside the lock.
func (r *Registry) BeginUpload(id uint32) (destination uint8, image []byte, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return 0, nil, ErrNotFound
	}
	return e.Destination, e.Image, nil
}

// CompleteUpload sets state to Uploaded after a successful transport
// upload.
func (r *Registry) CompleteUpload(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.State = StateUploaded
	}
}

// BeginLoad requires state Uploaded, else ErrIncorrectState, and
// returns the destination for the caller to issue Transport.Load.
func (r *Registry) BeginLoad(id uint32) (destination uint8, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return 0, ErrNotFound
	}
	if e.State != StateUploaded {
		return 0, ErrIncorrectState
	}
	return e.Destination, nil
}

// CompleteLoad sets state to Running iff run, leaves it Uploaded
// otherwise (§4.1 load).
func (r *Registry) CompleteLoad(id uint32, run bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	if run {
		e.State = StateRunning
	}
}

// SubkernelFinished is called by the link receiver on RunDone. If the
// entry is absent (post-clear race) it is silently ignored (§4.1,
// Open Question preserved as documented behaviour).
func (r *Registry) SubkernelFinished(id uint32, withException bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	if withException {
		e.State = StateFinishedException
	} else {
		e.State = StateFinishedOk
	}
}

// DestinationEntries returns the ids of every entry assigned to dest, a
// snapshot taken under the lock so the caller can issue transport I/O
// (e.g. destination_changed's re-upload) outside of it.
func (r *Registry) DestinationEntries(dest uint8) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint32
	for id, e := range r.entries {
		if e.Destination == dest {
			ids = append(ids, id)
		}
	}
	return ids
}

// ApplyDestinationUp sets id's state to Uploaded after a successful
// re-upload triggered by destination_changed(up=true); on failure the
// state is left as-is (§9 Open Question: no explicit error state).
func (r *Registry) ApplyDestinationUp(id uint32, uploadOK bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || !uploadOK {
		return
	}
	e.State = StateUploaded
}

// ApplyDestinationDown transitions every entry at dest: Running becomes
// Finished{CommLost}; anything else becomes NotLoaded (I3).
func (r *Registry) ApplyDestinationDown(dest uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Destination != dest {
			continue
		}
		if e.State == StateRunning {
			e.State = StateFinishedCommLost
		} else {
			e.State = StateNotLoaded
		}
	}
}

// FinishResult is what retrieve_finish_status hands back to the host.
type FinishResult struct {
	ID        uint32
	CommLost  bool
	Exception []byte
	HasExc    bool
}

// BeginRetrieveFinishStatus requires state Finished{*}, else
// ErrIncorrectState (I2), and reports whether exception bytes must be
// pulled from the transport.
func (r *Registry) BeginRetrieveFinishStatus(id uint32) (needException bool, commLost bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false, false, ErrNotFound
	}
	if !e.State.Finished() {
		return false, false, ErrIncorrectState
	}
	return e.State == StateFinishedException, e.State == StateFinishedCommLost, nil
}

// CompleteRetrieveFinishStatus moves state back to Uploaded, ready to
// re-run (§4.1 retrieve_finish_status).
func (r *Registry) CompleteRetrieveFinishStatus(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.State = StateUploaded
	}
}

// TryObserve performs the test_lock-style non-blocking peek used inside
// a cooperative wait predicate (await_finish, message_await): it
// attempts to acquire the mutex without blocking and, on success,
// reports the current state. locked=false means the lock was busy and
// the caller must retry on the next poll — it must never fall back to
// a blocking Lock from inside the wait predicate (see spec §5).
func (r *Registry) TryObserve(id uint32) (state SubkernelState, found bool, locked bool) {
	if !r.mu.TryLock() {
		return 0, false, false
	}
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return 0, false, true
	}
	return e.State, true, true
}

// MessageHandleIncoming assembles one frame addressed to id. If the
// entry is absent the frame is dropped (messages addressed to cleared
// subkernels are ignored). The lock acquisition models the
// cancellable-lock variant the original used: if cancelled is non-nil
// and reports true when this is called, the frame is dropped silently.
func (r *Registry) MessageHandleIncoming(id uint32, last bool, frame []byte, cancelled func() bool) {
	if cancelled != nil && cancelled() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return
	}

	partial, ok := r.currentMessages[id]
	if !ok {
		msg := proto.AssembleFirst(frame)
		partial = &Message{FromID: id, Message: msg}
		r.currentMessages[id] = partial
	} else {
		partial.Append(frame)
	}

	if last {
		delete(r.currentMessages, id)
		r.messageQueue = append(r.messageQueue, *partial)
	}
}

// MessageAwaitPoll scans MESSAGE_QUEUE for the first entry with
// FromID==id and, if present, removes and returns it. It is meant to
// be called repeatedly by a cooperative waiter; it takes the mutex
// unconditionally (message_await's lock discipline is ordinary,
// blocking Lock, unlike the test_lock used for the finished-state
// check it shares the wait loop with).
func (r *Registry) MessageAwaitPoll(id uint32) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.messageQueue {
		if m.FromID == id {
			r.messageQueue = append(r.messageQueue[:i], r.messageQueue[i+1:]...)
			return m, true
		}
	}
	return Message{}, false
}

// State returns the current state of id under a full (blocking) lock,
// used by message_await's IncorrectState/SubkernelFinished pre-checks.
func (r *Registry) State(id uint32) (SubkernelState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return 0, false
	}
	return e.State, true
}

// Now exists only to give tests a seam for deadline math without
// importing time at the call site; production code calls time.Now
// directly via internal/coordinator.
var Now = time.Now
