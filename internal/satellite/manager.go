// Package satellite implements the satellite-node half of the
// subkernel protocol: a Manager that receives subkernel images in
// chunks, loads them onto a simulated auxiliary "kernel CPU", and
// drives the per-run Session state machine against both the mailbox
// and asynchronous interkernel-message traffic (spec §4.2–§4.7).
package satellite

import (
	"debug/elf"
	"fmt"
	"time"

	"github.com/rtio-systems/subkernel/internal/cache"
	"github.com/rtio-systems/subkernel/internal/constants"
	"github.com/rtio-systems/subkernel/internal/loader"
	"github.com/rtio-systems/subkernel/internal/logging"
	"github.com/rtio-systems/subkernel/internal/mailbox"
	"github.com/rtio-systems/subkernel/internal/metrics"
	"github.com/rtio-systems/subkernel/internal/proto"
	"github.com/rtio-systems/subkernel/internal/sliceable"
)

// ManagerConfig holds the Manager's tunables, following the
// Config/DefaultConfig pattern used throughout this stack.
type ManagerConfig struct {
	// Rank is this satellite's destination identifier, used to answer
	// RTIO destination-status requests (§4.7).
	Rank uint8

	// Machine restricts the loader's architecture check to a single
	// ELF machine type; elf.EM_NONE accepts any.
	Machine elf.Machine

	// KsupportImage is the statically-linked support image placed
	// into the auxiliary processor's window on every load (§4.2). It
	// is not part of the subkernel protocol itself (external
	// resource, §1) but Load cannot proceed without one.
	KsupportImage []byte

	Logger *logging.Logger

	// LoadTimeout bounds how long Load waits for the kernel CPU's
	// LoadReply.
	LoadTimeout time.Duration
	// KernRecvTimeout bounds each mailbox poll while streaming an
	// interkernel message into the kernel (§4.5).
	KernRecvTimeout time.Duration
	// PollInterval is how often the bounded waits above re-check the
	// mailbox.
	PollInterval time.Duration

	// Metrics, if set, is recorded against at every real lifecycle call
	// site below. Nil disables metrics recording entirely.
	Metrics *metrics.Metrics
}

// DefaultManagerConfig returns sane defaults; KsupportImage is left
// nil and must be set by the caller (or supplied to NewManager) before
// any subkernel can be loaded.
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		Machine:         elf.EM_NONE,
		LoadTimeout:     constants.DefaultAwaitFinishTimeout,
		KernRecvTimeout: constants.KernRecvTimeout,
		PollInterval:    constants.PollInterval,
	}
}

// Manager is the satellite's top-level driver (spec §4.2), the sole
// owner of the auxiliary processor's reset line, the RTIO arbiter
// selection, and the Cache's borrow flag (§5, §9 Ownership).
type Manager struct {
	cfg *ManagerConfig

	mbox  mailbox.Mailbox
	c     cache.Cache
	arena *loader.Arena
	store *KernelStore

	session *Session

	currentID  uint32
	hasCurrent bool

	resetAsserted bool
	rtioKernel    bool
	cacheBorrowed bool

	lastFinished *Finished
	runStartedAt time.Time
}

// NewManager wires a Mailbox, Cache, and placement Arena into a
// Manager. cfg may be nil (DefaultManagerConfig is used); ksupportImage
// always overrides cfg.KsupportImage, since it identifies the binary
// this satellite runs rather than a tunable.
func NewManager(mbox mailbox.Mailbox, c cache.Cache, arena *loader.Arena, ksupportImage []byte, cfg *ManagerConfig) *Manager {
	if cfg == nil {
		cfg = DefaultManagerConfig()
	}
	cfgCopy := *cfg
	cfgCopy.KsupportImage = ksupportImage

	return &Manager{
		cfg:           &cfgCopy,
		mbox:          mbox,
		c:             c,
		arena:         arena,
		store:         NewKernelStore(),
		session:       newSession(),
		resetAsserted: true,
	}
}

// Add accumulates one chunk of subkernel id's image (§4.2 add).
func (m *Manager) Add(id uint32, last bool, chunk []byte) {
	m.store.Add(id, last, chunk)
}

// IsRunning reports whether a subkernel is past Loaded: Running,
// MsgAwait, or MsgSending all count (§8 invariant 7).
func (m *Manager) IsRunning() bool {
	switch m.session.state {
	case StateRunning, StateMsgAwait, StateMsgSending:
		return true
	default:
		return false
	}
}

// GetCurrentID returns the id of the subkernel currently loaded or
// running, if any.
func (m *Manager) GetCurrentID() (uint32, bool) {
	return m.currentID, m.hasCurrent
}

// Stop resets the auxiliary processor, drops the session to Absent,
// and releases any outstanding cache borrow (§4.2 stop).
func (m *Manager) Stop() {
	m.stopAux()
	m.session.reset()
	m.restoreArbiter()
	m.cacheBorrowed = false
}

// Shutdown matches the destructor behaviour §4.2/§6 require on drop:
// restore the RTIO arbiter to "drtio" and reset the auxiliary
// processor.
func (m *Manager) Shutdown() {
	m.Stop()
}

func (m *Manager) stopAux() {
	m.resetAsserted = true
}

func (m *Manager) restoreArbiter() {
	m.rtioKernel = false
}

// Load places the ksupport image and streams the named subkernel's
// bytes into it over the mailbox (§4.2 load). A no-op if the subkernel
// is already the current, Loaded one.
func (m *Manager) Load(id uint32) error {
	if m.hasCurrent && m.currentID == id && m.session.state == StateLoaded {
		return nil
	}

	bytes, complete, ok := m.store.Get(id)
	if !ok || !complete {
		m.recordLoad(false)
		return newError("load", ErrKindKernelNotFound, fmt.Sprintf("subkernel %d not found or incomplete", id))
	}
	if len(m.cfg.KsupportImage) == 0 {
		m.recordLoad(false)
		return newError("load", ErrKindLoad, "no ksupport image configured")
	}

	m.stopAux()
	m.session.reset()
	m.cacheBorrowed = false

	if err := loader.Place(m.arena, m.cfg.KsupportImage, m.cfg.Machine); err != nil {
		m.recordLoad(false)
		return wrapError("load", ErrKindLoad, err)
	}
	m.resetAsserted = false

	if err := m.mbox.Send(mailbox.LoadRequest{Library: bytes}); err != nil {
		m.recordLoad(false)
		return wrapError("load", ErrKindSubkernelIoError, err)
	}

	reply, err := m.pollMailbox(m.cfg.LoadTimeout)
	if err != nil {
		m.recordLoad(false)
		return wrapError("load", ErrKindSubkernelIoError, err)
	}
	if reply == nil {
		m.recordLoad(false)
		return newError("load", ErrKindSubkernelIoError, "timed out waiting for LoadReply")
	}

	lr, ok := reply.(mailbox.LoadReply)
	if !ok {
		m.mbox.Acknowledge()
		m.recordLoad(false)
		return newError("load", ErrKindUnexpected, fmt.Sprintf("expected LoadReply, got %T", reply))
	}
	m.mbox.Acknowledge()

	if !lr.Success {
		m.stopAux()
		m.recordLoad(false)
		return newError("load", ErrKindLoad, lr.Error)
	}

	m.currentID = id
	m.hasCurrent = true
	m.session.state = StateLoaded
	m.recordLoad(true)
	return nil
}

// Run ensures id is Loaded (reloading if necessary), then switches to
// Running and selects the RTIO arbiter to "kernel" (§4.2 run).
func (m *Manager) Run(id uint32) error {
	if !(m.hasCurrent && m.currentID == id && m.session.state == StateLoaded) {
		if err := m.Load(id); err != nil {
			return err
		}
	}
	m.session.state = StateRunning
	m.rtioKernel = true
	m.mbox.Acknowledge()
	m.runStartedAt = timeNow()
	m.recordRun()
	return nil
}

// MessageHandleIncoming feeds one inbound transport frame to the
// session's MessageManager.
func (m *Manager) MessageHandleIncoming(last bool, frame []byte) {
	m.session.messages.HandleIncoming(last, frame)
}

// MessageIsReady reports whether a staged outbound message is ready to
// send, per MessageManager.IsOutgoingReady.
func (m *Manager) MessageIsReady() bool {
	return m.session.messages.IsOutgoingReady()
}

// MessageGetSlice returns the next outbound slice, sized to the
// satellite-to-satellite payload maximum.
func (m *Manager) MessageGetSlice(buf []byte) sliceable.Slice {
	return m.session.messages.GetOutgoingSlice(buf, constants.SatPayloadMax)
}

// MessageAckSlice consumes one transport-level ack for the outbound
// slice stream.
func (m *Manager) MessageAckSlice() bool {
	return m.session.messages.AckSlice(m.cfg.Logger)
}

// GetLastFinished returns the most recent run's outcome, exactly once
// (take semantics, §8 invariant 7).
func (m *Manager) GetLastFinished() (Finished, bool) {
	if m.lastFinished == nil {
		return Finished{}, false
	}
	f := *m.lastFinished
	m.lastFinished = nil
	return f, true
}

// ExceptionGetSlice streams the last run's exception bytes, if any.
func (m *Manager) ExceptionGetSlice(buf []byte) sliceable.Slice {
	if m.session.lastException == nil {
		return sliceable.Slice{Len: 0, Last: true}
	}
	return m.session.lastException.GetSlice(buf, constants.SatPayloadMax)
}

// ProcessKernRequests is the single per-tick driver (§4.3): a no-op
// unless running, otherwise Phase A (external-message servicing) then
// Phase B (one mailbox step).
func (m *Manager) ProcessKernRequests(rank uint8) error {
	if !m.IsRunning() {
		return nil
	}

	if err := m.processPhaseA(); err != nil {
		return m.handleRunError(err)
	}
	if !m.IsRunning() {
		return nil
	}

	if err := m.processPhaseB(); err != nil {
		return m.handleRunError(err)
	}
	return nil
}

func (m *Manager) processPhaseA() error {
	switch m.session.state {
	case StateMsgAwait:
		if timeNow().After(m.session.msgAwaitDeadline) {
			if err := m.mbox.Send(mailbox.SubkernelMsgRecvReply{Status: mailbox.RecvTimeout, Count: 0}); err != nil {
				return wrapError("processKernRequests", ErrKindSubkernelIoError, err)
			}
			m.mbox.Acknowledge()
			m.session.state = StateRunning
			return nil
		}
		if msg, ok := m.session.messages.PopIncoming(); ok {
			if err := m.mbox.Send(mailbox.SubkernelMsgRecvReply{Status: mailbox.RecvNoError, Count: msg.TagCount}); err != nil {
				return wrapError("processKernRequests", ErrKindSubkernelIoError, err)
			}
			m.mbox.Acknowledge()
			m.session.state = StateRunning
			if err := m.passMessageToKernel(msg); err != nil {
				return err
			}
		}
	case StateMsgSending:
		if m.session.messages.WasMessageAcknowledged() {
			m.session.state = StateRunning
			m.mbox.Acknowledge()
		}
	}
	return nil
}

func (m *Manager) processPhaseB() error {
	// MsgAwait/MsgSending hold the mailbox's one slot occupied by the
	// very request that drove the session into that state, still
	// un-acked; Phase A alone drives the exit from them (S5, S6), so
	// there is nothing new for Phase B to dispatch this tick.
	if m.session.state != StateRunning && m.session.state != StateLoaded {
		return nil
	}

	msg, err := m.mbox.Receive()
	if err != nil {
		return wrapError("processKernRequests", ErrKindInvalidPointer, err)
	}
	if msg == nil {
		return nil
	}

	if _, ok := msg.(mailbox.LoadReply); ok {
		if m.session.state != StateLoaded {
			return newError("processKernRequests", ErrKindUnexpected, "unexpected standby LoadReply")
		}
		m.mbox.Acknowledge()
		return nil
	}

	if m.session.state != StateRunning {
		return nil
	}

	switch req := msg.(type) {
	case mailbox.Log:
		m.emitLog(req.Text)
		m.mbox.Acknowledge()

	case mailbox.LogSlice:
		m.emitLog(req.Data)
		m.mbox.Acknowledge()

	case mailbox.RpcFlush:
		m.mbox.Acknowledge()

	case mailbox.CacheGetRequest:
		value, _ := m.c.Get(req.Key)
		m.cacheBorrowed = true
		if err := m.mbox.Send(mailbox.CacheGetReply{Value: value}); err != nil {
			return wrapError("processKernRequests", ErrKindSubkernelIoError, err)
		}
		m.mbox.Acknowledge()

	case mailbox.CachePutRequest:
		ok := m.c.Put(req.Key, req.Value)
		if err := m.mbox.Send(mailbox.CachePutReply{Succeeded: ok}); err != nil {
			return wrapError("processKernRequests", ErrKindSubkernelIoError, err)
		}
		m.mbox.Acknowledge()

	case mailbox.RunFinished:
		m.finishRun(false, nil)
		m.mbox.Acknowledge()

	case mailbox.RunExceptionMsg:
		m.finishRun(true, req.RunException.Marshal())
		m.mbox.Acknowledge()

	case mailbox.SubkernelMsgSend:
		m.session.messages.AcceptOutgoing(req.Count, req.Tag, req.Data)
		m.session.state = StateMsgSending
		// Not acknowledged yet: the original kernel request is only
		// acked once the outbound message reaches Acknowledged (§4.3
		// Phase A MsgSending branch, S6).

	case mailbox.SubkernelMsgRecvRequest:
		m.session.msgAwaitDeadline = timeNow().Add(req.Timeout)
		m.session.state = StateMsgAwait
		// Not acknowledged yet: deferred until a reply is sent (§4.3
		// Phase A MsgAwait branch, S5).

	default:
		if handled, reply := m.dispatchHWRequest(msg); handled {
			if err := m.mbox.Send(reply); err != nil {
				return wrapError("processKernRequests", ErrKindSubkernelIoError, err)
			}
			m.mbox.Acknowledge()
		} else {
			return newError("processKernRequests", ErrKindUnexpected, fmt.Sprintf("unrecognised request %T", msg))
		}
	}
	return nil
}

// passMessageToKernel streams one assembled Message into the loaded
// kernel (§4.5): count typed values, one RpcRecvRequest/RpcRecvReply
// round trip per value. Decoding the argument stream itself is
// ksupport's job (out of scope, §1); each round trip here always
// answers RpcRecvReply{Size:0}, completing the value in one step.
func (m *Manager) passMessageToKernel(msg proto.Message) error {
	for i := uint8(0); i < msg.TagCount; i++ {
		req, err := m.pollMailbox(m.cfg.KernRecvTimeout)
		if err != nil {
			return wrapError("passMessageToKernel", ErrKindSubkernelIoError, err)
		}
		if req == nil {
			return newError("passMessageToKernel", ErrKindSubkernelIoError, "timed out waiting for RpcRecvRequest")
		}

		switch r := req.(type) {
		case mailbox.RpcRecvRequest:
			if err := m.mbox.Send(mailbox.RpcRecvReply{Size: 0}); err != nil {
				return wrapError("passMessageToKernel", ErrKindSubkernelIoError, err)
			}
			m.mbox.Acknowledge()

		case mailbox.RunExceptionMsg:
			return &Error{
				Op:        "passMessageToKernel",
				Kind:      ErrKindKernelException,
				Msg:       r.Message,
				Exception: r.RunException.Marshal(),
			}

		default:
			return newError("passMessageToKernel", ErrKindUnexpected, "expected valid subkernel message data")
		}
	}
	return nil
}

// handleRunError implements the propagation policy (§7): control
// signals are swallowed, a KernelException's carried bytes become the
// exception record verbatim, anything else is synthesised as a
// SubkernelError runtime exception (§4.6).
func (m *Manager) handleRunError(err error) error {
	if IsControlSignal(err) {
		return nil
	}

	var excBytes []byte
	if se, ok := err.(*Error); ok && se.Kind == ErrKindKernelException {
		excBytes = se.Exception
	} else {
		excBytes = proto.RunException{
			KindID:  constants.SubkernelErrorID,
			Message: err.Error(),
		}.Marshal()
	}
	m.finishRun(true, excBytes)
	return err
}

func (m *Manager) finishRun(withException bool, excBytes []byte) {
	id := m.currentID
	m.stopAux()
	m.session.reset()
	m.restoreArbiter()
	m.cacheBorrowed = false
	if withException {
		m.session.lastException = sliceable.New(excBytes)
	}
	m.lastFinished = &Finished{ID: id, WithException: withException}

	var latencyNs uint64
	if !m.runStartedAt.IsZero() {
		latencyNs = uint64(timeNow().Sub(m.runStartedAt).Nanoseconds())
		m.runStartedAt = time.Time{}
	}
	m.recordFinish(withException, latencyNs)
}

func (m *Manager) emitLog(text string) {
	lines := m.session.appendLog(text)
	if m.cfg.Logger == nil {
		return
	}
	for _, line := range lines {
		m.cfg.Logger.Info(line)
	}
}

// pollMailbox polls the mailbox until a message arrives or deadline
// elapses, returning (nil, nil) on timeout. It never blocks past the
// deadline and never holds a lock across the wait (§5).
func (m *Manager) pollMailbox(timeout time.Duration) (mailbox.Message, error) {
	deadline := timeNow().Add(timeout)
	for {
		msg, err := m.mbox.Receive()
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
		if !timeNow().Before(deadline) {
			return nil, nil
		}
		sleep(m.cfg.PollInterval)
	}
}

// timeNow and sleep are indirection seams so tests can push mailbox
// messages synchronously without depending on wall-clock scheduling
// beyond a single poll.
var timeNow = time.Now
var sleep = time.Sleep

func (m *Manager) recordLoad(success bool) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordLoad(success)
	}
}

func (m *Manager) recordRun() {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordRun()
	}
}

// recordFinish reports a completed run; a satellite never detects
// comm-loss itself (that is the master's destination_changed
// responsibility), so commLost is always false here.
func (m *Manager) recordFinish(withException bool, latencyNs uint64) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordFinish(withException, false, latencyNs)
	}
}

func (m *Manager) recordHWRequest() {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordHWRequest()
	}
}
