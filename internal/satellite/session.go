package satellite

import (
	"strings"
	"time"

	"github.com/rtio-systems/subkernel/internal/sliceable"
)

// KernelStateKind is the satellite's per-run state machine (spec §3
// Session, §4.3).
type KernelStateKind int

const (
	StateAbsent KernelStateKind = iota
	StateLoaded
	StateRunning
	StateMsgAwait
	StateMsgSending
)

func (k KernelStateKind) String() string {
	switch k {
	case StateAbsent:
		return "Absent"
	case StateLoaded:
		return "Loaded"
	case StateRunning:
		return "Running"
	case StateMsgAwait:
		return "MsgAwait"
	case StateMsgSending:
		return "MsgSending"
	default:
		return "Unknown"
	}
}

// Finished describes one completed run, handed out by
// Manager.GetLastFinished with take semantics (§8 invariant 7).
type Finished struct {
	ID            uint32
	WithException bool
}

// Session is the satellite's per-run state: the KernelState machine,
// the line-buffered log, the last synthesised/kernel-raised exception,
// and the independent inbound/outbound MessageManager halves.
type Session struct {
	state            KernelStateKind
	msgAwaitDeadline time.Time

	logBuffer     strings.Builder
	lastException *sliceable.Sliceable

	messages *MessageManager
}

func newSession() *Session {
	return &Session{state: StateAbsent, messages: newMessageManager()}
}

// reset restores the session to Absent with a fresh MessageManager and
// no buffered log or exception, as every early-exit path (normal
// finish, exception, forced stop) requires (§5 Shared resources).
func (s *Session) reset() {
	s.state = StateAbsent
	s.msgAwaitDeadline = time.Time{}
	s.logBuffer.Reset()
	s.lastException = nil
	s.messages = newMessageManager()
}

// appendLog appends text to the line buffer and, only once the
// accumulated buffer ends in '\n', returns the completed lines and
// clears the buffer (spec §4.3: "when buffer ends in '\n', emit each
// line as info log").
func (s *Session) appendLog(text string) []string {
	s.logBuffer.WriteString(text)
	buffered := s.logBuffer.String()
	if !strings.HasSuffix(buffered, "\n") {
		return nil
	}
	trimmed := strings.TrimSuffix(buffered, "\n")
	s.logBuffer.Reset()
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}
