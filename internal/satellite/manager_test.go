package satellite

import (
	"debug/elf"
	"encoding/binary"
	"testing"
	"time"

	"github.com/rtio-systems/subkernel/internal/cache"
	"github.com/rtio-systems/subkernel/internal/constants"
	"github.com/rtio-systems/subkernel/internal/loader"
	"github.com/rtio-systems/subkernel/internal/mailbox"
	"github.com/rtio-systems/subkernel/internal/metrics"
)

// buildKsupportImage constructs a minimal valid ELF64 EXEC image
// satisfying the loader's placement invariants, standing in for the
// statically-linked ksupport image in these tests.
func buildKsupportImage(t *testing.T) []byte {
	t.Helper()

	const ehdrSize = 64
	const phdrSize = 56
	const payloadLen = 64
	fileSize := ehdrSize + phdrSize + payloadLen

	buf := make([]byte, fileSize)
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2
	buf[5] = 1
	buf[6] = 1

	le := binary.LittleEndian
	vaddr := uint64(constants.ExecAddress - constants.HeaderSize)

	le.PutUint16(buf[16:18], uint16(elf.ET_EXEC))
	le.PutUint16(buf[18:20], uint16(elf.EM_X86_64))
	le.PutUint32(buf[20:24], 1)
	le.PutUint64(buf[24:32], vaddr)
	le.PutUint64(buf[32:40], ehdrSize)
	le.PutUint64(buf[40:48], 0)
	le.PutUint32(buf[48:52], 0)
	le.PutUint16(buf[52:54], ehdrSize)
	le.PutUint16(buf[54:56], phdrSize)
	le.PutUint16(buf[56:58], 1)
	le.PutUint16(buf[58:60], 0)
	le.PutUint16(buf[60:62], 0)
	le.PutUint16(buf[62:64], 0)

	phdr := buf[ehdrSize : ehdrSize+phdrSize]
	le.PutUint32(phdr[0:4], uint32(elf.PT_LOAD))
	le.PutUint32(phdr[4:8], 5)
	le.PutUint64(phdr[8:16], 0)
	le.PutUint64(phdr[16:24], vaddr)
	le.PutUint64(phdr[24:32], vaddr)
	le.PutUint64(phdr[32:40], uint64(fileSize))
	le.PutUint64(phdr[40:48], 4096)
	le.PutUint64(phdr[48:56], 0x1000)

	return buf
}

func newTestManager(t *testing.T) (*Manager, *mailbox.SimMailbox) {
	t.Helper()
	arena, err := loader.NewArena()
	if err != nil {
		t.Skipf("mmap unavailable in this environment: %v", err)
	}
	t.Cleanup(func() { arena.Close() })

	mbox := mailbox.NewSimMailbox()
	c := cache.NewMemoryCache()
	cfg := DefaultManagerConfig()
	cfg.Rank = 3
	cfg.LoadTimeout = time.Second
	cfg.KernRecvTimeout = time.Second
	cfg.PollInterval = time.Microsecond

	m := NewManager(mbox, c, arena, buildKsupportImage(t), cfg)
	return m, mbox
}

func loadAndRun(t *testing.T, m *Manager, mbox *mailbox.SimMailbox, id uint32) {
	t.Helper()
	m.Add(id, true, []byte{1, 2, 3, 4})
	mbox.Push(mailbox.LoadReply{Success: true})
	if err := m.Load(id); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Run(id); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !m.IsRunning() {
		t.Fatal("expected IsRunning after Run")
	}
}

func TestManagerLoadRejectsIncompleteKernel(t *testing.T) {
	m, _ := newTestManager(t)
	m.Add(9, false, []byte{1})
	if err := m.Load(9); err == nil {
		t.Fatal("expected error loading an incomplete kernel")
	}
}

func TestManagerLoadAndRunHappyPath(t *testing.T) {
	m, mbox := newTestManager(t)
	loadAndRun(t, m, mbox, 7)
}

func TestManagerLoadRejectedByKernel(t *testing.T) {
	m, mbox := newTestManager(t)
	m.Add(7, true, []byte{1, 2, 3})
	mbox.Push(mailbox.LoadReply{Success: false, Error: "boom"})

	if err := m.Load(7); err == nil {
		t.Fatal("expected Load to fail on LoadReply{Success:false}")
	}
}

func TestManagerRunFinishedSetsLastFinishedOnce(t *testing.T) {
	m, mbox := newTestManager(t)
	loadAndRun(t, m, mbox, 7)

	mbox.Push(mailbox.RunFinished{})
	if err := m.ProcessKernRequests(3); err != nil {
		t.Fatalf("ProcessKernRequests: %v", err)
	}

	if m.IsRunning() {
		t.Fatal("expected IsRunning to be false after RunFinished")
	}
	f, ok := m.GetLastFinished()
	if !ok || f.ID != 7 || f.WithException {
		t.Fatalf("GetLastFinished = (%+v, %v), want ({7 false}, true)", f, ok)
	}
	if _, ok := m.GetLastFinished(); ok {
		t.Fatal("expected GetLastFinished to be take-once")
	}
}

func TestManagerRunExceptionRecordsException(t *testing.T) {
	m, mbox := newTestManager(t)
	loadAndRun(t, m, mbox, 7)

	mbox.Push(mailbox.RunExceptionMsg{})
	if err := m.ProcessKernRequests(3); err != nil {
		t.Fatalf("ProcessKernRequests: %v", err)
	}

	f, ok := m.GetLastFinished()
	if !ok || !f.WithException {
		t.Fatalf("GetLastFinished = (%+v, %v), want WithException=true", f, ok)
	}

	buf := make([]byte, 1024)
	slice := m.ExceptionGetSlice(buf)
	if slice.Len == 0 {
		t.Fatal("expected a non-empty exception record")
	}
}

func TestManagerMsgAwaitTimeoutS5(t *testing.T) {
	m, mbox := newTestManager(t)
	loadAndRun(t, m, mbox, 7)

	base := time.Now()
	timeNow = func() time.Time { return base }
	defer func() { timeNow = time.Now }()

	mbox.Push(mailbox.SubkernelMsgRecvRequest{Timeout: 10 * time.Millisecond})
	if err := m.ProcessKernRequests(3); err != nil {
		t.Fatalf("ProcessKernRequests: %v", err)
	}
	if m.session.state != StateMsgAwait {
		t.Fatalf("state = %v, want MsgAwait", m.session.state)
	}

	timeNow = func() time.Time { return base.Add(11 * time.Millisecond) }
	if err := m.ProcessKernRequests(3); err != nil {
		t.Fatalf("ProcessKernRequests: %v", err)
	}
	if m.session.state != StateRunning {
		t.Fatalf("state = %v, want Running after timeout", m.session.state)
	}
	reply, ok := mbox.LastSent().(mailbox.SubkernelMsgRecvReply)
	if !ok || reply.Status != mailbox.RecvTimeout {
		t.Fatalf("LastSent = %+v, want SubkernelMsgRecvReply{Timeout}", mbox.LastSent())
	}
}

func TestManagerMsgSendAckOrderingS6(t *testing.T) {
	m, mbox := newTestManager(t)
	loadAndRun(t, m, mbox, 7)

	mbox.Push(mailbox.SubkernelMsgSend{Count: 1, Tag: 42, Data: []byte{9}})
	if err := m.ProcessKernRequests(3); err != nil {
		t.Fatalf("ProcessKernRequests: %v", err)
	}
	if m.session.state != StateMsgSending {
		t.Fatalf("state = %v, want MsgSending", m.session.state)
	}
	if pending, _ := mbox.Receive(); pending == nil {
		t.Fatal("expected the original SubkernelMsgSend to remain un-acked")
	}

	// Drive the outbound slice machine to completion, as the
	// satellite's transport glue would.
	if !m.MessageIsReady() {
		t.Fatal("expected outbound message to be ready")
	}
	buf := make([]byte, 4)
	for {
		slice := m.MessageGetSlice(buf)
		if slice.Last {
			break
		}
		m.MessageAckSlice()
	}
	m.MessageAckSlice() // Sent -> Acknowledged

	if err := m.ProcessKernRequests(3); err != nil {
		t.Fatalf("ProcessKernRequests: %v", err)
	}
	if m.session.state != StateRunning {
		t.Fatalf("state = %v, want Running after ack completes", m.session.state)
	}
	if pending, _ := mbox.Receive(); pending != nil {
		t.Fatal("expected the original SubkernelMsgSend to finally be acked")
	}
}

func TestManagerHardwareRequestRTIODestinationStatus(t *testing.T) {
	m, mbox := newTestManager(t)
	loadAndRun(t, m, mbox, 7)

	mbox.Push(mailbox.HWRequest{Kind: mailbox.HWRTIODestinationStatus, Destination: 3})
	if err := m.ProcessKernRequests(3); err != nil {
		t.Fatalf("ProcessKernRequests: %v", err)
	}
	reply, ok := mbox.LastSent().(mailbox.HWReply)
	if !ok || !reply.Succeeded || !reply.Up {
		t.Fatalf("LastSent = %+v, want {Succeeded:true Up:true}", mbox.LastSent())
	}
}

func TestManagerMetricsRecordedFromRealLifecycle(t *testing.T) {
	m, mbox := newTestManager(t)
	mm := metrics.New()
	m.cfg.Metrics = mm

	loadAndRun(t, m, mbox, 7)

	mbox.Push(mailbox.HWRequest{Kind: mailbox.HWRTIODestinationStatus, Destination: 3})
	if err := m.ProcessKernRequests(3); err != nil {
		t.Fatalf("ProcessKernRequests: %v", err)
	}

	mbox.Push(mailbox.RunFinished{})
	if err := m.ProcessKernRequests(3); err != nil {
		t.Fatalf("ProcessKernRequests: %v", err)
	}

	snap := mm.Snapshot()
	if snap.Loads != 1 || snap.Runs != 1 || snap.FinishedOk != 1 {
		t.Fatalf("snapshot = %+v, want one real load/run/finish", snap)
	}
	if snap.HWRequests != 1 {
		t.Fatalf("snapshot = %+v, want one real hardware request", snap)
	}
}

func TestManagerMetricsRecordLoadFailure(t *testing.T) {
	m, mbox := newTestManager(t)
	mm := metrics.New()
	m.cfg.Metrics = mm

	m.Add(7, true, []byte{1, 2, 3})
	mbox.Push(mailbox.LoadReply{Success: false, Error: "boom"})
	if err := m.Load(7); err == nil {
		t.Fatal("expected Load to fail on LoadReply{Success:false}")
	}

	snap := mm.Snapshot()
	if snap.Loads != 1 || snap.LoadErrors != 1 {
		t.Fatalf("snapshot = %+v, want one failed load", snap)
	}
}

func TestManagerCacheGetPut(t *testing.T) {
	m, mbox := newTestManager(t)
	loadAndRun(t, m, mbox, 7)

	m.c.Put("k", []byte("v"))
	mbox.Push(mailbox.CacheGetRequest{Key: "k"})
	if err := m.ProcessKernRequests(3); err != nil {
		t.Fatalf("ProcessKernRequests: %v", err)
	}
	reply, ok := mbox.LastSent().(mailbox.CacheGetReply)
	if !ok || string(reply.Value) != "v" {
		t.Fatalf("LastSent = %+v, want CacheGetReply{v}", mbox.LastSent())
	}
}
