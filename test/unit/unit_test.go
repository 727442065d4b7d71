// Package unit exercises the public subkernel API (Master, Satellite,
// Metrics) as a black box, the way the teacher's test/unit package
// exercises the public Backend surface.
package unit

import (
	"context"
	"testing"
	"time"

	"github.com/rtio-systems/subkernel"
)

func TestMasterUploadLoadAwaitFinish(t *testing.T) {
	transport := subkernel.NewMemoryTransport()
	cfg := subkernel.DefaultMasterConfig()
	cfg.Transport = transport
	cfg.PollInterval = time.Millisecond
	master := subkernel.NewMaster(cfg)

	ctx := context.Background()
	master.Add(1, 3, []byte{1, 2, 3})

	if err := master.Upload(ctx, 1); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := master.Load(ctx, 1, true); err != nil {
		t.Fatalf("Load: %v", err)
	}

	master.SubkernelFinished(1, false)

	result, err := master.AwaitFinish(ctx, 1, time.Second)
	if err != nil {
		t.Fatalf("AwaitFinish: %v", err)
	}
	if result.ID != 1 || result.CommLost || result.HasExc {
		t.Fatalf("result = %+v, want a clean finish", result)
	}
}

func TestMasterLoadBeforeUploadIsIncorrectState(t *testing.T) {
	transport := subkernel.NewMemoryTransport()
	cfg := subkernel.DefaultMasterConfig()
	cfg.Transport = transport
	master := subkernel.NewMaster(cfg)

	master.Add(2, 3, []byte{1})
	if err := master.Load(context.Background(), 2, false); !subkernel.IsCode(err, subkernel.ErrCodeIncorrectState) {
		t.Fatalf("Load before Upload = %v, want IncorrectState", err)
	}
}

func TestMasterMessageRoundTrip(t *testing.T) {
	transport := subkernel.NewMemoryTransport()
	cfg := subkernel.DefaultMasterConfig()
	cfg.Transport = transport
	cfg.PollInterval = time.Millisecond
	master := subkernel.NewMaster(cfg)

	ctx := context.Background()
	master.Add(5, 1, []byte{1})
	if err := master.Upload(ctx, 5); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := master.Load(ctx, 5, true); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := master.MessageSend(ctx, 5, 1, 7, []byte{9}); err != nil {
		t.Fatalf("MessageSend: %v", err)
	}
	if len(transport.SentMessages()) != 1 {
		t.Fatalf("SentMessages = %d, want 1", len(transport.SentMessages()))
	}

	master.MessageHandleIncoming(5, true, []byte{1, 7, 0xAA})
	msg, err := master.MessageAwait(ctx, 5, time.Second)
	if err != nil {
		t.Fatalf("MessageAwait: %v", err)
	}
	if len(msg.Data) == 0 {
		t.Fatal("expected a non-empty assembled message")
	}
}

func TestMetricsSnapshotIsConsistent(t *testing.T) {
	m := subkernel.NewMetrics()
	m.RecordUpload(true)
	m.RecordLoad(true)
	m.RecordRun()
	m.RecordFinish(false, false, 1_000_000)

	snap := m.Snapshot()
	if snap.Uploads != 1 || snap.Loads != 1 || snap.Runs != 1 || snap.FinishedOk != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
