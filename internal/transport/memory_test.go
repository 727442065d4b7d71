package transport

import (
	"context"
	"testing"
)

func TestMemoryTransportUploadLoad(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()

	if err := tr.Load(ctx, 7, 2, true); err != ErrImageNotUploaded {
		t.Fatalf("Load before Upload = %v, want ErrImageNotUploaded", err)
	}
	if err := tr.Upload(ctx, 7, 2, []byte("image")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := tr.Load(ctx, 7, 2, true); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestMemoryTransportDestinationDown(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()
	tr.SetDestinationDown(2, true)

	if err := tr.Upload(ctx, 7, 2, []byte("image")); err != ErrDestinationDown {
		t.Fatalf("Upload on down destination = %v, want ErrDestinationDown", err)
	}
}

func TestMemoryTransportRetrieveException(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()
	tr.SetPendingException(2, []byte("E"))

	data, err := tr.RetrieveException(ctx, 2)
	if err != nil {
		t.Fatalf("RetrieveException: %v", err)
	}
	if string(data) != "E" {
		t.Fatalf("data = %q, want E", data)
	}

	// Second call: exception already consumed.
	data, err = tr.RetrieveException(ctx, 2)
	if err != nil || len(data) != 0 {
		t.Fatalf("second RetrieveException = (%v, %v), want (nil, nil)", data, err)
	}
}
