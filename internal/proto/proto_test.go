package proto

import (
	"bytes"
	"testing"
)

func TestAssembleFirstAndAppend(t *testing.T) {
	frame1 := []byte{2, 9, 'A', 'A', 'A'}
	frame2 := []byte{'B', 'B', 'B'}

	msg := AssembleFirst(frame1)
	msg.Append(frame2)

	if msg.TagCount != 2 || msg.Tag != 9 {
		t.Fatalf("header = {%d,%d}, want {2,9}", msg.TagCount, msg.Tag)
	}
	if !bytes.Equal(msg.Data, []byte("AAABBB")) {
		t.Fatalf("data = %q, want AAABBB", msg.Data)
	}
}

func TestEncodeOutgoingOverwritesCount(t *testing.T) {
	out := EncodeOutgoing(3, 42, []byte("hello"))
	if out[0] != 3 {
		t.Fatalf("out[0] = %d, want count 3", out[0])
	}
	if len(out) != len("hello")+2 {
		t.Fatalf("len(out) = %d, want %d", len(out), len("hello")+2)
	}
}

func TestRunExceptionRoundTrip(t *testing.T) {
	r := RunException{
		KindID:  11,
		Message: "subkernel failed: boom",
	}
	data := r.Marshal()
	got, err := UnmarshalRunException(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.KindID != r.KindID || got.Message != r.Message {
		t.Fatalf("got %+v, want %+v", got, r)
	}
	if got.StackPointer != 0 || got.InitialBacktraceSize != 0 || got.CurrentBacktraceSize != 0 {
		t.Fatalf("expected zero-valued backtrace fields, got %+v", got)
	}
}

func TestUnmarshalRunExceptionShortBuffer(t *testing.T) {
	if _, err := UnmarshalRunException([]byte{1, 2, 3}); err != ErrShortBuffer {
		t.Fatalf("err = %v, want ErrShortBuffer", err)
	}
}
