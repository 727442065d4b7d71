package sliceable

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	data := make([]byte, 250)
	for i := range data {
		data[i] = byte(i)
	}

	s := New(data)
	buf := make([]byte, 64)
	var got []byte

	for {
		slice := s.GetSlice(buf, 64)
		got = append(got, buf[:slice.Len]...)
		if slice.Last {
			break
		}
	}

	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(data))
	}

	// Further calls must return {0, true}.
	for i := 0; i < 3; i++ {
		slice := s.GetSlice(buf, 64)
		if slice.Len != 0 || !slice.Last {
			t.Fatalf("call %d after exhaustion = %+v, want {0, true}", i, slice)
		}
	}
}

func TestEmptyData(t *testing.T) {
	s := New(nil)
	buf := make([]byte, 16)
	slice := s.GetSlice(buf, 16)
	if slice.Len != 0 || !slice.Last {
		t.Fatalf("empty data GetSlice = %+v, want {0, true}", slice)
	}
}

func TestExactMultiple(t *testing.T) {
	data := make([]byte, 128)
	s := New(data)
	buf := make([]byte, 64)

	slice := s.GetSlice(buf, 64)
	if slice.Len != 64 || slice.Last {
		t.Fatalf("first slice = %+v, want {64, false}", slice)
	}

	slice = s.GetSlice(buf, 64)
	if slice.Len != 64 || !slice.Last {
		t.Fatalf("second slice = %+v, want {64, true}", slice)
	}
}
