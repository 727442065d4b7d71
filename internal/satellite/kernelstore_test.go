package satellite

import "testing"

func TestKernelStoreAccumulates(t *testing.T) {
	s := NewKernelStore()
	s.Add(7, false, []byte{1, 2, 3})
	s.Add(7, true, []byte{4, 5})

	bytes, complete, ok := s.Get(7)
	if !ok || !complete {
		t.Fatalf("Get = (%v, %v, %v), want complete", bytes, complete, ok)
	}
	if string(bytes) != string([]byte{1, 2, 3, 4, 5}) {
		t.Fatalf("bytes = %v, want [1 2 3 4 5]", bytes)
	}
}

func TestKernelStoreReplacesAfterComplete(t *testing.T) {
	s := NewKernelStore()
	s.Add(7, true, []byte{1, 2, 3})
	s.Add(7, true, []byte{9})

	bytes, complete, ok := s.Get(7)
	if !ok || !complete {
		t.Fatalf("Get = (%v, %v, %v), want complete", bytes, complete, ok)
	}
	if string(bytes) != string([]byte{9}) {
		t.Fatalf("bytes = %v, want [9] (wholesale replacement)", bytes)
	}
}

func TestKernelStoreGetMissing(t *testing.T) {
	s := NewKernelStore()
	if _, _, ok := s.Get(1); ok {
		t.Fatal("expected miss on empty store")
	}
}
