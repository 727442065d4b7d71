// Package sliceable implements the cursor-based byte chunker used by
// the satellite's MessageManager and exception streaming. A Sliceable
// wraps a byte buffer and yields fixed-size slices, one call at a time,
// until the buffer is exhausted.
package sliceable

// Slice is one chunk returned by Sliceable.GetSlice: Len bytes were
// copied into the caller's buffer, and Last is true iff this was the
// final chunk of the underlying data.
type Slice struct {
	Len  int
	Last bool
}

// Sliceable yields fixed-size slices of Data starting at Cursor. Once a
// Slice with Last=true has been returned, every subsequent call returns
// {Len: 0, Last: true} without touching Cursor further.
type Sliceable struct {
	cursor int
	data   []byte
	done   bool
}

// New wraps data for chunked iteration.
func New(data []byte) *Sliceable {
	return &Sliceable{data: data}
}

// Len returns the total length of the wrapped data.
func (s *Sliceable) Len() int {
	return len(s.data)
}

// Data returns the full wrapped buffer, unaffected by cursor position.
func (s *Sliceable) Data() []byte {
	return s.data
}

// GetSlice copies up to len(buf) bytes — but never more than size —
// starting at the current cursor into buf, advances the cursor, and
// reports how many bytes were written plus whether this was the final
// chunk. size parameterizes the slice size per call site (the
// satellite-payload or master-payload maximum); buf must be at least
// size bytes.
func (s *Sliceable) GetSlice(buf []byte, size int) Slice {
	if s.done {
		return Slice{Len: 0, Last: true}
	}

	remaining := len(s.data) - s.cursor
	n := size
	if n > remaining {
		n = remaining
	}
	if n > len(buf) {
		n = len(buf)
	}

	copy(buf[:n], s.data[s.cursor:s.cursor+n])
	s.cursor += n

	last := s.cursor == len(s.data)
	if last {
		s.done = true
	}
	return Slice{Len: n, Last: last}
}

// Exhausted reports whether a Last=true slice has already been
// returned.
func (s *Sliceable) Exhausted() bool {
	return s.done
}
