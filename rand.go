package wasmgen

import "unicode/utf8"

type (
	// Source draws bounded values from a finite byte buffer.
	//
	// Running out of bytes is not an error: every draw has a defined
	// fallback (false, lower bound, zero length), so any consumer
	// terminates on any buffer including the empty one.
	// Draws are deterministic in the buffer content.
	Source struct {
		b []byte
	}
)

func NewSource(b []byte) *Source {
	return &Source{b: b}
}

func (s *Source) Empty() bool { return len(s.b) == 0 }

func (s *Source) Rest() int { return len(s.b) }

// Byte consumes one byte, 0 when exhausted.
func (s *Source) Byte() byte {
	if len(s.b) == 0 {
		return 0
	}

	x := s.b[0]
	s.b = s.b[1:]

	return x
}

// Bool consumes one byte and reports its lowest bit, false when exhausted.
func (s *Source) Bool() bool {
	if len(s.b) == 0 {
		return false
	}

	return s.Byte()&1 == 1
}

func (s *Source) Uint32() uint32 {
	var v uint32

	for i := 0; i < 4; i++ {
		v = v<<8 | uint32(s.Byte())
	}

	return v
}

func (s *Source) Uint64() uint64 {
	var v uint64

	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(s.Byte())
	}

	return v
}

// Int draws an integer in [lo, hi], consuming just enough bytes to cover
// the range. Degenerate ranges consume nothing; exhaustion returns lo.
func (s *Source) Int(lo, hi int) int {
	if hi <= lo {
		return lo
	}

	n := uint64(hi-lo) + 1

	var v, span uint64 = 0, 1

	for span < n && len(s.b) > 0 {
		v = v<<8 | uint64(s.b[0])
		s.b = s.b[1:]

		if span >= 1<<56 {
			break
		}

		span <<= 8
	}

	return lo + int(v%n)
}

// Pick chooses uniformly among n alternatives.
func (s *Source) Pick(n int) int {
	return s.Int(0, n-1)
}

// Len draws a collection length bounded by max and by the remaining buffer.
func (s *Source) Len(max int) int {
	n := s.Int(0, max)

	if n > len(s.b) {
		n = len(s.b)
	}

	return n
}

// Bytes consumes a length-bounded slice. The result is a copy.
func (s *Source) Bytes(max int) []byte {
	n := s.Len(max)

	v := make([]byte, n)
	copy(v, s.b)
	s.b = s.b[n:]

	return v
}

// String consumes a length-bounded slice and clips it to its longest
// valid UTF-8 prefix instead of failing on malformed text.
func (s *Source) String(max int) string {
	b := s.Bytes(max)

	i := 0

	for i < len(b) {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			break
		}

		i += size
	}

	return string(b[:i])
}
