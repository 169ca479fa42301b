package wasmgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceExhaustion(tb *testing.T) {
	s := NewSource(nil)

	assert.True(tb, s.Empty())
	assert.Equal(tb, byte(0), s.Byte())
	assert.False(tb, s.Bool())
	assert.Equal(tb, uint32(0), s.Uint32())
	assert.Equal(tb, uint64(0), s.Uint64())
	assert.Equal(tb, 3, s.Int(3, 10))
	assert.Equal(tb, 0, s.Pick(5))
	assert.Equal(tb, 0, s.Len(100))
	assert.Equal(tb, []byte{}, s.Bytes(100))
	assert.Equal(tb, "", s.String(100))
}

func TestSourceInt(tb *testing.T) {
	tb.Run("Range", func(tb *testing.T) {
		s := NewSource([]byte{0, 1, 2, 0xff, 0x80, 0x10, 0x20, 0x30})

		for !s.Empty() {
			v := s.Int(3, 7)
			assert.GreaterOrEqual(tb, v, 3)
			assert.LessOrEqual(tb, v, 7)

			if tb.Failed() {
				break
			}
		}
	})

	tb.Run("Degenerate", func(tb *testing.T) {
		s := NewSource([]byte{42})

		assert.Equal(tb, 5, s.Int(5, 5))
		assert.Equal(tb, 5, s.Int(5, 3))
		assert.Equal(tb, 1, s.Rest())
	})

	tb.Run("WideRangeConsumesMoreBytes", func(tb *testing.T) {
		s := NewSource([]byte{1, 2, 3, 4})

		_ = s.Int(0, 255)
		assert.Equal(tb, 3, s.Rest())

		_ = s.Int(0, 256)
		assert.Equal(tb, 1, s.Rest())
	})
}

func TestSourceBytes(tb *testing.T) {
	s := NewSource([]byte{2, 10, 20, 30})

	v := s.Bytes(3)
	assert.Equal(tb, []byte{10, 20}, v)
	assert.Equal(tb, 1, s.Rest())
}

func TestSourceString(tb *testing.T) {
	tb.Run("Valid", func(tb *testing.T) {
		seed := append([]byte{12}, []byte("Hello, 世界")...)
		s := NewSource(seed)

		v := s.String(100)
		assert.Equal(tb, "Hello, 世", v)
	})

	tb.Run("Truncated", func(tb *testing.T) {
		// 0xe4 starts a three byte rune which is cut short
		s := NewSource([]byte{4, 'o', 'k', 0xe4, 0xb8})

		v := s.String(100)
		assert.Equal(tb, "ok", v)
	})
}

func TestSourceDeterminism(tb *testing.T) {
	seed := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	a := NewSource(seed)
	b := NewSource(seed)

	assert.Equal(tb, a.Bool(), b.Bool())
	assert.Equal(tb, a.Int(0, 99), b.Int(0, 99))
	assert.Equal(tb, a.Uint32(), b.Uint32())
	assert.Equal(tb, a.Bytes(10), b.Bytes(10))
	assert.Equal(tb, a.Rest(), b.Rest())
}
