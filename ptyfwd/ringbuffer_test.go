package ptyfwd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendReadSinceBasic(t *testing.T) {
	r := NewRingBuffer(8)
	r.Append([]byte("abcd"))

	out, err := r.ReadSince(0)
	require.NoError(t, err)
	require.Equal(t, "abcd", string(out))
}

func TestAppendWrapsAroundCapacity(t *testing.T) {
	r := NewRingBuffer(4)
	r.Append([]byte("ab"))
	r.Append([]byte("cdef")) // pushes "ab" out entirely

	out, err := r.ReadSince(0)
	require.NoError(t, err)
	require.Equal(t, "cdef", string(out))
}

func TestReadSinceFromMidStream(t *testing.T) {
	r := NewRingBuffer(8)
	r.Append([]byte("hello"))
	r.Append([]byte(" world"))

	out, err := r.ReadSince(5)
	require.NoError(t, err)
	full := "hello world"
	require.True(t, len(out) > 0 && len(out) <= 8)
	require.Equal(t, full[len(full)-len(out):], string(out))
}

func TestReadSinceOffsetAheadOfWritesErrors(t *testing.T) {
	r := NewRingBuffer(8)
	r.Append([]byte("ab"))
	_, err := r.ReadSince(10)
	require.Error(t, err)
}

func TestReadSinceZeroReplaysFullRetainedWindow(t *testing.T) {
	r := NewRingBuffer(4)
	r.Append([]byte("xy"))
	out, err := r.ReadSince(0)
	require.NoError(t, err)
	require.Equal(t, "xy", string(out))
}
