package snap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteUvarint(0)
	w.WriteUvarint(1 << 40)
	w.WriteVarint(-12345)
	w.WriteVarint(12345)
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteBytes([]byte{1, 2, 3})
	w.WriteString("hello", 16)
	w.WriteID(7, 9)

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)

	u, err := r.ReadUvarint()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), u)
	u, err = r.ReadUvarint()
	require.NoError(t, err)
	assert.Equal(t, uint64(1)<<40, u)

	v, err := r.ReadVarint()
	require.NoError(t, err)
	assert.Equal(t, int64(-12345), v)
	v, err = r.ReadVarint()
	require.NoError(t, err)
	assert.Equal(t, int64(12345), v)

	b, err := r.ReadBool()
	require.NoError(t, err)
	assert.True(t, b)
	b, err = r.ReadBool()
	require.NoError(t, err)
	assert.False(t, b)

	bs, err := r.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, bs)

	s, err := r.ReadString(16)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	hi, lo, err := r.ReadID()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), hi)
	assert.Equal(t, uint64(9), lo)

	assert.Zero(t, r.Remaining())
}

func TestReaderRejectsWrongVersion(t *testing.T) {
	// A buffer whose leading varint is not the current format version.
	buf := []byte{byte(FormatVersion + 1)}
	_, err := NewReader(buf)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestReaderShortBuffer(t *testing.T) {
	w := NewWriter()
	w.WriteBytes(make([]byte, 8))
	buf := w.Bytes()

	r, err := NewReader(buf[:len(buf)-4])
	require.NoError(t, err)
	_, err = r.ReadBytes()
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestStringBoundEnforcedOnWrite(t *testing.T) {
	w := NewWriter()
	w.WriteString("0123456789abcdef-overflow", 16)
	r, err := NewReader(w.Bytes())
	require.NoError(t, err)
	s, err := r.ReadString(16)
	require.NoError(t, err)
	assert.Len(t, s, 16)
}

func TestStringBoundEnforcedOnRead(t *testing.T) {
	w := NewWriter()
	w.WriteString("way too long for the reader bound", 64)
	r, err := NewReader(w.Bytes())
	require.NoError(t, err)
	_, err = r.ReadString(8)
	assert.Error(t, err)
}
