// Package snap implements the snapshot wire codec, the binary delta used for
// snapshot transport and the per-connection baseline ring. Snapshots are
// self-contained byte buffers; the game package defines what goes into them,
// this package defines how the bytes are laid out and diffed.
package snap

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FormatVersion is bumped on any layout change. Receivers reject snapshots
// from a different version; the byte layout is authoritative only when both
// builds agree on it.
const FormatVersion uint64 = 3

// ErrVersionMismatch is returned when a snapshot was produced by a build with
// a different wire format.
var ErrVersionMismatch = errors.New("snap: snapshot format version mismatch")

// ErrShortBuffer is returned when a read runs past the end of the snapshot.
var ErrShortBuffer = errors.New("snap: short buffer")

// Writer serializes values into a growing byte buffer using little-endian
// variable-length integers.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer that starts with the format version header.
func NewWriter() *Writer {
	w := &Writer{buf: make([]byte, 0, 1024)}
	w.WriteUvarint(FormatVersion)
	return w
}

// Bytes returns the serialized buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// WriteUvarint appends an unsigned varint.
func (w *Writer) WriteUvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

// WriteVarint appends a signed (zigzag) varint.
func (w *Writer) WriteVarint(v int64) {
	w.buf = binary.AppendVarint(w.buf, v)
}

// WriteBool appends a bool as one byte.
func (w *Writer) WriteBool(b bool) {
	if b {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteBytes appends a length-prefixed byte slice.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString appends a length-prefixed string, truncated to max bytes.
// String bounds are part of the protocol and enforced on both sides.
func (w *Writer) WriteString(s string, max int) {
	if len(s) > max {
		s = s[:max]
	}
	w.WriteBytes([]byte(s))
}

// WriteID appends a 128-bit identifier as two raw little-endian words.
func (w *Writer) WriteID(hi, lo uint64) {
	var tmp [16]byte
	binary.LittleEndian.PutUint64(tmp[:8], hi)
	binary.LittleEndian.PutUint64(tmp[8:], lo)
	w.buf = append(w.buf, tmp[:]...)
}

// Reader deserializes a snapshot buffer produced by Writer.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps buf and checks the format version header.
func NewReader(buf []byte) (*Reader, error) {
	r := &Reader{buf: buf}
	v, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if v != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, v, FormatVersion)
	}
	return r, nil
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// ReadUvarint reads an unsigned varint.
func (r *Reader) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		return 0, ErrShortBuffer
	}
	r.off += n
	return v, nil
}

// ReadVarint reads a signed (zigzag) varint.
func (r *Reader) ReadVarint() (int64, error) {
	v, n := binary.Varint(r.buf[r.off:])
	if n <= 0 {
		return 0, ErrShortBuffer
	}
	r.off += n
	return v, nil
}

// ReadBool reads one byte as a bool.
func (r *Reader) ReadBool() (bool, error) {
	if r.off >= len(r.buf) {
		return false, ErrShortBuffer
	}
	b := r.buf[r.off]
	r.off++
	return b != 0, nil
}

// ReadBytes reads a length-prefixed byte slice. The result aliases the
// snapshot buffer; snapshots are immutable once produced.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Remaining()) {
		return nil, ErrShortBuffer
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}

// ReadString reads a length-prefixed string, rejecting strings over max.
func (r *Reader) ReadString(max int) (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	if len(b) > max {
		return "", fmt.Errorf("snap: string exceeds bound: %d > %d", len(b), max)
	}
	return string(b), nil
}

// ReadID reads a 128-bit identifier.
func (r *Reader) ReadID() (hi, lo uint64, err error) {
	if r.Remaining() < 16 {
		return 0, 0, ErrShortBuffer
	}
	hi = binary.LittleEndian.Uint64(r.buf[r.off:])
	lo = binary.LittleEndian.Uint64(r.buf[r.off+8:])
	r.off += 16
	return hi, lo, nil
}
