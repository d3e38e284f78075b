package buffer

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned by Reader when fewer bytes remain than requested.
var ErrShortBuffer = errors.New("buffer: short buffer")

// Writer encodes fixed-size values with one byte order into a byte slice,
// doubling the slice when a write does not fit.
type Writer struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

// NewWriter writes into buf, which may be nil. A pre-sized buf keeps its full
// length in Buffer, which is how fixed-size padded blocks are produced.
func NewWriter(buf []byte, order binary.ByteOrder) *Writer {
	if buf == nil {
		buf = make([]byte, defaultCapacity)
	}
	return &Writer{buf: buf, order: order}
}

func (w *Writer) ensure(n int) []byte {
	if w.pos+n > len(w.buf) {
		grown := make([]byte, (w.pos+n)*2)
		copy(grown, w.buf[:w.pos])
		w.buf = grown
	}
	p := w.buf[w.pos : w.pos+n]
	w.pos += n
	return p
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) *Writer {
	w.ensure(1)[0] = v
	return w
}

// WriteUint16 appends v.
func (w *Writer) WriteUint16(v uint16) *Writer {
	w.order.PutUint16(w.ensure(2), v)
	return w
}

// WriteInt32 appends v.
func (w *Writer) WriteInt32(v int32) *Writer {
	w.order.PutUint32(w.ensure(4), uint32(v))
	return w
}

// WriteUint32 appends v.
func (w *Writer) WriteUint32(v uint32) *Writer {
	w.order.PutUint32(w.ensure(4), v)
	return w
}

// WriteInt64 appends v.
func (w *Writer) WriteInt64(v int64) *Writer {
	w.order.PutUint64(w.ensure(8), uint64(v))
	return w
}

// WriteUint64 appends v.
func (w *Writer) WriteUint64(v uint64) *Writer {
	w.order.PutUint64(w.ensure(8), v)
	return w
}

// WriteBytes appends p verbatim.
func (w *Writer) WriteBytes(p []byte) *Writer {
	copy(w.ensure(len(p)), p)
	return w
}

// Pos returns the number of bytes written.
func (w *Writer) Pos() int {
	return w.pos
}

// Buffer returns the whole underlying slice, including unwritten padding.
func (w *Writer) Buffer() []byte {
	return w.buf
}

// Bytes returns the written prefix of the underlying slice.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.pos]
}

// Reader decodes values written by Writer with the same byte order.
type Reader struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

// NewReader reads from buf.
func NewReader(buf []byte, order binary.ByteOrder) *Reader {
	return &Reader{buf: buf, order: order}
}

func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, ErrShortBuffer
	}
	p := r.buf[r.pos : r.pos+n]
	r.pos += n
	return p, nil
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	p, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// ReadUint16 reads a uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	p, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(p), nil
}

// ReadInt32 reads an int32.
func (r *Reader) ReadInt32() (int32, error) {
	p, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return int32(r.order.Uint32(p)), nil
}

// ReadUint32 reads a uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	p, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(p), nil
}

// ReadInt64 reads an int64.
func (r *Reader) ReadInt64() (int64, error) {
	p, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return int64(r.order.Uint64(p)), nil
}

// ReadUint64 reads a uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	p, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(p), nil
}

// ReadBytes returns the next n bytes. The result aliases the reader's slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	return r.next(n)
}

// Pos returns the number of bytes consumed.
func (r *Reader) Pos() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}
