package buffer

import (
	"fmt"
	"io"
)

// Buffer is a growable, randomly addressable byte space. It backs the
// in-memory storage engine. It is NOT thread-safe.
type Buffer struct {
	data []byte // backing storage, len(data) is the capacity
	size int    // logical size, bytes past it read as EOF
	max  int    // maximum allowed size, 0 means unlimited
}

// New creates and initializes a new Buffer.
func New(capacity int) *Buffer {
	if capacity < defaultCapacity {
		capacity = defaultCapacity
	}
	return &Buffer{data: make([]byte, capacity)}
}

// WithMaxLimit sets the hard limit for buffer growth.
func (b *Buffer) WithMaxLimit(max int) *Buffer {
	b.max = max
	return b
}

// Len returns the logical size of the buffer.
func (b *Buffer) Len() int {
	return b.size
}

// Bytes returns the slice holding the written data.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.size]
}

// grow ensures the backing storage can hold n bytes.
func (b *Buffer) grow(n int) error {
	if b.max > 0 && n > b.max {
		return fmt.Errorf("buffer: max limit exceeded (limit: %d, requested: %d)", b.max, n)
	}
	if n <= len(b.data) {
		return nil
	}

	growBy := len(b.data)
	if growBy > maxGrowth {
		growBy = maxGrowth
	}
	capacity := len(b.data) + growBy
	if capacity < n {
		capacity = n
	}

	newData := make([]byte, capacity)
	copy(newData, b.data[:b.size])
	b.data = newData
	return nil
}

// WriteAt implements io.WriterAt. Writing past the end extends the buffer,
// zero-filling any gap.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("buffer: negative offset %d", off)
	}
	end := int(off) + len(p)
	if err := b.grow(end); err != nil {
		return 0, err
	}
	copy(b.data[off:], p)
	if end > b.size {
		b.size = end
	}
	return len(p), nil
}

// ReadAt implements io.ReaderAt.
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("buffer: negative offset %d", off)
	}
	if off >= int64(b.size) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:b.size])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Truncate changes the logical size. Growing zero-fills.
func (b *Buffer) Truncate(size int) error {
	if size < 0 {
		return fmt.Errorf("buffer: negative size %d", size)
	}
	if err := b.grow(size); err != nil {
		return err
	}
	if size > b.size {
		clear(b.data[b.size:size])
	}
	b.size = size
	return nil
}

// Reset empties the buffer, keeping the underlying memory.
func (b *Buffer) Reset() {
	b.size = 0
}

// WriteTo implements io.WriterTo.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	if b.size == 0 {
		return 0, nil
	}
	n, err := w.Write(b.Bytes())
	return int64(n), err
}
