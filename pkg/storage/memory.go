package storage

import (
	"github.com/huynhanx03/go-objectdb/pkg/datastructs/buffer"
)

var _ Engine = (*Memory)(nil)

// Memory is a volatile Engine, used for temporary stores and tests.
type Memory struct {
	buf *buffer.Buffer
}

// NewMemory returns an empty in-memory engine.
func NewMemory() *Memory {
	return &Memory{buf: buffer.New(4096)}
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	return m.buf.ReadAt(p, off)
}

func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	return m.buf.WriteAt(p, off)
}

func (m *Memory) Size() (int64, error) {
	return int64(m.buf.Len()), nil
}

func (m *Memory) Truncate(size int64) error {
	return m.buf.Truncate(int(size))
}

func (m *Memory) Sync() error { return nil }

func (m *Memory) Close() error { return nil }

// Bytes exposes the current contents. The slice is invalidated by writes.
func (m *Memory) Bytes() []byte {
	return m.buf.Bytes()
}
