// Package storage provides the addressable byte spaces records live in.
package storage

import (
	"io"
)

// Engine is a randomly addressable, durable byte space.
type Engine interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the number of addressable bytes.
	Size() (int64, error)
	// Truncate changes the size, zero-filling when growing.
	Truncate(size int64) error
	// Sync makes every completed write durable.
	Sync() error
	Close() error
}

// ReadFull reads exactly len(p) bytes at off. Reading past the end is an
// io.ErrUnexpectedEOF, never a silent short read.
func ReadFull(e Engine, p []byte, off int64) error {
	n, err := e.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
