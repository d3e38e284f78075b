// Package records manages variable-length byte records inside one storage
// engine.
//
// Live records form a doubly linked data list, released slots a free list.
// Both lists are anchored in the CollectionRoot, a fixed block at offset 0.
package records

import (
	"encoding/binary"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
	"github.com/huynhanx03/go-objectdb/pkg/datastructs/buffer"
)

const (
	// HeaderSize is the on-disk size of a record header.
	HeaderSize = 40

	// RootSize is the size of the block reserved for the CollectionRoot.
	RootSize = 1024

	// FirstRecordAddress is where the first record of a store starts.
	FirstRecordAddress = RootSize
)

// Flags carries per-record state bits.
type Flags uint8

const (
	// FlagFree marks a slot that is on the free list.
	FlagFree Flags = 1 << iota
)

// Header describes one record slot. Address is the byte offset of the header;
// a value <= 0 means the record has no address yet.
type Header struct {
	Address         int64
	Length          int32
	AllocatedLength int32
	Next            int64
	Previous        int64
	Flags           Flags
}

// Free reports whether the slot is on the free list.
func (h Header) Free() bool {
	return h.Flags&FlagFree != 0
}

// SlotSize is the number of bytes the slot occupies, header included.
func (h Header) SlotSize() int64 {
	return HeaderSize + int64(h.AllocatedLength)
}

// End is the offset just past the slot.
func (h Header) End() int64 {
	return h.Address + h.SlotSize()
}

func (h Header) encode(order binary.ByteOrder) []byte {
	w := buffer.NewWriter(make([]byte, HeaderSize), order)
	w.WriteInt64(h.Address).
		WriteInt32(h.Length).
		WriteInt32(h.AllocatedLength).
		WriteInt64(h.Next).
		WriteInt64(h.Previous).
		WriteUint8(uint8(h.Flags))
	return w.Buffer()
}

func decodeHeader(p []byte, order binary.ByteOrder) (Header, error) {
	var h Header
	r := buffer.NewReader(p, order)
	var err error
	if h.Address, err = r.ReadInt64(); err != nil {
		return h, err
	}
	if h.Length, err = r.ReadInt32(); err != nil {
		return h, err
	}
	if h.AllocatedLength, err = r.ReadInt32(); err != nil {
		return h, err
	}
	if h.Next, err = r.ReadInt64(); err != nil {
		return h, err
	}
	if h.Previous, err = r.ReadInt64(); err != nil {
		return h, err
	}
	f, err := r.ReadUint8()
	h.Flags = Flags(f)
	return h, err
}

// Record is a header plus its payload.
type Record struct {
	Header
	Data []byte
}

// ListEndPoints anchors a linked record list.
type ListEndPoints struct {
	StartAddress int64
	EndAddress   int64
}

// Empty reports whether the list has no members.
func (l ListEndPoints) Empty() bool {
	return l.StartAddress <= 0
}

// CollectionRoot is the fixed header of a store.
type CollectionRoot struct {
	DataList                ListEndPoints
	EmptyList               ListEndPoints
	NamedRecordIndexAddress int64
}

// encode always produces exactly RootSize bytes; the tail is zero padding.
func (c CollectionRoot) encode(order binary.ByteOrder) []byte {
	w := buffer.NewWriter(make([]byte, RootSize), order)
	w.WriteInt64(c.DataList.StartAddress).
		WriteInt64(c.DataList.EndAddress).
		WriteInt64(c.EmptyList.StartAddress).
		WriteInt64(c.EmptyList.EndAddress).
		WriteInt64(c.NamedRecordIndexAddress)
	return w.Buffer()
}

func decodeRoot(p []byte, order binary.ByteOrder) (CollectionRoot, error) {
	var c CollectionRoot
	if len(p) != RootSize {
		return c, apperr.Corruption("records.decodeRoot", "root block is %d bytes, want %d", len(p), RootSize)
	}
	r := buffer.NewReader(p, order)
	fields := []*int64{
		&c.DataList.StartAddress,
		&c.DataList.EndAddress,
		&c.EmptyList.StartAddress,
		&c.EmptyList.EndAddress,
		&c.NamedRecordIndexAddress,
	}
	for _, f := range fields {
		v, err := r.ReadInt64()
		if err != nil {
			return c, apperr.New(apperr.KindCorruption, "records.decodeRoot", apperr.MsgDecodeFailed, err)
		}
		*f = v
	}
	return c, nil
}

// ByteOrder resolves a configured byte order name.
func ByteOrder(name string) (binary.ByteOrder, error) {
	switch name {
	case "", "native":
		return binary.NativeEndian, nil
	case "little":
		return binary.LittleEndian, nil
	case "big":
		return binary.BigEndian, nil
	default:
		return nil, apperr.InvalidArgument("records.ByteOrder", "unknown byte order %q", name)
	}
}
