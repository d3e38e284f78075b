package records

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
	"github.com/huynhanx03/go-objectdb/pkg/logger"
	"github.com/huynhanx03/go-objectdb/pkg/storage"
	"github.com/huynhanx03/go-objectdb/pkg/storage/allocation"
)

// Option configures a Manager.
type Option func(*Manager)

// WithByteOrder sets the byte order of headers and the root block.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(m *Manager) {
		m.order = order
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger.OrNop(l)
	}
}

// Manager allocates, updates and recycles records in one engine. It is not
// safe for concurrent use.
type Manager struct {
	engine storage.Engine
	order  binary.ByteOrder
	logger *zap.Logger

	root  CollectionRoot
	named map[string]int64
}

// NewManager loads the root block of engine. Empty storage is a new store.
func NewManager(engine storage.Engine, opts ...Option) (*Manager, error) {
	m := &Manager{
		engine: engine,
		order:  binary.NativeEndian,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload drops the cached root and named table and reads them again.
func (m *Manager) Reload() error {
	m.named = nil
	size, err := m.engine.Size()
	if err != nil {
		return apperr.MapIO("records.Reload", err, apperr.MsgReadFailed)
	}
	if size == 0 {
		m.root = CollectionRoot{}
		return nil
	}
	if size < RootSize {
		return apperr.Corruption("records.Reload", "storage of %d bytes is shorter than the root block", size)
	}

	p := make([]byte, RootSize)
	if err := storage.ReadFull(m.engine, p, 0); err != nil {
		return apperr.IO("records.Reload", err, apperr.MsgReadFailed)
	}
	root, err := decodeRoot(p, m.order)
	if err != nil {
		return err
	}
	m.root = root
	return nil
}

// Root returns a copy of the current root.
func (m *Manager) Root() CollectionRoot {
	return m.root
}

// AppendRecord stores data in a new slot linked at the tail of the data list.
// With reuse the first free slot large enough is taken before growing the
// storage.
func (m *Manager) AppendRecord(data []byte, reuse bool, strategy allocation.Strategy) (*Record, error) {
	if err := checkLength("records.AppendRecord", len(data)); err != nil {
		return nil, err
	}
	if reuse {
		rec, err := m.takeFree(data)
		if err != nil || rec != nil {
			return rec, err
		}
	}
	return m.appendSlot(data, strategy.Allocate(0, len(data)))
}

// UpdateRecord replaces the payload of rec. The record keeps its address when
// data fits in the slot; otherwise it moves to a new slot and the old one is
// released. Callers must adopt the returned address.
func (m *Manager) UpdateRecord(rec *Record, data []byte, reuse bool, strategy allocation.Strategy) (*Record, error) {
	const op = "records.UpdateRecord"
	if err := checkLength(op, len(data)); err != nil {
		return nil, err
	}
	h, err := m.liveHeader(op, rec.Address)
	if err != nil {
		return nil, err
	}

	if len(data) <= int(h.AllocatedLength) {
		h.Length = int32(len(data))
		if err := m.writeHeader(h); err != nil {
			return nil, err
		}
		if err := m.writeAt(op, data, h.Address+HeaderSize); err != nil {
			return nil, err
		}
		return &Record{Header: h, Data: data}, nil
	}

	var moved *Record
	if reuse {
		if moved, err = m.takeFree(data); err != nil {
			return nil, err
		}
	}
	if moved == nil {
		if moved, err = m.appendSlot(data, strategy.Allocate(int(h.AllocatedLength), len(data))); err != nil {
			return nil, err
		}
	}
	if err := m.Recycle(h.Address); err != nil {
		return nil, err
	}
	m.logger.Debug("record relocated",
		zap.Int64("from", h.Address),
		zap.Int64("to", moved.Address),
		zap.Int("length", len(data)))
	return moved, nil
}

// ReleaseRecord moves rec to the free list.
func (m *Manager) ReleaseRecord(rec *Record) error {
	return m.Recycle(rec.Address)
}

// Recycle unlinks the record at address from the data list and appends its
// slot to the free list. A slot that directly follows the free-list tail is
// merged into it.
func (m *Manager) Recycle(address int64) error {
	const op = "records.Recycle"
	h, err := m.liveHeader(op, address)
	if err != nil {
		return err
	}
	if err := m.unlink(h, &m.root.DataList); err != nil {
		return err
	}

	h.Flags |= FlagFree
	h.Length = 0
	h.Next, h.Previous = 0, 0

	if tailAddr := m.root.EmptyList.EndAddress; tailAddr > 0 {
		tail, err := m.readHeader(op, tailAddr)
		if err != nil {
			return err
		}
		if tail.End() == h.Address && int64(tail.AllocatedLength)+h.SlotSize() <= allocation.MaxSlot {
			tail.AllocatedLength += int32(h.SlotSize())
			if err := m.writeHeader(tail); err != nil {
				return err
			}
			// the absorbed header stays marked free so its address no longer resolves
			if err := m.writeHeader(h); err != nil {
				return err
			}
			m.logger.Debug("free slot merged", zap.Int64("address", h.Address), zap.Int64("into", tail.Address))
			return m.writeRoot()
		}
		tail.Next = h.Address
		h.Previous = tail.Address
		if err := m.writeHeader(tail); err != nil {
			return err
		}
	} else {
		m.root.EmptyList.StartAddress = h.Address
	}
	m.root.EmptyList.EndAddress = h.Address

	if err := m.writeHeader(h); err != nil {
		return err
	}
	m.logger.Debug("record recycled", zap.Int64("address", h.Address), zap.Int32("allocated", h.AllocatedLength))
	return m.writeRoot()
}

// GetRecord reads the live record at address.
func (m *Manager) GetRecord(address int64) (*Record, error) {
	const op = "records.GetRecord"
	h, err := m.liveHeader(op, address)
	if err != nil {
		return nil, err
	}
	data := make([]byte, h.Length)
	if err := storage.ReadFull(m.engine, data, h.Address+HeaderSize); err != nil {
		return nil, apperr.Corruption(op, "record at %d is truncated: %v", address, err)
	}
	return &Record{Header: h, Data: data}, nil
}

// Scan calls fn for every live record in data-list order until fn returns
// false.
func (m *Manager) Scan(fn func(*Record) bool) error {
	seen := make(map[int64]struct{})
	for addr := m.root.DataList.StartAddress; addr > 0; {
		if _, ok := seen[addr]; ok {
			return apperr.Corruption("records.Scan", "data list revisits address %d", addr)
		}
		seen[addr] = struct{}{}

		rec, err := m.GetRecord(addr)
		if err != nil {
			return err
		}
		if !fn(rec) {
			return nil
		}
		addr = rec.Next
	}
	return nil
}

// FreeSlots returns the headers on the free list in list order.
func (m *Manager) FreeSlots() ([]Header, error) {
	const op = "records.FreeSlots"
	var out []Header
	seen := make(map[int64]struct{})
	for addr := m.root.EmptyList.StartAddress; addr > 0; {
		if _, ok := seen[addr]; ok {
			return nil, apperr.Corruption(op, "free list revisits address %d", addr)
		}
		seen[addr] = struct{}{}

		h, err := m.readHeader(op, addr)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
		addr = h.Next
	}
	return out, nil
}

func (m *Manager) appendSlot(data []byte, allocated int) (*Record, error) {
	const op = "records.appendSlot"
	if allocated < len(data) {
		allocated = len(data)
	}
	addr, err := m.end()
	if err != nil {
		return nil, err
	}

	h := Header{
		Address:         addr,
		Length:          int32(len(data)),
		AllocatedLength: int32(allocated),
	}
	if err := m.linkTail(&h); err != nil {
		return nil, err
	}

	slot := make([]byte, h.SlotSize())
	copy(slot, h.encode(m.order))
	copy(slot[HeaderSize:], data)
	if err := m.writeAt(op, slot, addr); err != nil {
		return nil, err
	}
	if err := m.writeRoot(); err != nil {
		return nil, err
	}
	return &Record{Header: h, Data: data}, nil
}

// takeFree moves the first free slot that fits data onto the data list. It
// returns nil when no slot fits.
func (m *Manager) takeFree(data []byte) (*Record, error) {
	const op = "records.takeFree"
	for addr := m.root.EmptyList.StartAddress; addr > 0; {
		h, err := m.readHeader(op, addr)
		if err != nil {
			return nil, err
		}
		if int(h.AllocatedLength) < len(data) {
			addr = h.Next
			continue
		}

		if err := m.unlink(h, &m.root.EmptyList); err != nil {
			return nil, err
		}
		h.Flags &^= FlagFree
		h.Length = int32(len(data))
		if err := m.linkTail(&h); err != nil {
			return nil, err
		}
		if err := m.writeHeader(h); err != nil {
			return nil, err
		}
		if err := m.writeAt(op, data, h.Address+HeaderSize); err != nil {
			return nil, err
		}
		if err := m.writeRoot(); err != nil {
			return nil, err
		}
		m.logger.Debug("free slot reused", zap.Int64("address", h.Address), zap.Int("length", len(data)))
		return &Record{Header: h, Data: data}, nil
	}
	return nil, nil
}

// linkTail links h after the current data-list tail. It updates the tail's
// header on storage but not h's.
func (m *Manager) linkTail(h *Header) error {
	h.Next = 0
	h.Previous = m.root.DataList.EndAddress
	if h.Previous > 0 {
		prev, err := m.readHeader("records.linkTail", h.Previous)
		if err != nil {
			return err
		}
		prev.Next = h.Address
		if err := m.writeHeader(prev); err != nil {
			return err
		}
	} else {
		m.root.DataList.StartAddress = h.Address
	}
	m.root.DataList.EndAddress = h.Address
	return nil
}

// unlink removes h from the list anchored at ends, fixing its neighbours.
func (m *Manager) unlink(h Header, ends *ListEndPoints) error {
	const op = "records.unlink"
	if h.Previous > 0 {
		prev, err := m.readHeader(op, h.Previous)
		if err != nil {
			return err
		}
		prev.Next = h.Next
		if err := m.writeHeader(prev); err != nil {
			return err
		}
	} else {
		ends.StartAddress = h.Next
	}

	if h.Next > 0 {
		next, err := m.readHeader(op, h.Next)
		if err != nil {
			return err
		}
		next.Previous = h.Previous
		if err := m.writeHeader(next); err != nil {
			return err
		}
	} else {
		ends.EndAddress = h.Previous
	}
	return nil
}

func (m *Manager) end() (int64, error) {
	size, err := m.engine.Size()
	if err != nil {
		return 0, apperr.MapIO("records.end", err, apperr.MsgReadFailed)
	}
	return max(size, FirstRecordAddress), nil
}

// readHeader reads and sanity checks the header at address, live or free.
func (m *Manager) readHeader(op string, address int64) (Header, error) {
	if address < FirstRecordAddress {
		return Header{}, apperr.NotFound(op, address)
	}
	p := make([]byte, HeaderSize)
	if err := storage.ReadFull(m.engine, p, address); err != nil {
		return Header{}, apperr.NotFound(op, address)
	}
	h, err := decodeHeader(p, m.order)
	if err != nil {
		return Header{}, apperr.New(apperr.KindCorruption, op, apperr.MsgDecodeFailed, err)
	}
	if h.Address != address {
		return Header{}, apperr.NotFound(op, address)
	}
	if h.Length < 0 || h.Length > h.AllocatedLength {
		return Header{}, apperr.Corruption(op, "record at %d has length %d beyond its allocation %d",
			address, h.Length, h.AllocatedLength)
	}
	return h, nil
}

func (m *Manager) liveHeader(op string, address int64) (Header, error) {
	h, err := m.readHeader(op, address)
	if err != nil {
		return h, err
	}
	if h.Free() {
		return h, apperr.NotFound(op, address)
	}
	return h, nil
}

func (m *Manager) writeHeader(h Header) error {
	return m.writeAt("records.writeHeader", h.encode(m.order), h.Address)
}

func (m *Manager) writeRoot() error {
	return m.writeAt("records.writeRoot", m.root.encode(m.order), 0)
}

func (m *Manager) writeAt(op string, p []byte, off int64) error {
	if _, err := m.engine.WriteAt(p, off); err != nil {
		return apperr.IO(op, err, apperr.MsgWriteFailed)
	}
	return nil
}

func checkLength(op string, n int) error {
	if int64(n) > allocation.MaxSlot {
		return apperr.InvalidArgument(op, "record of %d bytes exceeds the slot limit", n)
	}
	return nil
}
