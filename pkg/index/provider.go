// Package index persists btree nodes as records and exposes the primary-key
// index used by collections.
package index

import (
	"cmp"
	"slices"

	"github.com/huynhanx03/go-objectdb/pkg/codec"
	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
	"github.com/huynhanx03/go-objectdb/pkg/datastructs/btree"
	"github.com/huynhanx03/go-objectdb/pkg/records"
	"github.com/huynhanx03/go-objectdb/pkg/storage/allocation"
)

// RecordManager is the part of records.Manager the index needs.
type RecordManager interface {
	AppendRecord(data []byte, reuse bool, strategy allocation.Strategy) (*records.Record, error)
	UpdateRecord(rec *records.Record, data []byte, reuse bool, strategy allocation.Strategy) (*records.Record, error)
	GetRecord(address int64) (*records.Record, error)
	Recycle(address int64) error
	GetNamedRecordAddress(name string) (int64, error)
	RegisterNamedRecordAddress(name string, address int64, reuse bool) error
}

var (
	_ RecordManager              = (*records.Manager)(nil)
	_ btree.DataProvider[string] = (*RecordProvider[string])(nil)
)

// Relocation is a node record that moved during a flush.
type Relocation struct {
	From int64
	To   int64
}

// slot is one arena entry. node is nil until the node is first loaded.
type slot[K cmp.Ordered] struct {
	node    *btree.Node[K]
	address int64
	// children as last written to or read from storage
	persisted []int64
}

// RecordProvider keeps the nodes of one tree in an arena keyed by stable IDs.
// Storage addresses are slot metadata, so a node that moves on flush keeps
// its identity. A provider belongs to one transaction and must be discarded
// when it ends.
type RecordProvider[K cmp.Ordered] struct {
	manager RecordManager
	name    string
	opts    options
	codec   codec.Codec[NodeRecord[K]]
	metaC   codec.Codec[Meta]

	arena     map[int64]*slot[K]
	byAddress map[int64]int64
	nextID    int64
	rootID    int64

	rootAddress int64
	meta        Meta
	metaAddress int64
	metaLoaded  bool
	metaDirty   bool

	relocations []Relocation
}

// NewRecordProvider returns a provider for the tree whose root address is
// registered under name.
func NewRecordProvider[K cmp.Ordered](manager RecordManager, name string, opts ...Option) (*RecordProvider[K], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	nodeCodec, err := codec.ByName[NodeRecord[K]](o.codec)
	if err != nil {
		return nil, err
	}
	metaCodec, err := codec.ByName[Meta](o.codec)
	if err != nil {
		return nil, err
	}
	return &RecordProvider[K]{
		manager:   manager,
		name:      name,
		opts:      o,
		codec:     nodeCodec,
		metaC:     metaCodec,
		arena:     make(map[int64]*slot[K]),
		byAddress: make(map[int64]int64),
	}, nil
}

func (p *RecordProvider[K]) GetRootNode(degree int) (*btree.Node[K], error) {
	if p.rootID != 0 {
		return p.GetNode(p.rootID)
	}
	if err := p.loadMeta(); err != nil {
		return nil, err
	}

	addr, err := p.manager.GetNamedRecordAddress(p.name)
	if err != nil {
		return nil, err
	}
	if addr > 0 {
		p.rootAddress = addr
		p.rootID = p.idFor(addr)
		return p.GetNode(p.rootID)
	}

	root, err := p.CreateNode(degree)
	if err != nil {
		return nil, err
	}
	p.rootID = root.ID
	return root, nil
}

func (p *RecordProvider[K]) SetRootNode(node *btree.Node[K]) error {
	if _, ok := p.arena[node.ID]; !ok {
		return apperr.NotFound("index.SetRootNode", node.ID)
	}
	p.rootID = node.ID
	return nil
}

// GetNode returns the node with the given ID, loading it on first access.
func (p *RecordProvider[K]) GetNode(id int64) (*btree.Node[K], error) {
	s, ok := p.arena[id]
	if !ok {
		return nil, apperr.NotFound("index.GetNode", id)
	}
	if s.node == nil {
		if err := p.load(id, s); err != nil {
			return nil, err
		}
	}
	return s.node, nil
}

func (p *RecordProvider[K]) CreateNode(degree int) (*btree.Node[K], error) {
	if err := p.loadMeta(); err != nil {
		return nil, err
	}
	p.nextID++
	n := btree.NewNode[K](p.nextID, degree)
	p.arena[n.ID] = &slot[K]{node: n}
	p.meta.NumberOfNodes++
	p.metaDirty = true
	return n, nil
}

// idFor returns the arena ID of the node stored at address, reserving an
// unloaded slot on first sight.
func (p *RecordProvider[K]) idFor(address int64) int64 {
	if id, ok := p.byAddress[address]; ok {
		return id
	}
	p.nextID++
	p.arena[p.nextID] = &slot[K]{address: address}
	p.byAddress[address] = p.nextID
	return p.nextID
}

func (p *RecordProvider[K]) load(id int64, s *slot[K]) error {
	rec, err := p.manager.GetRecord(s.address)
	if err != nil {
		return err
	}
	nr, err := p.codec.Deserialize(rec.Data)
	if err != nil {
		return err
	}
	if err := nr.validate(s.address); err != nil {
		return err
	}

	n := btree.NewNode[K](id, nr.Degree)
	for i, k := range nr.Keys {
		n.Entries = append(n.Entries, btree.Entry[K]{Key: k, Pointer: nr.Pointers[i]})
	}
	for _, addr := range nr.Children {
		n.Children = append(n.Children, p.idFor(addr))
	}
	n.ClearDirty()

	s.node = n
	s.persisted = slices.Clone(nr.Children)
	return nil
}

func (p *RecordProvider[K]) loadMeta() error {
	if p.metaLoaded {
		return nil
	}
	addr, err := p.manager.GetNamedRecordAddress(metaName(p.name))
	if err != nil {
		return err
	}
	if addr > 0 {
		rec, err := p.manager.GetRecord(addr)
		if err != nil {
			return err
		}
		if p.meta, err = p.metaC.Deserialize(rec.Data); err != nil {
			return err
		}
		p.metaAddress = addr
	}
	p.metaLoaded = true
	return nil
}

// ChildAddresses returns the storage addresses node references, 0 for a
// child that has not been persisted yet.
func (p *RecordProvider[K]) ChildAddresses(node *btree.Node[K]) []int64 {
	out := make([]int64, len(node.Children))
	for i, id := range node.Children {
		if s, ok := p.arena[id]; ok {
			out[i] = s.address
		}
	}
	return out
}

// Address returns the storage address of the node with the given ID.
func (p *RecordProvider[K]) Address(id int64) int64 {
	if s, ok := p.arena[id]; ok {
		return s.address
	}
	return 0
}

// Relocations returns the moves recorded by the last Flush.
func (p *RecordProvider[K]) Relocations() []Relocation {
	return p.relocations
}

type ProviderStats struct {
	Cached        int // Arena slots.
	Loaded        int // Slots holding a decoded node.
	NumberOfNodes int64
}

func (p *RecordProvider[K]) Stats() ProviderStats {
	out := ProviderStats{Cached: len(p.arena), NumberOfNodes: p.meta.NumberOfNodes}
	for _, s := range p.arena {
		if s.node != nil {
			out.Loaded++
		}
	}
	return out
}
