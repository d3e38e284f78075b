package index

import (
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
	"github.com/huynhanx03/go-objectdb/pkg/records"
)

// Flush writes every changed node reachable from the root, children before
// parents, then registers the root address. Nodes no longer reachable are
// dropped and, with reuse, their records recycled.
func (p *RecordProvider[K]) Flush() error {
	if p.rootID == 0 {
		return nil
	}
	p.relocations = nil

	order, reachable, err := p.mark()
	if err != nil {
		return err
	}
	if err := p.sweep(reachable); err != nil {
		return err
	}

	// Post-order writes leave no parent behind a moved child, so the first
	// pass normally settles everything.
	for pass := 0; ; pass++ {
		if pass >= p.opts.maxDepth {
			return apperr.Corruption("index.Flush", "node addresses did not settle after %d passes", pass)
		}
		if err := p.persist(order); err != nil {
			return err
		}
		if !p.stale(order) {
			break
		}
	}

	if err := p.registerRoot(); err != nil {
		return err
	}
	return p.persistMeta()
}

// mark returns the loaded nodes reachable from the root in post-order, and
// the full reachable set. A node reached twice means a cycle or a shared
// child.
func (p *RecordProvider[K]) mark() ([]int64, map[int64]struct{}, error) {
	const op = "index.Flush"
	reachable := make(map[int64]struct{}, len(p.arena))
	var order []int64

	var visit func(id int64, depth int) error
	visit = func(id int64, depth int) error {
		if depth > p.opts.maxDepth {
			return apperr.Corruption(op, "tree deeper than %d levels", p.opts.maxDepth)
		}
		if _, ok := reachable[id]; ok {
			return apperr.Corruption(op, "node %d is reachable more than once", id)
		}
		reachable[id] = struct{}{}

		s, ok := p.arena[id]
		if !ok {
			return apperr.NotFound(op, id)
		}
		if s.node == nil {
			return nil
		}
		for _, child := range s.node.Children {
			if err := visit(child, depth+1); err != nil {
				return err
			}
		}
		order = append(order, id)
		return nil
	}

	if err := visit(p.rootID, 1); err != nil {
		return nil, nil, err
	}
	return order, reachable, nil
}

// sweep drops every arena slot outside reachable.
func (p *RecordProvider[K]) sweep(reachable map[int64]struct{}) error {
	for _, id := range slices.Sorted(maps.Keys(p.arena)) {
		if _, ok := reachable[id]; ok {
			continue
		}
		s := p.arena[id]
		if s.address > 0 {
			if p.opts.reuse {
				if err := p.manager.Recycle(s.address); err != nil {
					return err
				}
			}
			delete(p.byAddress, s.address)
			p.opts.logger.Debug("node released",
				zap.String("index", p.name),
				zap.Int64("address", s.address),
				zap.Bool("recycled", p.opts.reuse))
		}
		delete(p.arena, id)
		p.meta.NumberOfNodes--
		p.metaDirty = true
	}
	return nil
}

// persist writes each node in order that is dirty, unaddressed, or whose
// children no longer sit where its stored form says.
func (p *RecordProvider[K]) persist(order []int64) error {
	for _, id := range order {
		s := p.arena[id]
		children := p.ChildAddresses(s.node)
		if !s.node.Dirty() && s.address > 0 && slices.Equal(children, s.persisted) {
			continue
		}

		nr := NodeRecord[K]{
			Degree:   s.node.Degree,
			Keys:     make([]K, len(s.node.Entries)),
			Pointers: make([]int64, len(s.node.Entries)),
			Children: children,
		}
		for i, e := range s.node.Entries {
			nr.Keys[i] = e.Key
			nr.Pointers[i] = e.Pointer
		}
		data, err := p.codec.Serialize(nr)
		if err != nil {
			return err
		}

		var rec *records.Record
		if s.address > 0 {
			rec, err = p.manager.UpdateRecord(&records.Record{Header: records.Header{Address: s.address}},
				data, p.opts.reuse, p.opts.strategy)
		} else {
			rec, err = p.manager.AppendRecord(data, p.opts.reuse, p.opts.strategy)
		}
		if err != nil {
			return err
		}

		if rec.Address != s.address {
			if s.address > 0 {
				p.relocations = append(p.relocations, Relocation{From: s.address, To: rec.Address})
				p.opts.logger.Debug("node relocated",
					zap.String("index", p.name),
					zap.Int64("from", s.address),
					zap.Int64("to", rec.Address))
				delete(p.byAddress, s.address)
			}
			s.address = rec.Address
			p.byAddress[rec.Address] = id
		}
		s.persisted = children
		s.node.ClearDirty()
	}
	return nil
}

// stale reports whether any node in order still serializes an outdated child
// address.
func (p *RecordProvider[K]) stale(order []int64) bool {
	for _, id := range order {
		s := p.arena[id]
		if !slices.Equal(p.ChildAddresses(s.node), s.persisted) {
			return true
		}
	}
	return false
}

func (p *RecordProvider[K]) registerRoot() error {
	addr := p.arena[p.rootID].address
	if addr == p.rootAddress {
		return nil
	}
	if err := p.manager.RegisterNamedRecordAddress(p.name, addr, p.opts.reuse); err != nil {
		return err
	}
	p.rootAddress = addr
	return nil
}

func (p *RecordProvider[K]) persistMeta() error {
	if !p.metaDirty {
		return nil
	}
	data, err := p.metaC.Serialize(p.meta)
	if err != nil {
		return err
	}

	var rec *records.Record
	if p.metaAddress > 0 {
		rec, err = p.manager.UpdateRecord(&records.Record{Header: records.Header{Address: p.metaAddress}},
			data, p.opts.reuse, p.opts.strategy)
	} else {
		rec, err = p.manager.AppendRecord(data, p.opts.reuse, p.opts.strategy)
	}
	if err != nil {
		return err
	}
	if rec.Address != p.metaAddress {
		if err := p.manager.RegisterNamedRecordAddress(metaName(p.name), rec.Address, p.opts.reuse); err != nil {
			return err
		}
		p.metaAddress = rec.Address
	}
	p.metaDirty = false
	return nil
}
