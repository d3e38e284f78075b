package btree

import (
	"cmp"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
)

// DataProvider owns the nodes of a tree. The tree only holds node IDs and
// mutates the nodes it is handed in place; a provider must return the same
// instance for the same ID until it is flushed.
type DataProvider[K cmp.Ordered] interface {
	// GetRootNode loads the root, creating an empty one on first use.
	GetRootNode(degree int) (*Node[K], error)
	SetRootNode(node *Node[K]) error
	GetNode(id int64) (*Node[K], error)
	CreateNode(degree int) (*Node[K], error)
}

var _ DataProvider[int] = (*MemoryProvider[int])(nil)

// MemoryProvider keeps every node in a map.
type MemoryProvider[K cmp.Ordered] struct {
	nodes  map[int64]*Node[K]
	nextID int64
	rootID int64
}

func NewMemoryProvider[K cmp.Ordered]() *MemoryProvider[K] {
	return &MemoryProvider[K]{nodes: make(map[int64]*Node[K])}
}

func (p *MemoryProvider[K]) GetRootNode(degree int) (*Node[K], error) {
	if p.rootID == 0 {
		root, err := p.CreateNode(degree)
		if err != nil {
			return nil, err
		}
		p.rootID = root.ID
	}
	return p.GetNode(p.rootID)
}

func (p *MemoryProvider[K]) SetRootNode(node *Node[K]) error {
	p.rootID = node.ID
	return nil
}

func (p *MemoryProvider[K]) GetNode(id int64) (*Node[K], error) {
	n, ok := p.nodes[id]
	if !ok {
		return nil, apperr.NotFound("btree.GetNode", id)
	}
	return n, nil
}

func (p *MemoryProvider[K]) CreateNode(degree int) (*Node[K], error) {
	p.nextID++
	n := NewNode[K](p.nextID, degree)
	p.nodes[n.ID] = n
	return n, nil
}

// Len returns the number of nodes ever created, reachable or not.
func (p *MemoryProvider[K]) Len() int {
	return len(p.nodes)
}
