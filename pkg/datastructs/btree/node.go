package btree

import (
	"cmp"
	"slices"
)

// Entry maps a key to an opaque pointer, typically a record address.
type Entry[K cmp.Ordered] struct {
	Key     K
	Pointer int64
}

// Node is one B-tree page. Children holds node IDs as handed out by the
// DataProvider; a leaf has none.
type Node[K cmp.Ordered] struct {
	ID       int64
	Degree   int
	Entries  []Entry[K]
	Children []int64

	dirty bool
}

// NewNode returns an empty, dirty node.
func NewNode[K cmp.Ordered](id int64, degree int) *Node[K] {
	return &Node[K]{
		ID:      id,
		Degree:  degree,
		Entries: make([]Entry[K], 0, MaxEntries(degree)),
		dirty:   true,
	}
}

// MaxEntries is the most entries a node of degree may hold.
func MaxEntries(degree int) int { return 2*degree - 1 }

// MinEntries is the fewest entries a non-root node of degree may hold.
func MinEntries(degree int) int { return degree - 1 }

func (n *Node[K]) IsLeaf() bool { return len(n.Children) == 0 }

func (n *Node[K]) MarkDirty() { n.dirty = true }

func (n *Node[K]) Dirty() bool { return n.dirty }

// ClearDirty is called by providers once the node is persisted.
func (n *Node[K]) ClearDirty() { n.dirty = false }

func (n *Node[K]) full() bool {
	return len(n.Entries) >= MaxEntries(n.Degree)
}

// find returns the index of the first entry >= key and whether it is equal.
func (n *Node[K]) find(key K) (int, bool) {
	return slices.BinarySearchFunc(n.Entries, key, func(e Entry[K], k K) int {
		return cmp.Compare(e.Key, k)
	})
}
