// Package btree implements a classic B-tree over cmp.Ordered keys whose nodes
// live in a pluggable DataProvider.
package btree

import (
	"cmp"
	"slices"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
)

// Tree is a B-tree of minimum degree Degree: every node except the root
// holds between Degree-1 and 2*Degree-1 entries. It is not safe for
// concurrent use.
type Tree[K cmp.Ordered] struct {
	provider DataProvider[K]
	degree   int
	root     *Node[K]
	height   int
}

// New opens the tree stored in provider.
func New[K cmp.Ordered](provider DataProvider[K], degree int) (*Tree[K], error) {
	if degree < MinDegree {
		return nil, apperr.InvalidArgument("btree.New", "degree %d is below %d", degree, MinDegree)
	}
	root, err := provider.GetRootNode(degree)
	if err != nil {
		return nil, err
	}

	t := &Tree[K]{provider: provider, degree: degree, root: root, height: 1}
	for n := root; !n.IsLeaf(); t.height++ {
		if t.height >= maxHeight {
			return nil, apperr.Corruption("btree.New", "tree deeper than %d levels", maxHeight)
		}
		if n, err = provider.GetNode(n.Children[0]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Root returns the current root node.
func (t *Tree[K]) Root() *Node[K] {
	return t.root
}

// Height is the number of levels from root to leaf; an empty tree has 1.
func (t *Tree[K]) Height() int {
	return t.height
}

// Degree returns the minimum degree.
func (t *Tree[K]) Degree() int {
	return t.degree
}

// Search returns the entry stored under key, or nil.
func (t *Tree[K]) Search(key K) (*Entry[K], error) {
	n := t.root
	for depth := 0; ; depth++ {
		if depth >= maxHeight {
			return nil, apperr.Corruption("btree.Search", "descent deeper than %d levels", maxHeight)
		}
		i, found := n.find(key)
		if found {
			e := n.Entries[i]
			return &e, nil
		}
		if n.IsLeaf() {
			return nil, nil
		}
		var err error
		if n, err = t.provider.GetNode(n.Children[i]); err != nil {
			return nil, err
		}
	}
}

// Insert adds key. An existing key fails with a duplicate key error and
// leaves the tree untouched.
func (t *Tree[K]) Insert(key K, pointer int64) error {
	existing, err := t.Search(key)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.DuplicateKey("btree.Insert", key)
	}

	if t.root.full() {
		root, err := t.provider.CreateNode(t.degree)
		if err != nil {
			return err
		}
		root.Children = append(root.Children, t.root.ID)
		if err := t.splitChild(root, 0, t.root); err != nil {
			return err
		}
		if err := t.provider.SetRootNode(root); err != nil {
			return err
		}
		t.root = root
		t.height++
	}
	return t.insertNonFull(t.root, Entry[K]{Key: key, Pointer: pointer})
}

// splitChild splits the full child at parent.Children[i] around its median,
// which moves up into parent.
func (t *Tree[K]) splitChild(parent *Node[K], i int, child *Node[K]) error {
	right, err := t.provider.CreateNode(t.degree)
	if err != nil {
		return err
	}
	mid := t.degree - 1
	median := child.Entries[mid]

	right.Entries = append(right.Entries, child.Entries[mid+1:]...)
	child.Entries = slices.Clone(child.Entries[:mid])
	if !child.IsLeaf() {
		right.Children = slices.Clone(child.Children[t.degree:])
		child.Children = slices.Clone(child.Children[:t.degree])
	}

	parent.Entries = slices.Insert(parent.Entries, i, median)
	parent.Children = slices.Insert(parent.Children, i+1, right.ID)

	parent.MarkDirty()
	child.MarkDirty()
	right.MarkDirty()
	return nil
}

func (t *Tree[K]) insertNonFull(n *Node[K], e Entry[K]) error {
	for {
		i, _ := n.find(e.Key)
		if n.IsLeaf() {
			n.Entries = slices.Insert(n.Entries, i, e)
			n.MarkDirty()
			return nil
		}

		child, err := t.provider.GetNode(n.Children[i])
		if err != nil {
			return err
		}
		if child.full() {
			if err := t.splitChild(n, i, child); err != nil {
				return err
			}
			if e.Key > n.Entries[i].Key {
				if child, err = t.provider.GetNode(n.Children[i+1]); err != nil {
					return err
				}
			}
		}
		n = child
	}
}

// Delete removes key. Deleting an absent key is a no-op.
func (t *Tree[K]) Delete(key K) error {
	existing, err := t.Search(key)
	if err != nil || existing == nil {
		return err
	}
	if err := t.delete(t.root, key, 0); err != nil {
		return err
	}

	for len(t.root.Entries) == 0 && !t.root.IsLeaf() {
		root, err := t.provider.GetNode(t.root.Children[0])
		if err != nil {
			return err
		}
		if err := t.provider.SetRootNode(root); err != nil {
			return err
		}
		t.root = root
		t.height--
	}
	return nil
}

// delete removes key from the subtree at n. Every node it descends into holds
// at least Degree entries, so a removal never leaves a node underfull.
func (t *Tree[K]) delete(n *Node[K], key K, depth int) error {
	if depth >= maxHeight {
		return apperr.Corruption("btree.Delete", "descent deeper than %d levels", maxHeight)
	}
	i, found := n.find(key)

	if n.IsLeaf() {
		if found {
			n.Entries = slices.Delete(n.Entries, i, i+1)
			n.MarkDirty()
		}
		return nil
	}

	if found {
		left, err := t.provider.GetNode(n.Children[i])
		if err != nil {
			return err
		}
		right, err := t.provider.GetNode(n.Children[i+1])
		if err != nil {
			return err
		}

		switch {
		case len(left.Entries) >= t.degree:
			pred, err := t.maxEntry(left, depth+1)
			if err != nil {
				return err
			}
			n.Entries[i] = pred
			n.MarkDirty()
			return t.delete(left, pred.Key, depth+1)
		case len(right.Entries) >= t.degree:
			succ, err := t.minEntry(right, depth+1)
			if err != nil {
				return err
			}
			n.Entries[i] = succ
			n.MarkDirty()
			return t.delete(right, succ.Key, depth+1)
		default:
			t.merge(n, i, left, right)
			return t.delete(left, key, depth+1)
		}
	}

	child, err := t.provider.GetNode(n.Children[i])
	if err != nil {
		return err
	}
	if len(child.Entries) <= MinEntries(t.degree) {
		if child, err = t.fill(n, i, child); err != nil {
			return err
		}
	}
	return t.delete(child, key, depth+1)
}

// fill brings the minimal child at n.Children[i] up to Degree entries by
// borrowing from the richer sibling, or by merging when both siblings are
// minimal. It returns the node the descent continues into.
func (t *Tree[K]) fill(n *Node[K], i int, child *Node[K]) (*Node[K], error) {
	var left, right *Node[K]
	var err error
	if i > 0 {
		if left, err = t.provider.GetNode(n.Children[i-1]); err != nil {
			return nil, err
		}
	}
	if i < len(n.Children)-1 {
		if right, err = t.provider.GetNode(n.Children[i+1]); err != nil {
			return nil, err
		}
	}

	leftSpare := left != nil && len(left.Entries) >= t.degree
	rightSpare := right != nil && len(right.Entries) >= t.degree

	switch {
	case leftSpare && (!rightSpare || len(left.Entries) >= len(right.Entries)):
		t.borrowFromLeft(n, i, left, child)
		return child, nil
	case rightSpare:
		t.borrowFromRight(n, i, child, right)
		return child, nil
	case right != nil:
		t.merge(n, i, child, right)
		return child, nil
	default:
		t.merge(n, i-1, left, child)
		return left, nil
	}
}

func (t *Tree[K]) borrowFromLeft(n *Node[K], i int, left, child *Node[K]) {
	last := len(left.Entries) - 1
	child.Entries = slices.Insert(child.Entries, 0, n.Entries[i-1])
	n.Entries[i-1] = left.Entries[last]
	left.Entries = slices.Delete(left.Entries, last, last+1)

	if !left.IsLeaf() {
		lastChild := len(left.Children) - 1
		child.Children = slices.Insert(child.Children, 0, left.Children[lastChild])
		left.Children = slices.Delete(left.Children, lastChild, lastChild+1)
	}

	n.MarkDirty()
	left.MarkDirty()
	child.MarkDirty()
}

func (t *Tree[K]) borrowFromRight(n *Node[K], i int, child, right *Node[K]) {
	child.Entries = append(child.Entries, n.Entries[i])
	n.Entries[i] = right.Entries[0]
	right.Entries = slices.Delete(right.Entries, 0, 1)

	if !right.IsLeaf() {
		child.Children = append(child.Children, right.Children[0])
		right.Children = slices.Delete(right.Children, 0, 1)
	}

	n.MarkDirty()
	right.MarkDirty()
	child.MarkDirty()
}

// merge folds n.Entries[i] and right into left. right becomes unreachable.
func (t *Tree[K]) merge(n *Node[K], i int, left, right *Node[K]) {
	left.Entries = append(left.Entries, n.Entries[i])
	left.Entries = append(left.Entries, right.Entries...)
	left.Children = append(left.Children, right.Children...)

	n.Entries = slices.Delete(n.Entries, i, i+1)
	n.Children = slices.Delete(n.Children, i+1, i+2)

	right.Entries = right.Entries[:0]
	right.Children = nil

	n.MarkDirty()
	left.MarkDirty()
	right.MarkDirty()
}

func (t *Tree[K]) maxEntry(n *Node[K], depth int) (Entry[K], error) {
	for ; !n.IsLeaf(); depth++ {
		if depth >= maxHeight {
			return Entry[K]{}, apperr.Corruption("btree.maxEntry", "descent deeper than %d levels", maxHeight)
		}
		var err error
		if n, err = t.provider.GetNode(n.Children[len(n.Children)-1]); err != nil {
			return Entry[K]{}, err
		}
	}
	return n.Entries[len(n.Entries)-1], nil
}

func (t *Tree[K]) minEntry(n *Node[K], depth int) (Entry[K], error) {
	for ; !n.IsLeaf(); depth++ {
		if depth >= maxHeight {
			return Entry[K]{}, apperr.Corruption("btree.minEntry", "descent deeper than %d levels", maxHeight)
		}
		var err error
		if n, err = t.provider.GetNode(n.Children[0]); err != nil {
			return Entry[K]{}, err
		}
	}
	return n.Entries[0], nil
}
