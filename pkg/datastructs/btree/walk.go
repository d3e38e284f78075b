package btree

import (
	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
)

// Walk calls fn for every entry in key order until fn returns false.
func (t *Tree[K]) Walk(fn func(Entry[K]) bool) error {
	_, err := t.walk(t.root, fn, 0)
	return err
}

func (t *Tree[K]) walk(n *Node[K], fn func(Entry[K]) bool, depth int) (bool, error) {
	if depth >= maxHeight {
		return false, apperr.Corruption("btree.Walk", "descent deeper than %d levels", maxHeight)
	}
	for i := 0; i <= len(n.Entries); i++ {
		if !n.IsLeaf() {
			child, err := t.provider.GetNode(n.Children[i])
			if err != nil {
				return false, err
			}
			more, err := t.walk(child, fn, depth+1)
			if err != nil || !more {
				return more, err
			}
		}
		if i < len(n.Entries) && !fn(n.Entries[i]) {
			return false, nil
		}
	}
	return true, nil
}

// WalkFrom calls fn for every entry with a key >= start, in key order, until
// fn returns false.
func (t *Tree[K]) WalkFrom(start K, fn func(Entry[K]) bool) error {
	_, err := t.walkFrom(t.root, start, fn, 0)
	return err
}

func (t *Tree[K]) walkFrom(n *Node[K], start K, fn func(Entry[K]) bool, depth int) (bool, error) {
	if depth >= maxHeight {
		return false, apperr.Corruption("btree.WalkFrom", "descent deeper than %d levels", maxHeight)
	}
	first, found := n.find(start)
	for i := first; i <= len(n.Entries); i++ {
		// the child left of an exact match only holds smaller keys
		if !n.IsLeaf() && (i > first || !found) {
			child, err := t.provider.GetNode(n.Children[i])
			if err != nil {
				return false, err
			}
			var more bool
			if i == first {
				more, err = t.walkFrom(child, start, fn, depth+1)
			} else {
				more, err = t.walk(child, fn, depth+1)
			}
			if err != nil || !more {
				return more, err
			}
		}
		if i < len(n.Entries) && !fn(n.Entries[i]) {
			return false, nil
		}
	}
	return true, nil
}

// Len returns the number of entries.
func (t *Tree[K]) Len() (int, error) {
	n := 0
	err := t.Walk(func(Entry[K]) bool {
		n++
		return true
	})
	return n, err
}

type TreeStats struct {
	Height     int
	NumNodes   int
	NumEntries int
	Occupancy  float64 // Percentage of entry capacity in use.
}

// Stats walks the whole tree.
func (t *Tree[K]) Stats() (TreeStats, error) {
	out := TreeStats{Height: t.height}
	var visit func(n *Node[K], depth int) error
	visit = func(n *Node[K], depth int) error {
		if depth >= maxHeight {
			return apperr.Corruption("btree.Stats", "descent deeper than %d levels", maxHeight)
		}
		out.NumNodes++
		out.NumEntries += len(n.Entries)
		for _, id := range n.Children {
			child, err := t.provider.GetNode(id)
			if err != nil {
				return err
			}
			if err := visit(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(t.root, 0); err != nil {
		return out, err
	}
	out.Occupancy = 100.0 * float64(out.NumEntries) / float64(MaxEntries(t.degree)*out.NumNodes)
	return out, nil
}
