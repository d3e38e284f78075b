package index

import (
	"cmp"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
	"github.com/huynhanx03/go-objectdb/pkg/datastructs/btree"
)

// NodeRecord is the persisted form of a btree node. Children holds record
// addresses, not arena IDs.
type NodeRecord[K cmp.Ordered] struct {
	Degree   int     `bson:"d" json:"d"`
	Keys     []K     `bson:"k" json:"k"`
	Pointers []int64 `bson:"p" json:"p"`
	Children []int64 `bson:"c" json:"c"`
}

// Meta is index-wide bookkeeping stored under "<index>.meta".
type Meta struct {
	NumberOfNodes int64 `bson:"nodes" json:"nodes"`
}

func metaName(name string) string {
	return name + ".meta"
}

func (r *NodeRecord[K]) validate(address int64) error {
	const op = "index.NodeRecord"
	switch {
	case r.Degree < btree.MinDegree:
		return apperr.Corruption(op, "node at %d has degree %d", address, r.Degree)
	case len(r.Keys) != len(r.Pointers):
		return apperr.Corruption(op, "node at %d has %d keys and %d pointers", address, len(r.Keys), len(r.Pointers))
	case len(r.Keys) > btree.MaxEntries(r.Degree):
		return apperr.Corruption(op, "node at %d holds %d entries, degree %d allows %d",
			address, len(r.Keys), r.Degree, btree.MaxEntries(r.Degree))
	case len(r.Children) != 0 && len(r.Children) != len(r.Keys)+1:
		return apperr.Corruption(op, "node at %d has %d children for %d entries", address, len(r.Children), len(r.Keys))
	}
	for i := 1; i < len(r.Keys); i++ {
		if r.Keys[i-1] >= r.Keys[i] {
			return apperr.Corruption(op, "node at %d keys out of order at %d", address, i)
		}
	}
	for _, child := range r.Children {
		if child <= 0 {
			return apperr.Corruption(op, "node at %d has an unaddressed child", address)
		}
		if child == address {
			return apperr.Corruption(op, "node at %d references itself", address)
		}
	}
	return nil
}
