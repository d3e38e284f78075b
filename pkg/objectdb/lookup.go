package objectdb

import (
	"cmp"
	"strings"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
)

// FindBy returns the objects whose value in the secondary index name equals
// value, in id order.
func FindBy[T any, K cmp.Ordered, V cmp.Ordered](c *Collection[T, K], name string, value V) ([]*T, error) {
	return FindBetween(c, name, value, value)
}

// FindBetween returns the objects whose value in the secondary index name lies
// in [lo, hi], ordered by value and then by id.
func FindBetween[T any, K cmp.Ordered, V cmp.Ordered](c *Collection[T, K], name string, lo, hi V) ([]*T, error) {
	const op = "objectdb.FindBetween"
	si := c.secondary(name)
	if si == nil {
		return nil, apperr.InvalidArgument(op, "collection %q has no index %q", c.Name(), name)
	}
	from, ok := si.def.encode(lo)
	to, _ := si.def.encode(hi)
	if !ok {
		return nil, apperr.InvalidArgument(op, "index %q does not hold values of type %T", name, lo)
	}

	var out []*T
	err := c.run(func() error {
		var addrs []int64
		if err := si.ix.Seek(from, func(key string, addr int64) bool {
			// keys are value then id, so every key for hi starts with its encoding
			if key > to && !strings.HasPrefix(key, to) {
				return false
			}
			addrs = append(addrs, addr)
			return true
		}); err != nil {
			return err
		}
		var err error
		out, err = c.load(addrs)
		return err
	})
	return out, err
}

// Indexes returns the names of the collection's secondary indexes.
func (c *Collection[T, K]) Indexes() []string {
	names := make([]string, 0, len(c.indexes))
	for _, si := range c.indexes {
		names = append(names, si.def.IndexName())
	}
	return names
}

func (c *Collection[T, K]) secondary(name string) *secondaryIndex[T] {
	for _, si := range c.indexes {
		if si.def.IndexName() == name {
			return si
		}
	}
	return nil
}
