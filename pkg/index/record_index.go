package index

import (
	"cmp"
	"reflect"
	"unicode/utf8"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
	"github.com/huynhanx03/go-objectdb/pkg/datastructs/btree"
)

// IDIndexName is the name under which a collection's primary index root is
// registered.
const IDIndexName = "__ID_INDEX__"

// DefaultDegree is the minimum degree used when none is configured.
const DefaultDegree = 16

// RecordIndex maps keys to record addresses through a persisted btree. Its
// node cache lives until Reset, which callers invoke at every transaction
// boundary.
type RecordIndex[K cmp.Ordered] struct {
	manager RecordManager
	name    string
	degree  int
	opts    []Option
	codec   string

	provider *RecordProvider[K]
	tree     *btree.Tree[K]
}

// Open returns the index registered under name. Nothing is read until the
// first operation.
func Open[K cmp.Ordered](manager RecordManager, name string, degree int, opts ...Option) *RecordIndex[K] {
	if degree == 0 {
		degree = DefaultDegree
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RecordIndex[K]{manager: manager, name: name, degree: degree, opts: opts, codec: o.codec}
}

func (ix *RecordIndex[K]) Name() string {
	return ix.name
}

func (ix *RecordIndex[K]) ensure() error {
	if ix.tree != nil {
		return nil
	}
	p, err := NewRecordProvider[K](ix.manager, ix.name, ix.opts...)
	if err != nil {
		return err
	}
	tree, err := btree.New[K](p, ix.degree)
	if err != nil {
		return err
	}
	ix.provider, ix.tree = p, tree
	return nil
}

// Search returns the address registered for key.
func (ix *RecordIndex[K]) Search(key K) (int64, bool, error) {
	if err := ix.ensure(); err != nil {
		return 0, false, err
	}
	e, err := ix.tree.Search(key)
	if err != nil || e == nil {
		return 0, false, err
	}
	return e.Pointer, true, nil
}

// checkKey rejects string keys the node codec cannot store verbatim. JSON
// replaces invalid UTF-8, which could merge distinct keys inside a node.
func (ix *RecordIndex[K]) checkKey(key K) error {
	if ix.codec != "json" {
		return nil
	}
	if v := reflect.ValueOf(key); v.Kind() == reflect.String && !utf8.ValidString(v.String()) {
		return apperr.InvalidArgument("index.Register", "key %q is not valid UTF-8", v.String())
	}
	return nil
}

// Register points key at address, replacing any previous registration, and
// flushes the index.
func (ix *RecordIndex[K]) Register(key K, address int64) error {
	if err := ix.checkKey(key); err != nil {
		return err
	}
	if err := ix.ensure(); err != nil {
		return err
	}
	if err := ix.tree.Delete(key); err != nil {
		return err
	}
	if err := ix.tree.Insert(key, address); err != nil {
		return err
	}
	return ix.provider.Flush()
}

// UnRegister removes key and flushes the index. An absent key is a no-op.
func (ix *RecordIndex[K]) UnRegister(key K) error {
	if err := ix.ensure(); err != nil {
		return err
	}
	if err := ix.tree.Delete(key); err != nil {
		return err
	}
	return ix.provider.Flush()
}

// Walk calls fn for every key in order until fn returns false.
func (ix *RecordIndex[K]) Walk(fn func(key K, address int64) bool) error {
	if err := ix.ensure(); err != nil {
		return err
	}
	return ix.tree.Walk(func(e btree.Entry[K]) bool {
		return fn(e.Key, e.Pointer)
	})
}

// Seek calls fn for every key >= from in order until fn returns false.
func (ix *RecordIndex[K]) Seek(from K, fn func(key K, address int64) bool) error {
	if err := ix.ensure(); err != nil {
		return err
	}
	return ix.tree.WalkFrom(from, func(e btree.Entry[K]) bool {
		return fn(e.Key, e.Pointer)
	})
}

// Len returns the number of registered keys.
func (ix *RecordIndex[K]) Len() (int, error) {
	if err := ix.ensure(); err != nil {
		return 0, err
	}
	return ix.tree.Len()
}

// Flush persists pending node changes.
func (ix *RecordIndex[K]) Flush() error {
	if ix.provider == nil {
		return nil
	}
	return ix.provider.Flush()
}

// Reset drops the node cache. The next operation reloads from storage.
func (ix *RecordIndex[K]) Reset() {
	ix.provider, ix.tree = nil, nil
}

// Stats reports on the tree and its node cache.
func (ix *RecordIndex[K]) Stats() (btree.TreeStats, ProviderStats, error) {
	if err := ix.ensure(); err != nil {
		return btree.TreeStats{}, ProviderStats{}, err
	}
	ts, err := ix.tree.Stats()
	return ts, ix.provider.Stats(), err
}
