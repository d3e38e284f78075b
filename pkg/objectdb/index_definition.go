package objectdb

import (
	"cmp"
	"strings"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
	"github.com/huynhanx03/go-objectdb/pkg/index"
)

// secondaryPrefix namespaces secondary index roots in the store's named
// record table.
const secondaryPrefix = "__INDEX__"

// IndexDefinition declares how a collection identifies and indexes its
// objects.
type IndexDefinition[T any, K cmp.Ordered] struct {
	// Name is the index name inside the store. Empty means the primary
	// index name.
	Name string
	// ID extracts the identity key of an object.
	ID func(*T) K
	// Indexes are the secondary indexes kept alongside the primary one.
	Indexes []Indexer[T]
}

// Validate checks the definition and fills in defaults.
func (d *IndexDefinition[T, K]) Validate() error {
	const op = "objectdb.IndexDefinition"
	if d.ID == nil {
		return apperr.InvalidArgument(op, "ID extractor is required")
	}
	if d.Name == "" {
		d.Name = index.IDIndexName
	}

	seen := make(map[string]bool, len(d.Indexes))
	for _, ix := range d.Indexes {
		if ix == nil {
			return apperr.InvalidArgument(op, "nil secondary index")
		}
		if err := ix.validate(); err != nil {
			return err
		}
		name := ix.IndexName()
		if seen[name] {
			return apperr.InvalidArgument(op, "secondary index %q declared twice", name)
		}
		if secondaryPrefix+name == d.Name {
			return apperr.InvalidArgument(op, "secondary index %q collides with the primary index", name)
		}
		seen[name] = true
	}
	return nil
}

// Indexer is a secondary index over objects of type T. Field is the only
// implementation.
type Indexer[T any] interface {
	IndexName() string

	validate() error
	// key encodes the indexed value of obj.
	key(obj *T) string
	// encode encodes a lookup value, reporting false when v has the wrong type.
	encode(v any) (string, bool)
}

// Field indexes objects by the value Key extracts. Values need not be unique.
type Field[T any, V cmp.Ordered] struct {
	Name string
	Key  func(*T) V
}

var _ Indexer[struct{}] = Field[struct{}, int]{}

func (f Field[T, V]) IndexName() string {
	return f.Name
}

func (f Field[T, V]) validate() error {
	const op = "objectdb.Field"
	if f.Name == "" || strings.Contains(f.Name, ".") {
		return apperr.InvalidArgument(op, "invalid index name %q", f.Name)
	}
	if f.Key == nil {
		return apperr.InvalidArgument(op, "index %q has no key extractor", f.Name)
	}
	return nil
}

func (f Field[T, V]) key(obj *T) string {
	return index.OrderedKey(f.Key(obj))
}

func (f Field[T, V]) encode(v any) (string, bool) {
	value, ok := v.(V)
	if !ok {
		return "", false
	}
	return index.OrderedKey(value), true
}
