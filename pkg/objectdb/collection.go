package objectdb

import (
	"cmp"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/huynhanx03/go-objectdb/pkg/codec"
	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
	"github.com/huynhanx03/go-objectdb/pkg/index"
	"github.com/huynhanx03/go-objectdb/pkg/records"
	"github.com/huynhanx03/go-objectdb/pkg/storage/allocation"
)

// Collection stores objects of type T keyed by K.
type Collection[T any, K cmp.Ordered] struct {
	session  *Session
	store    *store
	def      IndexDefinition[T, K]
	codec    codec.Codec[T]
	strategy allocation.Strategy
	reuse    bool
	index    *index.RecordIndex[K]
	indexes  []*secondaryIndex[T]
}

// secondaryIndex maps the encoded indexed value followed by the encoded id to
// the object's record address.
type secondaryIndex[T any] struct {
	def Indexer[T]
	ix  *index.RecordIndex[string]
}

// NewCollection opens the collection name in s. A name can be opened once per
// session.
func NewCollection[T any, K cmp.Ordered](s *Session, name string, def IndexDefinition[T, K]) (*Collection[T, K], error) {
	const op = "objectdb.NewCollection"
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.HasPrefix(name, "_") {
		return nil, apperr.InvalidArgument(op, "invalid collection name %q", name)
	}
	if _, ok := s.stores[name]; ok {
		return nil, apperr.InvalidArgument(op, "collection %q is already open", name)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	cfg := s.cfg
	c, err := codec.ByName[T](cfg.Storage.Codec)
	if err != nil {
		return nil, err
	}
	recordStrategy, err := allocation.ByName(cfg.Storage.RecordAllocation, cfg.Storage.BlockSize)
	if err != nil {
		return nil, err
	}
	nodeStrategy, err := allocation.ByName(cfg.Index.NodeAllocation, cfg.Storage.BlockSize)
	if err != nil {
		return nil, err
	}

	st, err := s.openStore(name)
	if err != nil {
		return nil, err
	}
	indexOptions := func(indexName string) []index.Option {
		return []index.Option{
			index.WithReuse(cfg.Storage.ReuseRecycledRecords),
			index.WithStrategy(nodeStrategy),
			index.WithCodec(cfg.Storage.Codec),
			index.WithMaxDepth(cfg.Index.MaxDepth),
			index.WithLogger(s.logger.With(zap.String("collection", name), zap.String("index", indexName))),
		}
	}

	ix := index.Open[K](st.manager, def.Name, cfg.Index.Degree, indexOptions(def.Name)...)
	st.onReset = append(st.onReset, ix.Reset)

	coll := &Collection[T, K]{
		session:  s,
		store:    st,
		def:      def,
		codec:    c,
		strategy: recordStrategy,
		reuse:    cfg.Storage.ReuseRecycledRecords,
		index:    ix,
	}
	for _, d := range def.Indexes {
		treeName := secondaryPrefix + d.IndexName()
		six := index.Open[string](st.manager, treeName, cfg.Index.Degree, indexOptions(treeName)...)
		st.onReset = append(st.onReset, six.Reset)
		coll.indexes = append(coll.indexes, &secondaryIndex[T]{def: d, ix: six})
	}
	return coll, nil
}

// Name returns the collection name.
func (c *Collection[T, K]) Name() string {
	return c.store.name
}

// run executes fn in the session transaction with this collection enlisted.
func (c *Collection[T, K]) run(fn func() error) error {
	return c.session.RunInTransaction(func() error {
		if err := c.session.enlist(c.store); err != nil {
			return err
		}
		return fn()
	})
}

func (c *Collection[T, K]) recordFor(id K) (*records.Record, error) {
	addr, ok, err := c.index.Search(id)
	if err != nil || !ok {
		return nil, err
	}
	return c.store.manager.GetRecord(addr)
}

// Find returns the object with the given id, or nil when there is none.
func (c *Collection[T, K]) Find(id K) (*T, error) {
	var out *T
	err := c.run(func() error {
		rec, err := c.recordFor(id)
		if err != nil || rec == nil {
			return err
		}
		out, err = c.decode(rec)
		return err
	})
	return out, err
}

// Persist inserts obj or replaces the stored object with the same id.
func (c *Collection[T, K]) Persist(obj *T) error {
	if obj == nil {
		return apperr.InvalidArgument("objectdb.Persist", "nil object")
	}
	return c.run(func() error {
		id := c.def.ID(obj)
		data, err := c.codec.Serialize(*obj)
		if err != nil {
			return err
		}

		rec, err := c.recordFor(id)
		if err != nil {
			return err
		}
		var old *T
		if rec != nil && len(c.indexes) > 0 {
			if old, err = c.decode(rec); err != nil {
				return err
			}
		}
		if rec != nil {
			rec, err = c.store.manager.UpdateRecord(rec, data, c.reuse, c.strategy)
		} else {
			rec, err = c.store.manager.AppendRecord(data, c.reuse, c.strategy)
		}
		if err != nil {
			return err
		}
		if err := c.index.Register(id, rec.Address); err != nil {
			return err
		}
		return c.registerSecondary(id, old, obj, rec.Address)
	})
}

func (c *Collection[T, K]) decode(rec *records.Record) (*T, error) {
	v, err := c.codec.Deserialize(rec.Data)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// registerSecondary points every secondary key of obj at address and drops
// the keys old had under a different value.
func (c *Collection[T, K]) registerSecondary(id K, old, obj *T, address int64) error {
	idKey := index.OrderedKey(id)
	for _, si := range c.indexes {
		key := si.def.key(obj) + idKey
		if old != nil {
			if prev := si.def.key(old) + idKey; prev != key {
				if err := si.ix.UnRegister(prev); err != nil {
					return err
				}
			}
		}
		if err := si.ix.Register(key, address); err != nil {
			return err
		}
	}
	return nil
}

// Destroy removes the stored object with obj's id. A missing object is not an
// error.
func (c *Collection[T, K]) Destroy(obj *T) error {
	if obj == nil {
		return apperr.InvalidArgument("objectdb.Destroy", "nil object")
	}
	return c.run(func() error {
		return c.destroy(c.def.ID(obj))
	})
}

func (c *Collection[T, K]) destroy(id K) error {
	rec, err := c.recordFor(id)
	if err != nil || rec == nil {
		return err
	}
	if len(c.indexes) > 0 {
		obj, err := c.decode(rec)
		if err != nil {
			return err
		}
		idKey := index.OrderedKey(id)
		for _, si := range c.indexes {
			if err := si.ix.UnRegister(si.def.key(obj) + idKey); err != nil {
				return err
			}
		}
	}
	if err := c.store.manager.ReleaseRecord(rec); err != nil {
		return err
	}
	return c.index.UnRegister(id)
}

// All returns every object in id order.
func (c *Collection[T, K]) All() ([]*T, error) {
	var out []*T
	err := c.run(func() error {
		var addrs []int64
		if err := c.index.Walk(func(_ K, addr int64) bool {
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

func (c *Collection[T, K]) load(addrs []int64) ([]*T, error) {
	out := make([]*T, 0, len(addrs))
	for _, addr := range addrs {
		rec, err := c.store.manager.GetRecord(addr)
		if err != nil {
			return nil, err
		}
		v, err := c.decode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Count returns the number of stored objects.
func (c *Collection[T, K]) Count() (int, error) {
	var n int
	err := c.run(func() error {
		var err error
		n, err = c.index.Len()
		return err
	})
	return n, err
}

// DestroyAll removes every object. It runs without the journal, so a crash
// part way leaves some objects behind; it cannot run inside a transaction.
func (c *Collection[T, K]) DestroyAll() error {
	const op = "objectdb.DestroyAll"
	if c.session.InTransaction() {
		return apperr.InvalidArgument(op, "cannot run inside a transaction")
	}

	journaled := c.store.engine.Journaling()
	if journaled {
		if err := c.store.engine.SetJournaling(false); err != nil {
			return err
		}
		defer func() {
			if err := c.store.engine.SetJournaling(true); err != nil {
				c.session.logger.Error("re-enabling journal", zap.String("collection", c.Name()), zap.Error(err))
			}
		}()
	}

	return c.run(func() error {
		var ids []K
		if err := c.index.Walk(func(id K, _ int64) bool {
			ids = append(ids, id)
			return true
		}); err != nil {
			return err
		}
		for _, id := range ids {
			if err := c.destroy(id); err != nil {
				return err
			}
		}
		c.session.logger.Info("collection emptied", zap.String("collection", c.Name()), zap.Int("objects", len(ids)))
		return nil
	})
}
