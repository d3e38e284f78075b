package index

import (
	"go.uber.org/zap"

	"github.com/huynhanx03/go-objectdb/pkg/logger"
	"github.com/huynhanx03/go-objectdb/pkg/storage/allocation"
)

const defaultMaxDepth = 64

type options struct {
	reuse    bool
	strategy allocation.Strategy
	codec    string
	maxDepth int
	logger   *zap.Logger
}

func defaultOptions() options {
	return options{
		reuse:    true,
		strategy: allocation.DoubleSize{},
		codec:    "bson",
		maxDepth: defaultMaxDepth,
		logger:   zap.NewNop(),
	}
}

// Option configures a RecordProvider.
type Option func(*options)

// WithReuse makes node records take recycled slots and recycles the records
// of nodes that become unreachable.
func WithReuse(reuse bool) Option {
	return func(o *options) { o.reuse = reuse }
}

// WithStrategy sets the allocation strategy for node records.
func WithStrategy(s allocation.Strategy) Option {
	return func(o *options) {
		if s != nil {
			o.strategy = s
		}
	}
}

// WithCodec selects the node codec by name, see codec.ByName.
func WithCodec(name string) Option {
	return func(o *options) { o.codec = name }
}

// WithMaxDepth bounds every traversal of the persisted tree.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		if depth > 0 {
			o.maxDepth = depth
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = logger.OrNop(l) }
}
