package disttree

import (
	"log/slog"
	"time"

	"github.com/hupe1980/disttree/resource"
	"github.com/hupe1980/disttree/table"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	allocator        table.Allocator
	seed             int64
	controller       *resource.Controller
}

// Option configures DistributedTable constructor behavior.
type Option func(*options)

// WithLogger configures structured logging for protocol phases.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// construction rounds.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithAllocator selects the allocation strategy for shard buffers.
// The choice is process-wide and symmetric: whatever allocated a shard
// buffer also releases it. Defaults to ordinary heap allocation; pass
// table.NewArenaAllocator to place shards in a mapped arena.
func WithAllocator(alloc table.Allocator) Option {
	return func(o *options) {
		if alloc == nil {
			alloc = table.NewHeapAllocator()
		}
		o.allocator = alloc
	}
}

// WithSeed fixes the seed of the sampling and padding RNG, making a
// construction round reproducible. Defaults to a time-derived seed.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithResourceController bounds migration traffic and fragment scratch
// memory. Defaults to no limits.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		allocator:        table.NewHeapAllocator(),
		seed:             time.Now().UnixNano(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
