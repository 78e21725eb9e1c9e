package gradtape

import (
	"log/slog"

	"github.com/hupe1980/gradtape/adjoint"
	"github.com/hupe1980/gradtape/llf"
	"github.com/hupe1980/gradtape/model"
	"github.com/hupe1980/gradtape/resource"
)

type options struct {
	chunkSize        int
	logger           *Logger
	metricsCollector MetricsCollector
	registry         *llf.Registry
	listener         StatementListener
	controller       *resource.Controller
	adjointGuard     adjoint.Guard
	adjointCapacity  int
	compression      Compression
}

// StatementListener receives one callback per replayed statement with the
// output identifier and the resulting derivative value. It is purely
// observational and must not mutate tape state.
type StatementListener func(lhs model.Identifier, derivative float64)

// Option configures tape construction.
type Option func(*options)

// WithChunkSize sets the number of records per chunk in the backing stores.
// Larger chunks reduce allocation frequency at the cost of a larger minimum
// footprint.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithLogger configures structured logging for tape operations.
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
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithRegistry configures the low-level-function registry the tape records
// against and replays through. Tapes sharing embedded functions must share a
// registry (or equivalent registration order). If nil, a fresh registry is
// created.
func WithRegistry(r *llf.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithStatementListener installs a notification hook invoked once per
// replayed statement.
func WithStatementListener(fn StatementListener) Option {
	return func(o *options) {
		o.listener = fn
	}
}

// WithResourceController attaches a resource controller. Chunk allocations
// draw from its memory budget, and snapshot IO honors its throughput limit.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithAdjointGuard installs a guard policy on the adjoint vector, making
// begin-use/end-use brackets mutually exclusive across goroutines. The base
// engine performs no locking.
func WithAdjointGuard(g adjoint.Guard) Option {
	return func(o *options) {
		o.adjointGuard = g
	}
}

// WithAdjointCapacity pre-sizes the adjoint and primal vectors.
func WithAdjointCapacity(n int) Option {
	return func(o *options) {
		o.adjointCapacity = n
	}
}

// WithCompression selects the snapshot compression codec.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		chunkSize:        0, // chunk.DefaultChunkSize
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		compression:      CompressionZstd,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
