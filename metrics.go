package gradtape

import (
	"sync/atomic"
	"time"
)

// Direction identifies a replay direction.
type Direction uint8

const (
	// DirectionForward replays statements in original recording order.
	DirectionForward Direction = iota
	// DirectionReverse replays statements in reverse recording order.
	DirectionReverse
)

// String returns a string representation of the Direction.
func (d Direction) String() string {
	if d == DirectionForward {
		return "forward"
	}
	return "reverse"
}

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordStatement is called after each recorded statement.
	// args is the number of Jacobian entries pushed with it.
	RecordStatement(args int)

	// RecordLowLevelFunction is called after each recorded low-level-function
	// call. fixed and dynamic are the payload sizes in bytes.
	RecordLowLevelFunction(fixed, dynamic int)

	// RecordEvaluate is called after each replay pass.
	RecordEvaluate(dir Direction, statements int, duration time.Duration)

	// RecordErase is called after each erase operation.
	// statements is the number of statements removed.
	RecordErase(statements int, duration time.Duration)

	// RecordAppend is called after each append operation.
	// statements is the number of statements copied in.
	RecordAppend(statements int, duration time.Duration)

	// RecordSnapshot is called after each snapshot save or load.
	RecordSnapshot(bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordStatement(int)                             {}
func (NoopMetricsCollector) RecordLowLevelFunction(int, int)                 {}
func (NoopMetricsCollector) RecordEvaluate(Direction, int, time.Duration)    {}
func (NoopMetricsCollector) RecordErase(int, time.Duration)                  {}
func (NoopMetricsCollector) RecordAppend(int, time.Duration)                 {}
func (NoopMetricsCollector) RecordSnapshot(int64, time.Duration, error)      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	StatementCount     atomic.Int64
	JacobianEntryCount atomic.Int64
	LowLevelCount      atomic.Int64
	LowLevelBytes      atomic.Int64
	ForwardEvalCount   atomic.Int64
	ReverseEvalCount   atomic.Int64
	EvalStatements     atomic.Int64
	EvalTotalNanos     atomic.Int64
	EraseCount         atomic.Int64
	AppendCount        atomic.Int64
	SnapshotCount      atomic.Int64
	SnapshotErrors     atomic.Int64
	SnapshotBytes      atomic.Int64
}

// RecordStatement implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStatement(args int) {
	b.StatementCount.Add(1)
	b.JacobianEntryCount.Add(int64(args))
}

// RecordLowLevelFunction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLowLevelFunction(fixed, dynamic int) {
	b.LowLevelCount.Add(1)
	b.LowLevelBytes.Add(int64(fixed + dynamic))
}

// RecordEvaluate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEvaluate(dir Direction, statements int, duration time.Duration) {
	if dir == DirectionForward {
		b.ForwardEvalCount.Add(1)
	} else {
		b.ReverseEvalCount.Add(1)
	}
	b.EvalStatements.Add(int64(statements))
	b.EvalTotalNanos.Add(duration.Nanoseconds())
}

// RecordErase implements MetricsCollector.
func (b *BasicMetricsCollector) RecordErase(statements int, duration time.Duration) {
	b.EraseCount.Add(1)
}

// RecordAppend implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAppend(statements int, duration time.Duration) {
	b.AppendCount.Add(1)
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(bytes int64, duration time.Duration, err error) {
	b.SnapshotCount.Add(1)
	b.SnapshotBytes.Add(bytes)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}
