package disttree

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordInit is called after each Init call.
	// duration is the total time taken, err is nil if successful.
	RecordInit(duration time.Duration, err error)

	// RecordIndex is called after each full IndexData run.
	RecordIndex(duration time.Duration, err error)

	// RecordPhase is called after each completed protocol phase.
	RecordPhase(phase string, duration time.Duration)

	// RecordMigration is called after the point exchange of a
	// rebalancing round. points is the number of points shipped to
	// peers, bytes the encoded fragment volume.
	RecordMigration(points int, bytes int64, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInit(time.Duration, error)           {}
func (NoopMetricsCollector) RecordIndex(time.Duration, error)          {}
func (NoopMetricsCollector) RecordPhase(string, time.Duration)         {}
func (NoopMetricsCollector) RecordMigration(int, int64, time.Duration) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InitCount       atomic.Int64
	InitErrors      atomic.Int64
	IndexCount      atomic.Int64
	IndexErrors     atomic.Int64
	IndexTotalNanos atomic.Int64
	PhaseCount      atomic.Int64
	MigratedPoints  atomic.Int64
	MigratedBytes   atomic.Int64
}

// RecordInit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInit(duration time.Duration, err error) {
	b.InitCount.Add(1)
	if err != nil {
		b.InitErrors.Add(1)
	}
}

// RecordIndex implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIndex(duration time.Duration, err error) {
	b.IndexCount.Add(1)
	b.IndexTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.IndexErrors.Add(1)
	}
}

// RecordPhase implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPhase(string, time.Duration) {
	b.PhaseCount.Add(1)
}

// RecordMigration implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMigration(points int, bytes int64, _ time.Duration) {
	b.MigratedPoints.Add(int64(points))
	b.MigratedBytes.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InitCount:      b.InitCount.Load(),
		InitErrors:     b.InitErrors.Load(),
		IndexCount:     b.IndexCount.Load(),
		IndexErrors:    b.IndexErrors.Load(),
		IndexAvgNanos:  b.getAvgIndexNanos(),
		PhaseCount:     b.PhaseCount.Load(),
		MigratedPoints: b.MigratedPoints.Load(),
		MigratedBytes:  b.MigratedBytes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgIndexNanos() int64 {
	count := b.IndexCount.Load()
	if count == 0 {
		return 0
	}
	return b.IndexTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InitCount      int64
	InitErrors     int64
	IndexCount     int64
	IndexErrors    int64
	IndexAvgNanos  int64
	PhaseCount     int64
	MigratedPoints int64
	MigratedBytes  int64
}
