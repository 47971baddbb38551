package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCommitsTotal     = "didiforget.analysis.commits.total"
	metricSkippedTotal     = "didiforget.analysis.commits.skipped.total"
	metricRecordsTotal     = "didiforget.report.records.total"
	metricCacheHitsTotal   = "didiforget.cache.hits.total"
	metricCacheMissesTotal = "didiforget.cache.misses.total"
	metricRunDuration      = "didiforget.run.duration.seconds"

	attrStatus = "status"

	statusOK    = "ok"
	statusError = "error"
)

// durationBucketBoundaries covers 10ms to 600s, from a cache replay on a
// small repository to a cold walk of a large history.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// AnalysisMetrics holds the instruments for one process.
type AnalysisMetrics struct {
	commitsTotal metric.Int64Counter
	skippedTotal metric.Int64Counter
	recordsTotal metric.Int64Counter
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
	runDuration  metric.Float64Histogram
}

// RunStats summarises a finished run.
type RunStats struct {
	Err      error
	Commits  int
	Skipped  int
	Records  int
	Duration time.Duration

	// CacheUsed is false when caching was disabled for the run.
	CacheUsed bool
	CacheHit  bool
}

// NewAnalysisMetrics creates the instruments from mt.
func NewAnalysisMetrics(mt metric.Meter) (*AnalysisMetrics, error) {
	b := newMetricBuilder(mt)

	am := &AnalysisMetrics{
		commitsTotal: b.counter(metricCommitsTotal, "Commits analysed", "{commit}"),
		skippedTotal: b.counter(metricSkippedTotal, "Commits skipped for exceeding the size limit", "{commit}"),
		recordsTotal: b.counter(metricRecordsTotal, "Coupling records reported", "{record}"),
		cacheHits:    b.counter(metricCacheHitsTotal, "History cache hits", "{hit}"),
		cacheMisses:  b.counter(metricCacheMissesTotal, "History cache misses", "{miss}"),
		runDuration:  b.histogram(metricRunDuration, "Run duration in seconds", "s", durationBucketBoundaries...),
	}

	if b.err != nil {
		return nil, b.err
	}

	return am, nil
}

// RecordRun records a finished run. Safe on a nil receiver.
func (am *AnalysisMetrics) RecordRun(ctx context.Context, stats RunStats) {
	if am == nil {
		return
	}

	status := statusOK
	if stats.Err != nil {
		status = statusError
	}

	am.runDuration.Record(ctx, stats.Duration.Seconds(),
		metric.WithAttributes(attribute.String(attrStatus, status)))

	if stats.CacheUsed {
		if stats.CacheHit {
			am.cacheHits.Add(ctx, 1)
		} else {
			am.cacheMisses.Add(ctx, 1)
		}
	}

	if stats.Err != nil {
		return
	}

	am.commitsTotal.Add(ctx, int64(stats.Commits))
	am.skippedTotal.Add(ctx, int64(stats.Skipped))
	am.recordsTotal.Add(ctx, int64(stats.Records))
}
