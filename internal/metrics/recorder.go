package metrics

import "time"

// ResultLabel enumerates pipeline stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultSkipped  ResultLabel = "skipped"
	ResultTimeout  ResultLabel = "timeout"
	ResultCanceled ResultLabel = "canceled"
)

// CacheLabel enumerates artifact cache lookup results.
type CacheLabel string

const (
	CacheHit    CacheLabel = "hit"
	CacheMiss   CacheLabel = "miss"
	CacheShared CacheLabel = "shared"
	CacheFailed CacheLabel = "failed"
)

// Build outcome labels.
const (
	BuildOutcomeSuccess  = "success"
	BuildOutcomeFailed   = "failed"
	BuildOutcomeCanceled = "canceled"
)

// Recorder defines observability hooks for cache, pipeline and build metrics.
// Implementations must be safe for concurrent use.
type Recorder interface {
	IncCacheResult(result CacheLabel)
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	AddOrphansRemoved(n int)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome string) // outcome: success|failed|canceled
	IncRetry(operation string)
	IncRetryExhausted(operation string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncCacheResult(CacheLabel)                  {}
func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) AddOrphansRemoved(int)                      {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) IncRetry(string)                            {}
func (NoopRecorder) IncRetryExhausted(string)                   {}
