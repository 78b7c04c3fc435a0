package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidemark/tidemark/pkg/types"
)

// loadBucket accumulates ingest outcomes for one time bucket.
type loadBucket struct {
	processed int64
	rejected  int64
}

// LoadRecorder buckets ingest outcomes by wall-clock hour. The ingestion
// path reports every accepted and rejected record; the load evaluator reads
// completed buckets.
type LoadRecorder struct {
	mu      sync.Mutex
	buckets map[int64]*loadBucket
	size    time.Duration
}

// NewLoadRecorder creates a recorder with hourly buckets.
func NewLoadRecorder() *LoadRecorder {
	return &LoadRecorder{
		buckets: make(map[int64]*loadBucket),
		size:    time.Hour,
	}
}

func (r *LoadRecorder) bucketStart(t time.Time) int64 {
	return t.UTC().Truncate(r.size).Unix()
}

// Record reports one ingest outcome at the given wall-clock time.
func (r *LoadRecorder) Record(at time.Time, rejected bool) {
	start := r.bucketStart(at)
	r.mu.Lock()
	b, ok := r.buckets[start]
	if !ok {
		b = &loadBucket{}
		r.buckets[start] = b
	}
	if rejected {
		b.rejected++
	} else {
		b.processed++
	}
	r.mu.Unlock()
}

// snapshot returns the bucket for the given start, or zeroes.
func (r *LoadRecorder) snapshot(start int64) loadBucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buckets[start]; ok {
		return *b
	}
	return loadBucket{}
}

// prune drops buckets older than the cutoff.
func (r *LoadRecorder) prune(cutoff int64) {
	r.mu.Lock()
	for start := range r.buckets {
		if start < cutoff {
			delete(r.buckets, start)
		}
	}
	r.mu.Unlock()
}

// LoadEvaluator classifies the previous completed ingest bucket by a
// throughput floor and an error-rate ceiling; the worse grade wins.
type LoadEvaluator struct {
	recorder *LoadRecorder

	throughput Ladder // events per second, AtLeast
	errorRate  Ladder // percent rejected, AtMost
}

// DefaultThroughputLadder grades events per second against the floor the
// pipeline is sized for.
func DefaultThroughputLadder() Ladder {
	return Ladder{
		Grades: []Grade{
			{Threshold: 1, Status: types.StatusHealthy},
			{Threshold: 0.1, Status: types.StatusWarning},
		},
		Direction: AtLeast,
		Fallback:  types.StatusCritical,
	}
}

// DefaultErrorRateLadder grades the rejected percentage of a bucket.
func DefaultErrorRateLadder() Ladder {
	return Ladder{
		Grades: []Grade{
			{Threshold: 1, Status: types.StatusHealthy},
			{Threshold: 5, Status: types.StatusWarning},
		},
		Direction: AtMost,
		Fallback:  types.StatusCritical,
	}
}

// NewLoadEvaluator creates a load-performance evaluator over the recorder.
func NewLoadEvaluator(recorder *LoadRecorder, throughput, errorRate Ladder) *LoadEvaluator {
	return &LoadEvaluator{recorder: recorder, throughput: throughput, errorRate: errorRate}
}

func (e *LoadEvaluator) Name() string { return "load_performance" }

func (e *LoadEvaluator) Evaluate(ctx context.Context, now time.Time) ([]Observation, error) {
	// Grade the last completed bucket; the current one is still filling.
	bucketSec := int64(e.recorder.size / time.Second)
	start := e.recorder.bucketStart(now) - bucketSec
	b := e.recorder.snapshot(start)

	total := b.processed + b.rejected
	throughput := float64(b.processed) / float64(bucketSec)
	errorRate := 0.0
	if total > 0 {
		errorRate = float64(b.rejected) / float64(total) * 100
	}

	tStatus, tThreshold := e.throughput.Classify(throughput)
	eStatus, _ := e.errorRate.Classify(errorRate)
	status := tStatus
	if eStatus.AtLeast(status) {
		status = eStatus
	}
	if total == 0 {
		// An empty bucket is a freshness problem, not a load one.
		status = types.StatusHealthy
	}

	detail := fmt.Sprintf("bucket %d: %d processed, %d rejected, %.2f ev/s, %.2f%% errors",
		start, b.processed, b.rejected, throughput, errorRate)

	obs := observation("ingest", "load_performance", throughput, status, tThreshold, detail, now)
	obs.Load = &types.LoadPerformanceRecord{
		ObservedAt:  now.Unix(),
		BucketStart: start,
		Processed:   b.processed,
		Rejected:    b.rejected,
		Throughput:  throughput,
		ErrorRate:   errorRate,
		Status:      status,
	}

	e.recorder.prune(now.Add(-48 * time.Hour).Unix())
	return []Observation{obs}, nil
}
