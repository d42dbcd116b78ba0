package logging

import "strings"

// ProgressSampler suppresses repetitive conversion progress logs. It emits
// when the percentage crosses a bucket boundary or when a different job
// starts reporting.
type ProgressSampler struct {
	bucketSize int
	lastJob    string
	lastBucket int
}

// NewProgressSampler constructs a sampler with the given bucket width in
// percentage points (default 10).
func NewProgressSampler(bucketSize int) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress event for jobID at percent should be
// logged. Regressions within a job never re-emit a bucket already seen.
func (s *ProgressSampler) ShouldLog(jobID string, percent int) bool {
	if s == nil {
		return true
	}
	jobID = strings.TrimSpace(jobID)
	emit := false
	if jobID != s.lastJob {
		s.lastJob = jobID
		s.lastBucket = -1
		emit = true
	}
	if percent > 100 {
		percent = 100
	}
	if percent >= 0 {
		bucket := percent / s.bucketSize
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastJob = ""
	s.lastBucket = -1
}
