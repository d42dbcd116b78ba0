package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize int
		wantSize   int
	}{
		{"default bucket size for zero", 0, 10},
		{"default bucket size for negative", -1, 10},
		{"custom bucket size", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog("job", 50) {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSampler_Buckets(t *testing.T) {
	s := NewProgressSampler(10)

	if !s.ShouldLog("a", 0) {
		t.Error("first report should log")
	}
	if s.ShouldLog("a", 7) {
		t.Error("7% should not log (same bucket)")
	}
	if !s.ShouldLog("a", 10) {
		t.Error("10% should log (new bucket)")
	}
	if s.ShouldLog("a", 8) {
		t.Error("regression should not re-emit")
	}
	if !s.ShouldLog("a", 100) {
		t.Error("100% should log")
	}
	if s.ShouldLog("a", 130) {
		t.Error("values over 100 share the 100% bucket")
	}
}

func TestProgressSampler_NewJobResetsBucket(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog("a", 90)

	if !s.ShouldLog("b", 0) {
		t.Error("new job should log")
	}
	if !s.ShouldLog("b", 10) {
		t.Error("10% should log after job change")
	}
}

func TestProgressSampler_Reset(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog("a", 50)

	s.Reset()

	if s.lastJob != "" {
		t.Errorf("lastJob = %q, want empty after reset", s.lastJob)
	}
	if !s.ShouldLog("a", 50) {
		t.Error("should log after reset")
	}
}
