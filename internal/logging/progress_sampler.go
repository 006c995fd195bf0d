package logging

import "math"

// ProgressSampler thins per-frame progress down to one log line per step,
// for runs without a progress bar.
type ProgressSampler struct {
	step float64
	next float64
	done bool
}

// NewProgressSampler falls back to a 5% step when step is not positive.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 5
	}
	return &ProgressSampler{step: step}
}

// Sample reports whether percent reached the next step. 100 is reported
// exactly once; a nil sampler reports everything.
func (s *ProgressSampler) Sample(percent float64) bool {
	if s == nil {
		return true
	}
	if s.done || percent < s.next {
		return false
	}
	if percent >= 100 {
		s.done = true
		return true
	}
	s.next = (math.Floor(percent/s.step) + 1) * s.step
	return true
}
