package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name string
		step float64
		want float64
	}{
		{"default for zero", 0, 5},
		{"default for negative", -2, 5},
		{"custom", 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewProgressSampler(tt.step).step; got != tt.want {
				t.Errorf("step = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.Sample(50) {
		t.Error("nil sampler should report every value")
	}
}

func TestProgressSampler_Steps(t *testing.T) {
	s := NewProgressSampler(5)
	var emitted []float64
	for _, p := range []float64{0, 1, 4.9, 5, 7, 9.9, 10, 33, 34, 99.9, 100, 100} {
		if s.Sample(p) {
			emitted = append(emitted, p)
		}
	}
	want := []float64{0, 5, 10, 33, 99.9, 100}
	if len(emitted) != len(want) {
		t.Fatalf("emitted %v, want %v", emitted, want)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("emitted %v, want %v", emitted, want)
		}
	}
}

func TestProgressSampler_JumpsSkipSteps(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.Sample(42) {
		t.Fatal("first value should be reported")
	}
	if s.Sample(49) {
		t.Error("49 is inside the 40-50 step")
	}
	if !s.Sample(50) {
		t.Error("50 starts a new step")
	}
}
