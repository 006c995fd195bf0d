// Package autosub turns the frame-to-frame churn of a region's text mask into
// subtitle timing segments.
package autosub

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/forPelevin/textwipe/internal/types"
)

type Options struct {
	// NoiseThreshold is the number of vanished mask pixels below which a
	// change is treated as noise rather than a new sentence.
	NoiseThreshold int
	// MinSentenceFrames is how long a sentence must have been on screen
	// before a change may close it.
	MinSentenceFrames int
}

func DefaultOptions() Options {
	return Options{NoiseThreshold: 50, MinSentenceFrames: 10}
}

// Tracker is a two-state machine (idle, active). It is fed one mask per frame
// in frame order and is not safe for concurrent use.
type Tracker struct {
	opts Options

	prev     gocv.Mat
	hasPrev  bool
	active   bool
	sentence int
	start    int
	last     int

	segments []types.Segment
}

func NewTracker(opts Options) *Tracker {
	return &Tracker{opts: opts, last: -1}
}

// Observe feeds the text mask of frame and returns how many mask pixels
// vanished and appeared compared to the previous frame. The tracker keeps
// its own copy of mask.
func (t *Tracker) Observe(frame int, mask gocv.Mat) (removed, added int, err error) {
	if frame <= t.last {
		return 0, 0, fmt.Errorf("autosub: frame %d after %d", frame, t.last)
	}
	t.last = frame

	cur := count(mask)
	prevCount := 0
	if t.hasPrev {
		prevCount = count(t.prev)
	}

	if cur == 0 {
		if t.active {
			t.close(frame - 1)
		}
		t.clearPrev()
		return prevCount, 0, nil
	}

	if !t.active {
		t.open(frame)
		t.setPrev(mask)
		return 0, cur, nil
	}

	removed, added = diff(t.prev, mask)
	if removed > t.opts.NoiseThreshold && frame-t.start >= t.opts.MinSentenceFrames {
		t.close(frame - 1)
		t.open(frame)
	}
	t.setPrev(mask)
	return removed, added, nil
}

// Finish closes an open sentence at lastFrame.
func (t *Tracker) Finish(lastFrame int) {
	if t.active {
		if lastFrame < t.start {
			lastFrame = t.start
		}
		t.close(lastFrame)
	}
	t.clearPrev()
}

// Segments returns a copy of the confirmed segments.
func (t *Tracker) Segments() []types.Segment {
	out := make([]types.Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

func (t *Tracker) Active() bool { return t.active }

func (t *Tracker) open(frame int) {
	t.sentence++
	t.active = true
	t.start = frame
}

func (t *Tracker) close(end int) {
	t.segments = append(t.segments, types.Segment{SentenceID: t.sentence, StartFrame: t.start, EndFrame: end})
	t.active = false
}

func (t *Tracker) setPrev(mask gocv.Mat) {
	t.clearPrev()
	t.prev = mask.Clone()
	t.hasPrev = true
}

func (t *Tracker) clearPrev() {
	if t.hasPrev {
		t.prev.Close()
		t.hasPrev = false
	}
}

// Annotation formats a per-frame mask delta.
func Annotation(removed, added int) string {
	return fmt.Sprintf("-%d +%d", removed, added)
}

func diff(prev, cur gocv.Mat) (removed, added int) {
	inv := gocv.NewMat()
	defer inv.Close()
	tmp := gocv.NewMat()
	defer tmp.Close()

	gocv.BitwiseNot(cur, &inv)
	gocv.BitwiseAnd(prev, inv, &tmp)
	removed = gocv.CountNonZero(tmp)

	gocv.BitwiseNot(prev, &inv)
	gocv.BitwiseAnd(cur, inv, &tmp)
	added = gocv.CountNonZero(tmp)
	return removed, added
}

func count(m gocv.Mat) int {
	if m.Empty() {
		return 0
	}
	return gocv.CountNonZero(m)
}
