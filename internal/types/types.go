package types

import (
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"
)

// ColorMode selects how the text mask is derived for a region.
type ColorMode int

const (
	// Binary text is assumed to be near-white or near-black on the background.
	Binary ColorMode = iota
	// Gray text has an arbitrary luminance.
	Gray
)

func (c ColorMode) String() string {
	if c == Gray {
		return "gray"
	}
	return "binary"
}

func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "binary":
		return Binary, nil
	case "gray", "grey":
		return Gray, nil
	}
	return Binary, fmt.Errorf("unknown color mode %q", s)
}

// Region is a user-selected rectangle. Coordinates are half-open: [X1,X2) x [Y1,Y2).
type Region struct {
	X1, X2, Y1, Y2 int
	Color          ColorMode
	Label          string
}

func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Clamp returns the region limited to a w x h frame.
func (r Region) Clamp(w, h int) Region {
	rect := r.Rect().Intersect(image.Rect(0, 0, w, h))
	r.X1, r.Y1, r.X2, r.Y2 = rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y
	return r
}

func (r Region) Empty() bool { return r.Rect().Empty() }

func (r Region) String() string {
	name := r.Label
	if name == "" {
		name = "region"
	}
	return fmt.Sprintf("%s[%d,%d,%d,%d]", name, r.X1, r.X2, r.Y1, r.Y2)
}

// ParseRegion accepts "x1,x2,y1,y2[:gray|binary][@label]".
func ParseRegion(s string) (Region, error) {
	var r Region
	raw := strings.TrimSpace(s)
	if at := strings.LastIndex(raw, "@"); at >= 0 {
		r.Label = strings.TrimSpace(raw[at+1:])
		raw = raw[:at]
	}
	if colon := strings.Index(raw, ":"); colon >= 0 {
		c, err := ParseColorMode(raw[colon+1:])
		if err != nil {
			return Region{}, err
		}
		r.Color = c
		raw = raw[:colon]
	}
	var coords [4]int
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("region %q: want x1,x2,y1,y2", s)
	}
	for i, p := range parts {
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%d", &coords[i]); err != nil {
			return Region{}, fmt.Errorf("region %q: coordinate %d: %w", s, i+1, err)
		}
	}
	r.X1, r.X2, r.Y1, r.Y2 = coords[0], coords[1], coords[2], coords[3]
	if r.X2 <= r.X1 || r.Y2 <= r.Y1 {
		return Region{}, fmt.Errorf("region %q: empty rectangle", s)
	}
	return r, nil
}

// Frame is one decoded video frame. Whoever holds a Frame owns Mat and must
// Close it or hand it to the next stage.
type Frame struct {
	Index int
	Mat   gocv.Mat
}

func (f Frame) Close() { _ = f.Mat.Close() }

// Segment is a closed subtitle timing interval in frame indices, both ends inclusive.
type Segment struct {
	SentenceID int `json:"sentence_id" yaml:"sentence_id"`
	StartFrame int `json:"start_frame" yaml:"start_frame"`
	EndFrame   int `json:"end_frame" yaml:"end_frame"`
}

func (s Segment) Frames() int { return s.EndFrame - s.StartFrame + 1 }

// FadeoutSuffix on a marker label means the text is fading on those frames.
const FadeoutSuffix = "-fadeout"

// Marker tells whether a region is active on a given frame.
type Marker struct {
	Active bool
	Label  string
}

// TimeTable holds per-region, per-frame activity markers. A nil TimeTable
// means every region is active on every frame.
type TimeTable struct {
	Markers [][]Marker
}

func NewTimeTable(regions, frames int) *TimeTable {
	tt := &TimeTable{Markers: make([][]Marker, regions)}
	for i := range tt.Markers {
		tt.Markers[i] = make([]Marker, frames)
	}
	return tt
}

func (t *TimeTable) Active(region, frame int) bool {
	if t == nil {
		return true
	}
	return t.marker(region, frame).Active
}

// Fading reports whether the region's text is marked as fading out on frame.
// A nil TimeTable never fades.
func (t *TimeTable) Fading(region, frame int) bool {
	if t == nil {
		return false
	}
	m := t.marker(region, frame)
	return m.Active && strings.HasSuffix(m.Label, FadeoutSuffix)
}

func (t *TimeTable) marker(region, frame int) Marker {
	if region < 0 || region >= len(t.Markers) {
		return Marker{}
	}
	row := t.Markers[region]
	if frame < 0 || frame >= len(row) {
		return Marker{}
	}
	return row[frame]
}

// Mark sets frames [start,end] of a region active, growing the row as needed.
func (t *TimeTable) Mark(region, start, end int, label string) {
	if region < 0 || region >= len(t.Markers) || end < start {
		return
	}
	if start < 0 {
		start = 0
	}
	row := t.Markers[region]
	if end >= len(row) {
		row = append(row, make([]Marker, end+1-len(row))...)
	}
	for i := start; i <= end; i++ {
		row[i] = Marker{Active: true, Label: label}
	}
	t.Markers[region] = row
}

// Mode is the per-run processing strategy.
type Mode int

const (
	ModeInpaintTelea Mode = iota
	ModeInpaintNS
	ModeInpaintTiled
	ModeInpaintLearned
	ModeVisualize
	ModeAutoSub
)

var modeNames = map[Mode]string{
	ModeInpaintTelea:   "telea",
	ModeInpaintNS:      "ns",
	ModeInpaintTiled:   "tiled",
	ModeInpaintLearned: "learned",
	ModeVisualize:      "visualize",
	ModeAutoSub:        "autosub",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "fast":
		return ModeInpaintTelea, nil
	case "mask":
		return ModeVisualize, nil
	}
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// CacheEligible reports whether results of the mode go through the similarity cache.
func (m Mode) CacheEligible() bool {
	switch m {
	case ModeInpaintNS, ModeInpaintTiled, ModeInpaintLearned:
		return true
	}
	return false
}
