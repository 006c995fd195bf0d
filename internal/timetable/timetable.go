// Package timetable loads per-region activity schedules from subtitle
// scripts or YAML files.
package timetable

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/forPelevin/textwipe/internal/domain/subtitles"
	"github.com/forPelevin/textwipe/internal/types"
)

// Load reads path (.ass or .yaml/.yml) and returns a TimeTable with one row
// per region, matched by region label.
func Load(path string, regions []types.Region, fps float64, frames int) (*types.TimeTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open timetable: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".ass", ".ssa":
		return FromASS(f, regions, fps, frames)
	case ".yaml", ".yml":
		return FromYAML(f, regions, fps, frames)
	}
	return nil, fmt.Errorf("timetable %s: unsupported extension", path)
}

// FromASS marks a region active for every Dialogue whose style names the
// region label. A "-fadeout" style suffix matches the same region and keeps
// the suffix in the marker label, so those frames are treated as fading.
func FromASS(r io.Reader, regions []types.Region, fps float64, frames int) (*types.TimeTable, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("timetable: fps must be > 0")
	}
	dialogues, err := subtitles.ParseDialogues(r)
	if err != nil {
		return nil, err
	}
	index, err := labelIndex(regions)
	if err != nil {
		return nil, err
	}

	tt := types.NewTimeTable(len(regions), frames)
	for _, d := range dialogues {
		style := strings.TrimSuffix(d.Style, types.FadeoutSuffix)
		i, ok := index[style]
		if !ok {
			continue
		}
		tt.Mark(i, subtitles.FrameAt(d.Start, fps), subtitles.FrameAt(d.End, fps), d.Style)
	}
	return tt, nil
}

// Span is one active interval in a YAML timetable. Frames take precedence
// over seconds when both are given.
type Span struct {
	Start    *int     `yaml:"start"`
	End      *int     `yaml:"end"`
	StartSec *float64 `yaml:"start_sec"`
	EndSec   *float64 `yaml:"end_sec"`
}

// FromYAML reads a mapping of region label to a list of spans:
//
//	top:
//	  - {start: 0, end: 120}
//	  - {start_sec: 10.5, end_sec: 12}
func FromYAML(r io.Reader, regions []types.Region, fps float64, frames int) (*types.TimeTable, error) {
	var doc map[string][]Span
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse timetable: %w", err)
	}
	index, err := labelIndex(regions)
	if err != nil {
		return nil, err
	}

	tt := types.NewTimeTable(len(regions), frames)
	for label, spans := range doc {
		i, ok := index[label]
		if !ok {
			return nil, fmt.Errorf("timetable: unknown region label %q", label)
		}
		for n, s := range spans {
			start, end, err := s.frames(fps)
			if err != nil {
				return nil, fmt.Errorf("timetable %s[%d]: %w", label, n, err)
			}
			tt.Mark(i, start, end, label)
		}
	}
	return tt, nil
}

func (s Span) frames(fps float64) (int, int, error) {
	var start, end int
	switch {
	case s.Start != nil:
		start = *s.Start
	case s.StartSec != nil && fps > 0:
		start = int(*s.StartSec * fps)
	default:
		return 0, 0, fmt.Errorf("missing start")
	}
	switch {
	case s.End != nil:
		end = *s.End
	case s.EndSec != nil && fps > 0:
		end = int(*s.EndSec * fps)
	default:
		return 0, 0, fmt.Errorf("missing end")
	}
	if end < start {
		return 0, 0, fmt.Errorf("end %d before start %d", end, start)
	}
	return start, end, nil
}

func labelIndex(regions []types.Region) (map[string]int, error) {
	index := make(map[string]int, len(regions))
	for i, r := range regions {
		if r.Label == "" {
			return nil, fmt.Errorf("timetable: region %d has no label", i)
		}
		if _, dup := index[r.Label]; dup {
			return nil, fmt.Errorf("timetable: duplicate region label %q", r.Label)
		}
		index[r.Label] = i
	}
	return index, nil
}
