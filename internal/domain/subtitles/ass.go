package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/textwipe/internal/types"
)

// Dialogue is one event line of an ASS script.
type Dialogue struct {
	Start time.Duration
	End   time.Duration
	Style string
	Text  string
}

// RenderSegments writes an ASS script with one empty Dialogue per segment,
// ready to be filled with text in a subtitle editor.
func RenderSegments(segs []types.Segment, fps float64, width, height int) string {
	var b strings.Builder
	b.WriteString(assHeader(width, height))
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, s := range segs {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(FrameTime(s.StartFrame, fps)))
		b.WriteString(",")
		// end is inclusive, the event lasts until the next frame starts
		b.WriteString(assTime(FrameTime(s.EndFrame+1, fps)))
		b.WriteString(fmt.Sprintf(",Default,,0,0,0,,{sentence %d}\n", s.SentenceID))
	}
	return b.String()
}

// ParseDialogues reads the Dialogue events of an ASS script. Lines of other
// kinds are skipped.
func ParseDialogues(r io.Reader) ([]Dialogue, error) {
	var out []Dialogue
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		rest, ok := strings.CutPrefix(line, "Dialogue:")
		if !ok {
			continue
		}
		// Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
		fields := strings.SplitN(rest, ",", 10)
		if len(fields) < 10 {
			return nil, fmt.Errorf("ass line %d: want 10 fields, got %d", n, len(fields))
		}
		start, err := parseASSTime(fields[1])
		if err != nil {
			return nil, fmt.Errorf("ass line %d: start: %w", n, err)
		}
		end, err := parseASSTime(fields[2])
		if err != nil {
			return nil, fmt.Errorf("ass line %d: end: %w", n, err)
		}
		out = append(out, Dialogue{
			Start: start,
			End:   end,
			Style: strings.TrimSpace(fields[3]),
			Text:  strings.TrimSpace(fields[9]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ass: %w", err)
	}
	return out, nil
}

// FrameAt maps a timestamp to the frame shown at that time.
func FrameAt(d time.Duration, fps float64) int {
	if fps <= 0 || d <= 0 {
		return 0
	}
	return int(d.Seconds() * fps)
}

// FrameTime is the presentation time of a frame.
func FrameTime(frame int, fps float64) time.Duration {
	if fps <= 0 || frame <= 0 {
		return 0
	}
	return time.Duration(math.Round(float64(frame) * float64(time.Second) / fps))
}

func assHeader(width, height int) string {
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}
	return strings.TrimSpace(fmt.Sprintf(`
[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default, Arial, 48, &H00FFFFFF, &H000000FF, &H00000000, &H64000000, 0,0,0,0,100,100,0,0,1,2,1,2, 40,40,40,1
`, width, height))
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

// parseASSTime accepts H:MM:SS.cc.
func parseASSTime(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("bad time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("bad hours in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("bad minutes in %q", s)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("bad seconds in %q", s)
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	return d + time.Duration(sec*float64(time.Second)+0.5), nil
}
