//go:build integration

package itest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/textwipe/internal/config"
	"github.com/forPelevin/textwipe/internal/pipeline"
	"github.com/forPelevin/textwipe/internal/types"
	"github.com/forPelevin/textwipe/internal/usecase"
)

// makeFixture renders a 4s 320x180 clip with a tone and a white caption box
// that is visible for the first boxSeconds.
func makeFixture(t *testing.T, dir string, boxSeconds int) string {
	t.Helper()
	in := filepath.Join(dir, "input.mp4")
	box := fmt.Sprintf("drawbox=x=120:y=140:w=80:h=20:color=white:t=fill:enable='lt(t,%d)'", boxSeconds)
	ff := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi", "-i", "color=c=gray:s=320x180:d=4:r=25",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=4",
		"-vf", box,
		"-shortest",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		in,
	)
	if b, err := ff.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
	return in
}

func TestE2E_Inpaint(t *testing.T) {
	tmp := t.TempDir()
	in := makeFixture(t, tmp, 4)
	out := filepath.Join(tmp, "clean.mp4")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	settings := config.Default()
	cfg := pipeline.Config{
		Input:    in,
		Output:   out,
		Regions:  []types.Region{{X1: 100, X2: 220, Y1: 130, Y2: 170}},
		Mode:     types.ModeInpaintNS,
		Settings: &settings,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	res := pipeline.Run(ctx, cfg)
	if res.Status != usecase.StatusSuccess {
		t.Fatalf("pipeline failed: %s %v", res.Message, res.Err)
	}
	if res.Stats.FramesWritten < 90 {
		t.Fatalf("expected about 100 frames, got %d", res.Stats.FramesWritten)
	}

	dur, err := probeDurationSeconds(out)
	if err != nil {
		t.Fatalf("probe output: %v", err)
	}
	if dur < 3.5 || dur > 4.5 {
		t.Fatalf("unexpected output duration %.2fs", dur)
	}
	audio, err := probeHasAudio(out)
	if err != nil {
		t.Fatalf("probe audio: %v", err)
	}
	if !audio {
		t.Fatalf("expected audio to be carried over")
	}
	leftovers, _ := filepath.Glob(filepath.Join(tmp, "*.silent.mp4"))
	if len(leftovers) != 0 {
		t.Fatalf("silent video left behind: %v", leftovers)
	}
}

func TestE2E_AutoSub(t *testing.T) {
	tmp := t.TempDir()
	in := makeFixture(t, tmp, 2)
	out := filepath.Join(tmp, "timings.ass")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	settings := config.Default()
	res := pipeline.Run(ctx, pipeline.Config{
		Input:    in,
		Output:   out,
		Regions:  []types.Region{{X1: 100, X2: 220, Y1: 130, Y2: 170}},
		Mode:     types.ModeAutoSub,
		Settings: &settings,
	})
	if res.Status != usecase.StatusSuccess {
		t.Fatalf("autosub failed: %s %v", res.Message, res.Err)
	}
	if len(res.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %+v", res.Segments)
	}
	if seg := res.Segments[0]; seg.StartFrame != 0 || seg.EndFrame < 45 || seg.EndFrame > 52 {
		t.Fatalf("unexpected segment %+v", seg)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read timings: %v", err)
	}
	if !strings.Contains(string(b), "Dialogue: 0,0:00:00.00,") {
		t.Fatalf("unexpected timings:\n%s", b)
	}
}
