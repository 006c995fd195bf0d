package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

// Remux copies the first video stream of video and any audio of audioFrom
// into out without re-encoding. A source without audio yields a silent out.
func (a *Adapter) Remux(ctx context.Context, video, audioFrom, out string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg, remuxArgs(video, audioFrom, out)...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg remux: %w\n%s", err, tail(string(b), 2000))
	}
	return nil
}

func remuxArgs(video, audioFrom, out string) []string {
	return []string{
		"-y",
		"-v", "error",
		"-i", video,
		"-i", audioFrom,
		"-map", "0:v:0",
		"-map", "1:a?",
		"-c", "copy",
		"-shortest",
		out,
	}
}

func (a *Adapter) HasAudio(ctx context.Context, path string) (bool, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("ffprobe audio streams: %w\n%s", err, string(b))
	}
	return strings.TrimSpace(string(b)) != "", nil
}

// tail keeps the end of long tool output, where ffmpeg prints the actual failure.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
