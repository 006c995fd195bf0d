package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"gocv.io/x/gocv"

	"github.com/forPelevin/textwipe/internal/config"
	"github.com/forPelevin/textwipe/internal/coordinator"
	"github.com/forPelevin/textwipe/internal/ports"
	"github.com/forPelevin/textwipe/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/textwipe/internal/ports/adapters/gocvio"
	"github.com/forPelevin/textwipe/internal/ports/adapters/preview"
	"github.com/forPelevin/textwipe/internal/types"
	"github.com/forPelevin/textwipe/internal/usecase"
)

type Config struct {
	Input string
	// Output is derived from Input when empty.
	Output    string
	Regions   []types.Region
	Mode      types.Mode
	TimeTable string
	// PreviewAddr starts the live preview server when set.
	PreviewAddr string
	KeepTemp    bool

	Settings   *config.Config
	Logger     *slog.Logger
	OnProgress func(percent float64)
}

func (c Config) Validate() error {
	if c.Input == "" {
		return errors.New("input is empty")
	}
	fi, err := os.Stat(c.Input)
	if err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("input %s is a directory", c.Input)
	}
	if len(c.Regions) == 0 {
		return errors.New("at least one --region is required")
	}
	if c.Mode == types.ModeAutoSub && len(c.Regions) != 1 {
		return fmt.Errorf("autosub needs exactly one region, got %d", len(c.Regions))
	}
	if c.Output != "" {
		if fi, err := os.Stat(c.Output); err == nil && fi.IsDir() {
			return fmt.Errorf("output %s is a directory", c.Output)
		}
		if dir := filepath.Dir(c.Output); dir != "" {
			if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
				return fmt.Errorf("output directory %s: not a directory", dir)
			}
		}
	}
	if c.TimeTable != "" {
		if _, err := os.Stat(c.TimeTable); err != nil {
			return fmt.Errorf("stat timetable: %w", err)
		}
	}
	if c.Settings == nil {
		return errors.New("settings are required")
	}
	return nil
}

func Run(ctx context.Context, cfg Config) usecase.Outcome {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := cfg.Settings

	out := cfg.Output
	if out == "" {
		out = DefaultOutput(cfg.Input, cfg.Mode, time.Now())
	}
	log.Info("output", "path", out)

	// adapters
	ff := ffmpeg.New(s.Pipeline.FFmpeg, s.Pipeline.FFprobe)
	deps := usecase.Deps{
		OpenSource: func(path string) (ports.FrameSource, error) { return gocvio.OpenSource(path) },
		CreateSink: func(path, codec string, fps float64, size image.Point) (ports.FrameSink, error) {
			return gocvio.CreateSink(path, codec, fps, size)
		},
		Discard: func() ports.FrameSink { return &gocvio.Discard{} },
		Remuxer: ff,
		Prober:  ff,
		Logger:  log,
	}

	hooks := coordinator.Hooks{OnProgress: cfg.OnProgress}
	if cfg.PreviewAddr != "" {
		hub := preview.New(log)
		srvCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := hub.Serve(srvCtx, cfg.PreviewAddr); err != nil {
				log.Warn("preview server stopped", "addr", cfg.PreviewAddr, "error", err)
			}
		}()
		log.Info("preview server listening", "addr", cfg.PreviewAddr)
		hooks = previewHooks(hub, cfg.OnProgress, log)
	}

	in := usecase.Input{
		InputPath:     cfg.Input,
		OutputPath:    out,
		Regions:       cfg.Regions,
		Mode:          cfg.Mode,
		TimeTablePath: cfg.TimeTable,
		Appliers: coordinator.ApplierOptions{
			Mask:          s.MaskParams(),
			Similarity:    s.SimilarityOptions(),
			Thresholds:    s.Thresholds(),
			Lookback:      s.Cache.Lookback,
			NearDistance:  s.Cache.NearDistance,
			AutoSub:       s.AutoSubOptions(),
			CacheDisabled: !s.Cache.Enabled,
		},
		Inpaint:      s.InpaintOptions(),
		QueueSize:    s.Pipeline.QueueSize,
		PreviewEvery: previewEvery(cfg, s),
		Hooks:        hooks,
		KeepTemp:     cfg.KeepTemp || s.Pipeline.KeepTemp,
	}
	return usecase.New(deps).Run(ctx, in)
}

func previewEvery(cfg Config, s *config.Config) int {
	if cfg.PreviewAddr == "" {
		return 0
	}
	return s.Pipeline.PreviewEvery
}

func previewHooks(p ports.Preview, onProgress func(float64), log *slog.Logger) coordinator.Hooks {
	if log == nil {
		log = slog.Default()
	}
	return coordinator.Hooks{
		OnProgress: func(pct float64) {
			p.PublishProgress(pct)
			if onProgress != nil {
				onProgress(pct)
			}
		},
		OnPreview: func(index int, input, output gocv.Mat) {
			for kind, m := range map[string]gocv.Mat{"input": input, "output": output} {
				b, err := gocvio.EncodeJPEG(m)
				if err != nil {
					log.Debug("preview encode failed", "frame", index, "error", err)
					continue
				}
				p.PublishFrame(kind, index, b)
			}
		},
		// "" marks a finished (region, frame) cell and is forwarded as well
		OnAnnotation: p.PublishAnnotation,
	}
}

// DefaultOutput places the result next to the input:
// "My Clip.mp4" -> "my-clip-textwipe-20260212-103045Z-1a2b3c.mp4".
// Autosub runs get an .ass timing file instead.
func DefaultOutput(input string, mode types.Mode, now time.Time) string {
	ext := filepath.Ext(input)
	name := normalizePathSegment(strings.TrimSuffix(filepath.Base(input), ext))
	if name == "" {
		name = "input"
	}
	if mode == types.ModeAutoSub {
		ext = ".ass"
	} else if ext == "" {
		ext = ".mp4"
	}
	ts := now.UTC().Format("20060102-150405Z")
	suffix := hash(fmt.Sprintf("%s|%d", input, now.UTC().UnixNano()))[:6]
	return filepath.Join(filepath.Dir(input), fmt.Sprintf("%s-textwipe-%s-%s%s", name, ts, suffix, ext))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.Remuxer = (*ffmpeg.Adapter)(nil)
var _ ports.Prober = (*ffmpeg.Adapter)(nil)
var _ ports.FrameSource = (*gocvio.Source)(nil)
var _ ports.FrameSink = (*gocvio.Sink)(nil)
var _ ports.FrameSink = (*gocvio.Discard)(nil)
var _ ports.Preview = (*preview.Hub)(nil)
