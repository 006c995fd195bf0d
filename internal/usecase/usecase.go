package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/forPelevin/textwipe/internal/coordinator"
	"github.com/forPelevin/textwipe/internal/domain/inpaint"
	"github.com/forPelevin/textwipe/internal/domain/subtitles"
	"github.com/forPelevin/textwipe/internal/ports"
	"github.com/forPelevin/textwipe/internal/timetable"
	"github.com/forPelevin/textwipe/internal/types"
)

// ErrConfiguration marks settings rejected before any worker starts.
var ErrConfiguration = coordinator.ErrConfiguration

var ErrLocked = errors.New("output is locked by another run")

type Deps struct {
	OpenSource func(path string) (ports.FrameSource, error)
	CreateSink func(path, codec string, fps float64, size image.Point) (ports.FrameSink, error)
	// Discard backs autosub runs, which write no video.
	Discard func() ports.FrameSink
	Remuxer ports.Remuxer
	// Prober is optional; without it every source is remuxed.
	Prober ports.Prober
	Logger *slog.Logger
	NewID  func() string
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return Usecase{d: d}
}

type Input struct {
	InputPath string
	// OutputPath is the final video, or the ASS timing file in autosub mode.
	OutputPath    string
	Regions       []types.Region
	Mode          types.Mode
	TimeTablePath string
	Appliers      coordinator.ApplierOptions
	Inpaint       inpaint.Options
	QueueSize     int
	PreviewEvery  int
	Hooks         coordinator.Hooks
	KeepTemp      bool
}

type Status int

const (
	StatusSuccess Status = iota
	StatusWarn
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusWarn:
		return "warn"
	}
	return "error"
}

type Stats struct {
	FramesRead     int
	FramesWritten  int
	RegionFailures int
	CacheHits      int
	CacheMisses    int
	MaskedPixels   int
	OutputBytes    int64
	Elapsed        time.Duration
}

// Outcome is the single report of a run.
type Outcome struct {
	Status  Status
	Message string
	Err     error

	OutputPath string
	// SilentPath is set when the intermediate silent video was kept on disk.
	SilentPath string
	Segments   []types.Segment
	Stats      Stats
}

func (u Usecase) Run(ctx context.Context, in Input) Outcome {
	start := time.Now()
	out := u.run(ctx, in)
	out.Stats.Elapsed = time.Since(start)
	if fi, err := os.Stat(out.OutputPath); err == nil && out.Status == StatusSuccess {
		out.Stats.OutputBytes = fi.Size()
	}
	return out
}

func (u Usecase) run(ctx context.Context, in Input) Outcome {
	log := u.d.Logger
	if in.OutputPath == "" {
		return failed(fmt.Errorf("%w: output path is empty", ErrConfiguration))
	}
	if in.Mode == types.ModeAutoSub && len(in.Regions) != 1 {
		return failed(fmt.Errorf("%w: autosub needs exactly one region, got %d", ErrConfiguration, len(in.Regions)))
	}

	var (
		inp inpaint.Inpainter
		err error
	)
	if in.Mode != types.ModeAutoSub {
		inp, err = inpaint.New(in.Mode, in.Inpaint)
		if err != nil {
			return failed(fmt.Errorf("%w: %w", ErrConfiguration, err))
		}
		defer inp.Close()
	}

	opts := in.Appliers
	opts.Mode = in.Mode
	appliers, err := coordinator.BuildAppliers(in.Regions, inp, opts)
	if err != nil {
		return failed(err)
	}
	defer closeAppliers(appliers)

	lock := flock.New(in.OutputPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return failed(fmt.Errorf("lock output: %w", err))
	}
	if !locked {
		return failed(fmt.Errorf("%w: %s", ErrLocked, in.OutputPath))
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	src, err := u.d.OpenSource(in.InputPath)
	if err != nil {
		return failed(err)
	}
	defer src.Close()
	size := src.Size()
	log.Info("source opened", "path", in.InputPath, "frames", src.FrameCount(), "fps", src.FPS(),
		"width", size.X, "height", size.Y, "codec", src.Codec())

	var tt *types.TimeTable
	if in.TimeTablePath != "" {
		tt, err = timetable.Load(in.TimeTablePath, in.Regions, src.FPS(), src.FrameCount())
		if err != nil {
			return failed(fmt.Errorf("%w: %w", ErrConfiguration, err))
		}
	}

	var sink ports.FrameSink
	silent := ""
	if in.Mode == types.ModeAutoSub {
		sink = u.d.Discard()
	} else {
		silent = silentPath(in.OutputPath, u.d.NewID())
		sink, err = u.d.CreateSink(silent, src.Codec(), src.FPS(), size)
		if err != nil {
			return failed(err)
		}
	}

	coord, err := coordinator.New(src, sink, coordinator.Config{
		Regions:      in.Regions,
		Appliers:     appliers,
		TimeTable:    tt,
		QueueSize:    in.QueueSize,
		PreviewEvery: in.PreviewEvery,
		Hooks:        in.Hooks,
		Logger:       log,
	})
	if err != nil {
		_ = sink.Close()
		removeTemp(silent)
		return failed(err)
	}

	log.Info("processing", "mode", in.Mode.String(), "regions", len(in.Regions))
	res, runErr := coord.Run(ctx)
	closeErr := sink.Close()
	stats := collectStats(res, appliers)

	if runErr != nil {
		removeTemp(silent)
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			return Outcome{Status: StatusWarn, Message: "cancelled", Err: runErr, Stats: stats}
		}
		return Outcome{Status: StatusError, Message: runErr.Error(), Err: runErr, Stats: stats}
	}
	if closeErr != nil {
		removeTemp(silent)
		return Outcome{Status: StatusError, Message: closeErr.Error(), Err: fmt.Errorf("finalize video: %w", closeErr), Stats: stats}
	}

	if in.Mode == types.ModeAutoSub {
		return u.writeTimings(in, src, appliers[0], stats)
	}
	return u.finalize(ctx, in, silent, stats)
}

func (u Usecase) writeTimings(in Input, src ports.FrameSource, a coordinator.RegionApplier, stats Stats) Outcome {
	segs := a.(*coordinator.AutoSubApplier).Segments()
	size := src.Size()
	ass := subtitles.RenderSegments(segs, src.FPS(), size.X, size.Y)
	if err := writeFile(in.OutputPath, []byte(ass)); err != nil {
		return Outcome{Status: StatusError, Message: err.Error(), Err: err, Segments: segs, Stats: stats}
	}
	u.d.Logger.Info("subtitle timings written", "path", in.OutputPath, "segments", len(segs))
	return Outcome{
		Status:     StatusSuccess,
		Message:    fmt.Sprintf("%d segments", len(segs)),
		OutputPath: in.OutputPath,
		Segments:   segs,
		Stats:      stats,
	}
}

func (u Usecase) finalize(ctx context.Context, in Input, silent string, stats Stats) Outcome {
	log := u.d.Logger
	if u.d.Prober != nil {
		hasAudio, err := u.d.Prober.HasAudio(ctx, in.InputPath)
		if err != nil {
			log.Warn("audio probe failed, remuxing anyway", "error", err)
		} else if !hasAudio {
			if err := os.Rename(silent, in.OutputPath); err != nil {
				return Outcome{Status: StatusError, Message: err.Error(), Err: err, SilentPath: silent, Stats: stats}
			}
			return Outcome{Status: StatusSuccess, Message: "source has no audio", OutputPath: in.OutputPath, Stats: stats}
		}
	}

	if err := u.d.Remuxer.Remux(ctx, silent, in.InputPath, in.OutputPath); err != nil {
		// ffmpeg may have left a truncated file behind
		removeTemp(in.OutputPath)
		log.Error("remux failed, silent video kept", "path", silent, "error", err)
		return Outcome{
			Status:     StatusError,
			Message:    "remux failed; processed video kept without audio",
			Err:        err,
			SilentPath: silent,
			Stats:      stats,
		}
	}

	out := Outcome{Status: StatusSuccess, Message: "done", OutputPath: in.OutputPath, Stats: stats}
	if in.KeepTemp {
		out.SilentPath = silent
	} else {
		removeTemp(silent)
	}
	return out
}

func failed(err error) Outcome {
	return Outcome{Status: StatusError, Message: err.Error(), Err: err}
}

func collectStats(res coordinator.Result, appliers []coordinator.RegionApplier) Stats {
	s := Stats{FramesRead: res.FramesRead, FramesWritten: res.FramesWritten, RegionFailures: res.RegionFailures}
	for _, a := range appliers {
		if ia, ok := a.(*coordinator.InpaintApplier); ok {
			h, m := ia.CacheStats()
			s.CacheHits += h
			s.CacheMisses += m
			s.MaskedPixels += ia.MaskedPixels()
		}
	}
	return s
}

func closeAppliers(appliers []coordinator.RegionApplier) {
	for _, a := range appliers {
		if ia, ok := a.(*coordinator.InpaintApplier); ok {
			ia.Close()
		}
	}
}

// silentPath places the intermediate video next to out: clip.mp4 -> clip.<id>.silent.mp4.
func silentPath(out, id string) string {
	ext := filepath.Ext(out)
	return strings.TrimSuffix(out, ext) + "." + id + ".silent" + ext
}

func removeTemp(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

func writeFile(path string, b []byte) error {
	return os.WriteFile(path, b, 0o644)
}
