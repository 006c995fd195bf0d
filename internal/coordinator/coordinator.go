// Package coordinator runs the read, process and write stages of a job over
// bounded queues.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/textwipe/internal/ports"
	"github.com/forPelevin/textwipe/internal/types"
)

const DefaultQueueSize = 15

// Hooks receive run events. Every field is optional. Hooks are invoked from
// the stage goroutines and must not block for long; Mats passed to OnPreview
// are only valid during the call.
type Hooks struct {
	OnProgress   func(percent float64)
	OnPreview    func(index int, input, output gocv.Mat)
	OnAnnotation func(region, frame int, text string)
}

type Config struct {
	Regions   []types.Region
	Appliers  []RegionApplier
	TimeTable *types.TimeTable
	// QueueSize bounds each of the two inter-stage queues.
	QueueSize int
	// PreviewEvery samples every Nth frame for OnPreview; 0 disables sampling.
	PreviewEvery int
	Hooks        Hooks
	Logger       *slog.Logger
}

type Result struct {
	FramesRead    int
	FramesWritten int
	// RegionFailures counts (region, frame) pairs that kept their original pixels.
	RegionFailures int
	LastFrame      int
}

type Coordinator struct {
	src     ports.FrameSource
	sink    ports.FrameSink
	cfg     Config
	regions []types.Region
	log     *slog.Logger

	read, written, failures, last int
	// exhausted is set by the reader only when the source ran out.
	exhausted atomic.Bool
}

func New(src ports.FrameSource, sink ports.FrameSink, cfg Config) (*Coordinator, error) {
	if len(cfg.Appliers) != len(cfg.Regions) {
		return nil, fmt.Errorf("%w: %d appliers for %d regions", ErrConfiguration, len(cfg.Appliers), len(cfg.Regions))
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	size := src.Size()
	regions := make([]types.Region, len(cfg.Regions))
	for i, r := range cfg.Regions {
		regions[i] = r.Clamp(size.X, size.Y)
		if regions[i].Empty() {
			log.Warn("region outside frame, skipping", "region", r.String(), "width", size.X, "height", size.Y)
		}
	}
	return &Coordinator{src: src, sink: sink, cfg: cfg, regions: regions, log: log, last: -1}, nil
}

// Run blocks until the source is exhausted, a stage fails or ctx is done.
// A cancelled run returns the context error.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	decoded := make(chan types.Frame, c.cfg.QueueSize)
	processed := make(chan types.Frame, c.cfg.QueueSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx, decoded) })
	g.Go(func() error { return c.processLoop(gctx, decoded, processed) })
	g.Go(func() error { return c.writeLoop(gctx, processed) })
	err := g.Wait()

	// stages close their outputs on exit; release whatever was in flight
	for f := range decoded {
		f.Close()
	}
	for f := range processed {
		f.Close()
	}

	res := Result{FramesRead: c.read, FramesWritten: c.written, RegionFailures: c.failures, LastFrame: c.last}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return res, err
}

func (c *Coordinator) readLoop(ctx context.Context, out chan<- types.Frame) error {
	defer close(out)
	for {
		f, err := c.src.Read(ctx)
		if errors.Is(err, ports.ErrSourceExhausted) {
			c.log.Debug("source exhausted", "frames", c.read)
			c.exhausted.Store(true)
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame %d: %w", c.read, err)
		}
		select {
		case out <- f:
			c.read++
		case <-ctx.Done():
			f.Close()
			return ctx.Err()
		}
	}
}

func (c *Coordinator) processLoop(ctx context.Context, in <-chan types.Frame, out chan<- types.Frame) error {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-in:
			if !ok {
				if c.completed(ctx) {
					c.finish()
				}
				return nil
			}
			if err := ctx.Err(); err != nil {
				f.Close()
				return err
			}
			c.process(f)
			c.last = f.Index
			select {
			case out <- f:
			case <-ctx.Done():
				f.Close()
				return ctx.Err()
			}
		}
	}
}

func (c *Coordinator) process(f types.Frame) {
	every := c.cfg.PreviewEvery
	sample := every > 0 && f.Index%every == 0 && c.cfg.Hooks.OnPreview != nil
	var input gocv.Mat
	if sample {
		input = f.Mat.Clone()
		defer input.Close()
	}

	for i, r := range c.regions {
		if r.Empty() || !c.cfg.TimeTable.Active(i, f.Index) {
			continue
		}
		if fa, ok := c.cfg.Appliers[i].(FadeAware); ok {
			fa.SetFading(c.cfg.TimeTable.Fading(i, f.Index))
		}
		note, err := c.applyRegion(i, r, f)
		if err != nil {
			c.failures++
			c.log.Warn("region processing failed, keeping original pixels",
				"frame", f.Index, "region", r.String(), "error", err)
			continue
		}
		if h := c.cfg.Hooks.OnAnnotation; h != nil {
			h(i, f.Index, note)
		}
	}

	if sample {
		c.cfg.Hooks.OnPreview(f.Index, input, f.Mat)
	}
}

func (c *Coordinator) applyRegion(i int, r types.Region, f types.Frame) (note string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	patch := f.Mat.Region(r.Rect())
	defer patch.Close()
	return c.cfg.Appliers[i].ApplyToPatch(f.Index, &patch)
}

// completed reports whether a closed queue means the whole source went
// through, as opposed to an upstream failure or cancellation.
func (c *Coordinator) completed(ctx context.Context) bool {
	return c.exhausted.Load() && ctx.Err() == nil
}

func (c *Coordinator) finish() {
	if c.last < 0 {
		return
	}
	for _, a := range c.cfg.Appliers {
		if fin, ok := a.(Finisher); ok {
			fin.Finish(c.last)
		}
	}
}

func (c *Coordinator) writeLoop(ctx context.Context, in <-chan types.Frame) error {
	total := c.src.FrameCount()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-in:
			if !ok {
				if c.completed(ctx) {
					c.progress(100)
				}
				return nil
			}
			if err := ctx.Err(); err != nil {
				f.Close()
				return err
			}
			if f.Index != c.written {
				f.Close()
				return fmt.Errorf("write: got frame %d, want %d", f.Index, c.written)
			}
			err := c.sink.Write(f)
			f.Close()
			if err != nil {
				return err
			}
			c.written++
			if total > 0 {
				c.progress(min(100, float64(c.written)*100/float64(total)))
			}
		}
	}
}

func (c *Coordinator) progress(p float64) {
	if h := c.cfg.Hooks.OnProgress; h != nil {
		h(p)
	}
}
