package coordinator

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/forPelevin/textwipe/internal/domain/autosub"
	"github.com/forPelevin/textwipe/internal/domain/textmask"
	"github.com/forPelevin/textwipe/internal/ports"
	"github.com/forPelevin/textwipe/internal/types"
)

var frameSize = image.Pt(160, 80)

// memSource yields frames drawn by draw; n < 0 never runs out.
type memSource struct {
	n     int
	draw  func(i int, m *gocv.Mat)
	reads atomic.Int64
}

func (s *memSource) Read(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	i := int(s.reads.Load())
	if s.n >= 0 && i >= s.n {
		return types.Frame{}, ports.ErrSourceExhausted
	}
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), frameSize.Y, frameSize.X, gocv.MatTypeCV8UC3)
	if s.draw != nil {
		s.draw(i, &m)
	}
	s.reads.Add(1)
	return types.Frame{Index: i, Mat: m}, nil
}

func (s *memSource) FrameCount() int   { return s.n }
func (s *memSource) FPS() float64      { return 25 }
func (s *memSource) Size() image.Point { return frameSize }
func (s *memSource) Codec() string     { return "" }
func (s *memSource) Close() error      { return nil }

type memSink struct {
	mu      sync.Mutex
	indices []int
	pixels  []uint8
	block   chan struct{}
}

func (s *memSink) Write(f types.Frame) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices = append(s.indices, f.Index)
	s.pixels = append(s.pixels, f.Mat.GetUCharAt(40, 3*80))
	return nil
}

func (s *memSink) Close() error { return nil }

func (s *memSink) written() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.indices...)
}

// fillApplier paints the patch white, failing or panicking on chosen frames.
type fillApplier struct {
	failOn  map[int]bool
	panicOn map[int]bool
	calls   atomic.Int64
}

func (a *fillApplier) ApplyToPatch(frame int, patch *gocv.Mat) (string, error) {
	a.calls.Add(1)
	if a.panicOn[frame] {
		panic("boom")
	}
	if a.failOn[frame] {
		return "", errors.New("inpaint failed")
	}
	patch.SetTo(gocv.NewScalar(255, 255, 255, 0))
	return "filled", nil
}

var wholeFrame = types.Region{X1: 40, X2: 120, Y1: 20, Y2: 60}

func newCoordinator(t *testing.T, src ports.FrameSource, sink ports.FrameSink, cfg Config) *Coordinator {
	t.Helper()
	c, err := New(src, sink, cfg)
	require.NoError(t, err)
	return c
}

func TestRun_PreservesOrderAndAppliesRegions(t *testing.T) {
	src := &memSource{n: 40}
	sink := &memSink{}
	var progress []float64
	c := newCoordinator(t, src, sink, Config{
		Regions:   []types.Region{wholeFrame},
		Appliers:  []RegionApplier{&fillApplier{}},
		QueueSize: 3,
		Hooks:     Hooks{OnProgress: func(p float64) { progress = append(progress, p) }},
	})

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, res.FramesRead)
	assert.Equal(t, 40, res.FramesWritten)
	assert.Equal(t, 39, res.LastFrame)
	assert.Zero(t, res.RegionFailures)

	got := sink.written()
	for i, idx := range got {
		if idx != i {
			t.Fatalf("frame %d written at position %d", idx, i)
		}
	}
	for i, px := range sink.pixels {
		if px != 255 {
			t.Fatalf("frame %d: pixel = %d, want 255", i, px)
		}
	}
	require.NotEmpty(t, progress)
	assert.Equal(t, 100.0, progress[len(progress)-1])
}

func TestRun_RegionFailureKeepsOriginalPixels(t *testing.T) {
	src := &memSource{n: 10}
	sink := &memSink{}
	app := &fillApplier{failOn: map[int]bool{3: true}, panicOn: map[int]bool{6: true}}
	c := newCoordinator(t, src, sink, Config{
		Regions:  []types.Region{wholeFrame},
		Appliers: []RegionApplier{app},
	})

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, res.FramesWritten)
	assert.Equal(t, 2, res.RegionFailures)
	assert.Equal(t, uint8(0), sink.pixels[3])
	assert.Equal(t, uint8(0), sink.pixels[6])
	assert.Equal(t, uint8(255), sink.pixels[5])
}

func TestRun_TimeTableGatesRegions(t *testing.T) {
	tt := types.NewTimeTable(1, 10)
	tt.Mark(0, 2, 4, "")
	app := &fillApplier{}
	sink := &memSink{}
	c := newCoordinator(t, &memSource{n: 10}, sink, Config{
		Regions:   []types.Region{wholeFrame},
		Appliers:  []RegionApplier{app},
		TimeTable: tt,
	})

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, app.calls.Load())
	assert.Equal(t, []uint8{0, 0, 255, 255, 255, 0, 0, 0, 0, 0}, sink.pixels)
}

func TestRun_CancelStopsPromptly(t *testing.T) {
	src := &memSource{n: -1}
	sink := &memSink{}
	c := newCoordinator(t, src, sink, Config{
		Regions:  []types.Region{wholeFrame},
		Appliers: []RegionApplier{&fillApplier{}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return len(sink.written()) >= 5 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestRun_BoundedQueues(t *testing.T) {
	src := &memSource{n: -1}
	sink := &memSink{block: make(chan struct{})}
	c := newCoordinator(t, src, sink, Config{
		Regions:   []types.Region{wholeFrame},
		Appliers:  []RegionApplier{&fillApplier{}},
		QueueSize: 2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, _ = c.Run(ctx)
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	// two queues of two, plus one frame held by each stage
	assert.LessOrEqual(t, src.reads.Load(), int64(7))

	cancel()
	close(sink.block)
	<-done
}

func TestRun_ReadErrorAborts(t *testing.T) {
	c := newCoordinator(t, &errSource{memSource: memSource{n: 10}}, &memSink{}, Config{
		Regions:  []types.Region{wholeFrame},
		Appliers: []RegionApplier{&fillApplier{}},
	})
	_, err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoder broke")
}

func TestRun_ReadErrorMidStreamIsNotCompletion(t *testing.T) {
	var (
		mu       sync.Mutex
		progress []float64
	)
	fin := &finishRecorder{}
	c := newCoordinator(t, &errSource{memSource: memSource{n: 10}, failAt: 3}, &memSink{}, Config{
		Regions:  []types.Region{wholeFrame},
		Appliers: []RegionApplier{fin},
		Hooks: Hooks{OnProgress: func(p float64) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		}},
	})

	res, err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoder broke")
	assert.LessOrEqual(t, res.FramesWritten, 3)
	assert.False(t, fin.finished.Load(), "open state must not be closed as if the source ended")

	mu.Lock()
	defer mu.Unlock()
	for _, p := range progress {
		if p >= 100 {
			t.Fatalf("failed run published progress %v", progress)
		}
	}
}

func TestRun_CompletedRunFinishesAppliers(t *testing.T) {
	fin := &finishRecorder{}
	c := newCoordinator(t, &memSource{n: 5}, &memSink{}, Config{
		Regions:  []types.Region{wholeFrame},
		Appliers: []RegionApplier{fin},
	})
	_, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, fin.finished.Load())
	assert.Equal(t, int64(4), fin.last.Load())
}

// errSource yields failAt good frames and then fails.
type errSource struct {
	memSource
	failAt int
}

func (s *errSource) Read(ctx context.Context) (types.Frame, error) {
	if int(s.reads.Load()) >= s.failAt {
		return types.Frame{}, errors.New("decoder broke")
	}
	return s.memSource.Read(ctx)
}

type finishRecorder struct {
	fillApplier
	finished atomic.Bool
	last     atomic.Int64
}

func (a *finishRecorder) Finish(lastFrame int) {
	a.finished.Store(true)
	a.last.Store(int64(lastFrame))
}

func TestNew_ApplierCountMismatch(t *testing.T) {
	_, err := New(&memSource{}, &memSink{}, Config{Regions: []types.Region{wholeFrame}})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRun_PreviewSampling(t *testing.T) {
	var sampled []int
	c := newCoordinator(t, &memSource{n: 10}, &memSink{}, Config{
		Regions:      []types.Region{wholeFrame},
		Appliers:     []RegionApplier{&fillApplier{}},
		PreviewEvery: 4,
		Hooks: Hooks{OnPreview: func(index int, in, out gocv.Mat) {
			if in.GetUCharAt(40, 3*80) != 0 || out.GetUCharAt(40, 3*80) != 255 {
				t.Errorf("frame %d: preview pair does not show the edit", index)
			}
			sampled = append(sampled, index)
		}},
	})
	_, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4, 8}, sampled)
}

// Subtitle box at (50,32)-(80,46) inside the tracked region.
var subRegion = types.Region{X1: 30, X2: 130, Y1: 20, Y2: 60}

func drawSubtitle(visibleUntil int) func(int, *gocv.Mat) {
	return func(i int, m *gocv.Mat) {
		if i < visibleUntil {
			gocv.Rectangle(m, image.Rect(50, 32, 80, 46), color.RGBA{255, 255, 255, 0}, -1)
		}
	}
}

func runAutoSub(t *testing.T, src *memSource) []types.Segment {
	t.Helper()
	appliers, err := BuildAppliers([]types.Region{subRegion}, nil, ApplierOptions{
		Mode:    types.ModeAutoSub,
		Mask:    textmask.Defaults(),
		AutoSub: autosub.DefaultOptions(),
	})
	require.NoError(t, err)

	var notes int
	c := newCoordinator(t, src, &memSink{}, Config{
		Regions:  []types.Region{subRegion},
		Appliers: appliers,
		Hooks:    Hooks{OnAnnotation: func(int, int, string) { notes++ }},
	})
	res, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.RegionFailures)
	assert.Equal(t, src.n, notes)
	return appliers[0].(*AutoSubApplier).Segments()
}

func TestAutoSub_StaticSubtitle(t *testing.T) {
	segs := runAutoSub(t, &memSource{n: 30, draw: drawSubtitle(30)})
	assert.Equal(t, []types.Segment{{SentenceID: 1, StartFrame: 0, EndFrame: 29}}, segs)
}

func TestAutoSub_SubtitleVanishes(t *testing.T) {
	segs := runAutoSub(t, &memSource{n: 30, draw: drawSubtitle(15)})
	assert.Equal(t, []types.Segment{{SentenceID: 1, StartFrame: 0, EndFrame: 14}}, segs)
}

// maskRecorder copies the patch and records the mask size of every call.
type maskRecorder struct {
	sizes map[int]int
	frame int
}

func (m *maskRecorder) Inpaint(patch, mask gocv.Mat) (gocv.Mat, int, error) {
	n := gocv.CountNonZero(mask)
	m.sizes[m.frame] = n
	m.frame++
	return patch.Clone(), n, nil
}

func (m *maskRecorder) Close() error { return nil }

func TestRun_FadingFramesWidenMask(t *testing.T) {
	tt := types.NewTimeTable(1, 6)
	tt.Mark(0, 0, 2, "sub")
	tt.Mark(0, 3, 5, "sub"+types.FadeoutSuffix)

	rec := &maskRecorder{sizes: map[int]int{}}
	appliers, err := BuildAppliers([]types.Region{subRegion}, rec, ApplierOptions{
		Mode: types.ModeInpaintTelea,
		Mask: textmask.Defaults(),
	})
	require.NoError(t, err)

	c := newCoordinator(t, &memSource{n: 6, draw: drawSubtitle(6)}, &memSink{}, Config{
		Regions:   []types.Region{subRegion},
		Appliers:  appliers,
		TimeTable: tt,
	})
	_, err = c.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.sizes, 6)
	require.Positive(t, rec.sizes[0])
	assert.Equal(t, rec.sizes[0], rec.sizes[2])
	assert.Greater(t, rec.sizes[3], rec.sizes[2])
	assert.Equal(t, rec.sizes[3], rec.sizes[5])
}

func TestBuildAppliers_Configuration(t *testing.T) {
	two := []types.Region{subRegion, wholeFrame}
	_, err := BuildAppliers(two, nil, ApplierOptions{Mode: types.ModeAutoSub})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = BuildAppliers(nil, nil, ApplierOptions{Mode: types.ModeInpaintTelea})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = BuildAppliers(two, nil, ApplierOptions{Mode: types.ModeInpaintTelea})
	assert.ErrorIs(t, err, ErrConfiguration)
}
