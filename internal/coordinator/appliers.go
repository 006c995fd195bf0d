package coordinator

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/forPelevin/textwipe/internal/domain/autosub"
	"github.com/forPelevin/textwipe/internal/domain/framecache"
	"github.com/forPelevin/textwipe/internal/domain/inpaint"
	"github.com/forPelevin/textwipe/internal/domain/similarity"
	"github.com/forPelevin/textwipe/internal/domain/textmask"
	"github.com/forPelevin/textwipe/internal/types"
)

// ErrConfiguration marks run settings rejected before any frame is read.
var ErrConfiguration = errors.New("configuration error")

// RegionApplier handles one region across the frames of a run. ApplyToPatch
// may rewrite patch in place and returns a per-frame annotation. On error
// the patch must be left as it was.
type RegionApplier interface {
	ApplyToPatch(frame int, patch *gocv.Mat) (string, error)
}

// FadeAware appliers are told, before each frame, whether the timetable marks
// the region's text as fading out.
type FadeAware interface {
	SetFading(bool)
}

// Finisher is implemented by appliers that hold state open across frames.
type Finisher interface {
	Finish(lastFrame int)
}

type ApplierOptions struct {
	Mode       types.Mode
	Mask       textmask.Params
	Similarity similarity.Options
	Thresholds framecache.Thresholds
	// Lookback and NearDistance configure forced refresh detection.
	Lookback     int
	NearDistance int
	AutoSub      autosub.Options
	// CacheDisabled sends cache eligible modes straight to the inpainter.
	CacheDisabled bool
}

// BuildAppliers binds one applier per region for the run mode. inp is shared
// by every region and is only used from the processor goroutine.
func BuildAppliers(regions []types.Region, inp inpaint.Inpainter, opts ApplierOptions) ([]RegionApplier, error) {
	if len(regions) == 0 {
		return nil, fmt.Errorf("%w: no regions", ErrConfiguration)
	}
	if opts.Mode == types.ModeAutoSub {
		if len(regions) != 1 {
			return nil, fmt.Errorf("%w: autosub needs exactly one region, got %d", ErrConfiguration, len(regions))
		}
		mp := opts.Mask
		mp.Color = regions[0].Color
		return []RegionApplier{NewAutoSubApplier(mp, autosub.NewTracker(opts.AutoSub))}, nil
	}
	if inp == nil {
		return nil, fmt.Errorf("%w: mode %s needs an inpainter", ErrConfiguration, opts.Mode)
	}

	out := make([]RegionApplier, 0, len(regions))
	for _, r := range regions {
		mp := opts.Mask
		mp.Color = r.Color
		a := &InpaintApplier{mask: mp, fadeMask: fadeParams(mp), inpainter: inp}
		if opts.Mode.CacheEligible() && !opts.CacheDisabled {
			sim := opts.Similarity
			sim.Mask = mp
			a.cache = framecache.New(similarity.New(sim), opts.Thresholds)
			a.refresh = framecache.NewRefreshDetector(opts.Lookback, opts.NearDistance)
		}
		out = append(out, a)
	}
	return out, nil
}

// fadeParams widens the mask for fading text, whose half transparent strokes
// spread wider and break into smaller contours.
func fadeParams(p textmask.Params) textmask.Params {
	p.DilateRadius += 2
	p.AreaMin /= 2
	return p
}

// InpaintApplier removes text from its region, reusing the cached result
// when the region looks unchanged.
type InpaintApplier struct {
	mask      textmask.Params
	fadeMask  textmask.Params
	inpainter inpaint.Inpainter
	cache     *framecache.Cache
	refresh   *framecache.RefreshDetector

	fading bool
	masked int
}

func (a *InpaintApplier) SetFading(fading bool) { a.fading = fading }

// ApplyToPatch skips the cache on fading frames: the text changes every frame
// and a cached patch would bring it back.
func (a *InpaintApplier) ApplyToPatch(frame int, patch *gocv.Mat) (string, error) {
	if a.cache != nil {
		forced, err := a.refresh.Observe(*patch)
		if err != nil {
			return "", fmt.Errorf("refresh check: %w", err)
		}
		if !a.fading {
			if hit, _, ok := a.cache.Lookup(*patch, forced); ok {
				defer hit.Close()
				hit.CopyTo(patch)
				return "", nil
			}
		}
	}

	params := a.mask
	if a.fading {
		params = a.fadeMask
	}
	mask := textmask.Build(*patch, params)
	defer mask.Close()
	out, n, err := a.inpainter.Inpaint(*patch, mask)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if a.cache != nil && !a.fading {
		a.cache.Store(out, mask)
	}
	a.masked += n
	out.CopyTo(patch)
	return "", nil
}

// CacheStats reports cache hits and misses; both are zero for uncached modes.
func (a *InpaintApplier) CacheStats() (hits, misses int) {
	if a.cache == nil {
		return 0, 0
	}
	return a.cache.Stats()
}

// MaskedPixels is the total mask size handed to the inpainter.
func (a *InpaintApplier) MaskedPixels() int { return a.masked }

func (a *InpaintApplier) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
}

// AutoSubApplier feeds the region's text mask into a Tracker. Pixels are
// left untouched.
type AutoSubApplier struct {
	mask    textmask.Params
	tracker *autosub.Tracker
}

func NewAutoSubApplier(mask textmask.Params, tracker *autosub.Tracker) *AutoSubApplier {
	return &AutoSubApplier{mask: mask, tracker: tracker}
}

func (a *AutoSubApplier) ApplyToPatch(frame int, patch *gocv.Mat) (string, error) {
	mask := textmask.Build(*patch, a.mask)
	defer mask.Close()
	removed, added, err := a.tracker.Observe(frame, mask)
	if err != nil {
		return "", err
	}
	return autosub.Annotation(removed, added), nil
}

func (a *AutoSubApplier) Finish(lastFrame int) { a.tracker.Finish(lastFrame) }

func (a *AutoSubApplier) Segments() []types.Segment { return a.tracker.Segments() }
