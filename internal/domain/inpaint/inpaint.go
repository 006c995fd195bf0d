// Package inpaint fills masked text pixels of a region patch. Every strategy
// satisfies Inpainter and is chosen once per run by New.
package inpaint

import (
	"errors"
	"fmt"
	"runtime"

	"gocv.io/x/gocv"

	"github.com/forPelevin/textwipe/internal/types"
)

var (
	ErrShape   = errors.New("inpaint: patch and mask shapes differ")
	ErrNoModel = errors.New("inpaint: learned mode requires a model path")
)

// Inpainter returns a new patch with masked pixels synthesized from their
// surroundings, plus the number of masked pixels. The input patch is never
// modified. A mask without set pixels yields an unchanged copy.
type Inpainter interface {
	Inpaint(patch, mask gocv.Mat) (gocv.Mat, int, error)
	Close() error
}

type Options struct {
	Radius      float64
	TileSize    int
	TileOverlap int
	TileWorkers int
	ModelPath   string
	ModelSize   int
}

func DefaultOptions() Options {
	return Options{
		Radius:      3,
		TileSize:    64,
		TileOverlap: 16,
		TileWorkers: runtime.NumCPU(),
		ModelSize:   512,
	}
}

// New binds the strategy for mode.
func New(mode types.Mode, opts Options) (Inpainter, error) {
	switch mode {
	case types.ModeInpaintTelea:
		return NewStructural(gocv.Telea, opts.Radius), nil
	case types.ModeInpaintNS:
		return NewStructural(gocv.NS, max(opts.Radius, 7)), nil
	case types.ModeInpaintTiled:
		return NewTiled(opts.TileSize, opts.TileOverlap, opts.TileWorkers, opts.Radius), nil
	case types.ModeInpaintLearned:
		if opts.ModelPath == "" {
			return nil, ErrNoModel
		}
		return NewLearned(opts.ModelPath, opts.ModelSize)
	case types.ModeVisualize:
		return NewOverlay(), nil
	}
	return nil, fmt.Errorf("inpaint: mode %s has no inpainter", mode)
}

func check(patch, mask gocv.Mat) (int, error) {
	if patch.Empty() || mask.Empty() {
		return 0, fmt.Errorf("%w: empty input", ErrShape)
	}
	if patch.Rows() != mask.Rows() || patch.Cols() != mask.Cols() {
		return 0, fmt.Errorf("%w: patch %dx%d, mask %dx%d", ErrShape, patch.Cols(), patch.Rows(), mask.Cols(), mask.Rows())
	}
	if mask.Channels() != 1 {
		return 0, fmt.Errorf("%w: mask has %d channels", ErrShape, mask.Channels())
	}
	return gocv.CountNonZero(mask), nil
}

// Structural wraps OpenCV's diffusion based inpainting (Telea or Navier-Stokes).
type Structural struct {
	method gocv.InpaintMethods
	radius float32
}

func NewStructural(method gocv.InpaintMethods, radius float64) *Structural {
	if radius <= 0 {
		radius = 3
	}
	return &Structural{method: method, radius: float32(radius)}
}

func (s *Structural) Inpaint(patch, mask gocv.Mat) (gocv.Mat, int, error) {
	n, err := check(patch, mask)
	if err != nil {
		return gocv.Mat{}, 0, err
	}
	if n == 0 {
		return patch.Clone(), 0, nil
	}
	out := gocv.NewMat()
	gocv.Inpaint(patch, mask, &out, s.radius, s.method)
	return out, n, nil
}

func (s *Structural) Close() error { return nil }
