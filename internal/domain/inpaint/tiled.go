package inpaint

import (
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// Tiled splits large patches into overlapping tiles and inpaints them in
// parallel. Each tile writes back only its core, the overlap gives the
// algorithm context across tile seams.
type Tiled struct {
	size, overlap, workers int
	radius                 float32
}

func NewTiled(size, overlap, workers int, radius float64) *Tiled {
	if size <= 0 {
		size = 64
	}
	if overlap < 0 {
		overlap = 0
	}
	if workers <= 0 {
		workers = 1
	}
	if radius <= 0 {
		radius = 3
	}
	return &Tiled{size: size, overlap: overlap, workers: workers, radius: float32(radius)}
}

func (t *Tiled) Inpaint(patch, mask gocv.Mat) (gocv.Mat, int, error) {
	n, err := check(patch, mask)
	if err != nil {
		return gocv.Mat{}, 0, err
	}
	out := patch.Clone()
	if n == 0 {
		return out, 0, nil
	}

	var g errgroup.Group
	g.SetLimit(t.workers)
	for _, core := range t.tiles(patch.Cols(), patch.Rows()) {
		g.Go(func() error {
			t.inpaintTile(patch, mask, &out, core)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		out.Close()
		return gocv.Mat{}, 0, err
	}
	return out, n, nil
}

func (t *Tiled) tiles(w, h int) []image.Rectangle {
	var rects []image.Rectangle
	for y := 0; y < h; y += t.size {
		for x := 0; x < w; x += t.size {
			rects = append(rects, image.Rect(x, y, min(x+t.size, w), min(y+t.size, h)))
		}
	}
	return rects
}

func (t *Tiled) inpaintTile(patch, mask gocv.Mat, out *gocv.Mat, core image.Rectangle) {
	bounds := image.Rect(0, 0, patch.Cols(), patch.Rows())
	ext := image.Rect(core.Min.X-t.overlap, core.Min.Y-t.overlap, core.Max.X+t.overlap, core.Max.Y+t.overlap).Intersect(bounds)

	maskTile := mask.Region(ext)
	defer maskTile.Close()
	if gocv.CountNonZero(maskTile) == 0 {
		return
	}
	src := patch.Region(ext)
	defer src.Close()

	filled := gocv.NewMat()
	defer filled.Close()
	gocv.Inpaint(src, maskTile, &filled, t.radius, gocv.Telea)

	inner := filled.Region(core.Sub(ext.Min))
	defer inner.Close()
	dst := out.Region(core)
	defer dst.Close()
	inner.CopyTo(&dst)
}

func (t *Tiled) Close() error { return nil }
