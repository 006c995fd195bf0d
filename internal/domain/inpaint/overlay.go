package inpaint

import (
	"gocv.io/x/gocv"
)

// Overlay tints masked pixels red instead of removing them, so mask tuning
// can be checked on real footage.
type Overlay struct {
	alpha float64
}

func NewOverlay() *Overlay { return &Overlay{alpha: 0.5} }

func (o *Overlay) Inpaint(patch, mask gocv.Mat) (gocv.Mat, int, error) {
	n, err := check(patch, mask)
	if err != nil {
		return gocv.Mat{}, 0, err
	}
	out := patch.Clone()
	if n == 0 {
		return out, 0, nil
	}

	red := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 255, 0), patch.Rows(), patch.Cols(), patch.Type())
	defer red.Close()
	blended := gocv.NewMat()
	defer blended.Close()
	gocv.AddWeighted(patch, 1-o.alpha, red, o.alpha, 0, &blended)
	blended.CopyToWithMask(&out, mask)
	return out, n, nil
}

func (o *Overlay) Close() error { return nil }
