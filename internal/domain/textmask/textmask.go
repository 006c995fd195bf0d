// Package textmask derives a binary mask of burned-in text pixels for one
// region patch using gradient and luma heuristics.
package textmask

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/forPelevin/textwipe/internal/types"
)

// Params tunes mask generation. Zero value is usable but Defaults is what
// production runs start from.
type Params struct {
	Color        types.ColorMode
	DilateRadius int
	XOffset      int
	YOffset      int
	AreaMin      float64
	AreaMax      float64 // 0 disables the upper bound
}

func Defaults() Params {
	return Params{XOffset: -2, YOffset: -2, AreaMin: 20, AreaMax: 5000}
}

const (
	guardGlyphs = "ABCDEFGHIJKLM"
	glyphPitch  = 30
	colorGrow   = 10
)

var (
	white   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	nearHi  = color.RGBA{R: 250, G: 250, B: 250, A: 255}
	nearLow = color.RGBA{R: 5, G: 5, B: 5, A: 255}
)

// Build returns a CV_8UC1 mask the size of patch with 255 on text pixels.
// The caller owns the returned Mat. An empty patch yields an empty Mat.
func Build(patch gocv.Mat, p Params) gocv.Mat {
	if patch.Empty() || patch.Rows() == 0 || patch.Cols() == 0 {
		return gocv.NewMat()
	}
	width := patch.Cols()

	combined := edgeGuard(patch, p.Color)
	defer combined.Close()

	structural, darkText := structuralMask(combined, p)
	defer structural.Close()

	if darkText {
		gocv.BitwiseNot(combined, &combined)
	}
	masked := gocv.NewMat()
	defer masked.Close()
	gocv.BitwiseAndWithMask(combined, combined, &masked, structural)

	lumaMask := colorMask(masked, p)
	defer lumaMask.Close()

	both := gocv.NewMat()
	defer both.Close()
	gocv.BitwiseAnd(structural, lumaMask, &both)

	view := both.Region(image.Rect(0, 0, width, both.Rows()))
	defer view.Close()
	return view.Clone()
}

// edgeGuard mirrors the patch onto its right side so text touching the right
// edge still yields closed contours. In Binary mode reference glyphs are
// stamped on the mirror so Otsu always sees both extremes.
func edgeGuard(patch gocv.Mat, mode types.ColorMode) gocv.Mat {
	src := toBGR(patch)
	defer src.Close()

	mirrored := gocv.NewMat()
	defer mirrored.Close()
	gocv.Flip(src, &mirrored, 1)

	combined := gocv.NewMat()
	gocv.Hconcat(src, mirrored, &combined)

	if mode == types.Binary {
		width := src.Cols()
		for i, ch := range guardGlyphs {
			for j, c := range []color.RGBA{nearHi, nearLow} {
				org := image.Pt(width+(i+1)*glyphPitch, glyphPitch*(j+1))
				gocv.PutTextWithParams(&combined, string(ch), org, gocv.FontHersheySimplex, 1, c, 10, gocv.LineAA, false)
			}
		}
	}
	return combined
}

func toBGR(m gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	switch m.Channels() {
	case 1:
		gocv.CvtColor(m, &out, gocv.ColorGrayToBGR)
	case 4:
		gocv.CvtColor(m, &out, gocv.ColorBGRAToBGR)
	default:
		m.CopyTo(&out)
	}
	return out
}

func structuralMask(img gocv.Mat, p Params) (gocv.Mat, bool) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(3, 3), 0, 0, gocv.BorderDefault)

	gx, gy := gocv.NewMat(), gocv.NewMat()
	defer gx.Close()
	defer gy.Close()
	gocv.Sobel(blurred, &gx, gocv.MatTypeCV64F, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(blurred, &gy, gocv.MatTypeCV64F, 0, 1, 3, 1, 0, gocv.BorderDefault)
	ax, ay := gocv.NewMat(), gocv.NewMat()
	defer ax.Close()
	defer ay.Close()
	gocv.ConvertScaleAbs(gx, &ax, 1, 0)
	gocv.ConvertScaleAbs(gy, &ay, 1, 0)

	gradient := gocv.NewMat()
	defer gradient.Close()
	gocv.AddWeighted(ax, 0.5, ay, 0.5, 0, &gradient)

	mask := fillContours(gradient, p, 0)

	darkText := false
	if gocv.CountNonZero(mask) > 0 {
		under := gray.MeanWithMask(mask).Val1
		overall := gray.Mean().Val1
		darkText = under < overall
	}
	return mask, darkText
}

func colorMask(img gocv.Mat, p Params) gocv.Mat {
	ycrcb := gocv.NewMat()
	defer ycrcb.Close()
	gocv.CvtColor(img, &ycrcb, gocv.ColorBGRToYCrCb)

	channels := gocv.Split(ycrcb)
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()
	return fillContours(channels[0], p, colorGrow)
}

// fillContours binarizes src with Otsu, cleans it up, fills the external
// contours within the area bounds, dilates and shifts the result.
func fillContours(src gocv.Mat, p Params, grow int) gocv.Mat {
	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(src, &binary, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)

	small := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(2, 2))
	defer small.Close()
	morph := gocv.NewMat()
	defer morph.Close()
	gocv.MorphologyEx(binary, &morph, gocv.MorphClose, small)
	gocv.MorphologyEx(morph, &morph, gocv.MorphOpen, small)

	contours := gocv.FindContours(morph, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	filled := Zeros(src.Rows(), src.Cols(), gocv.MatTypeCV8UC1)
	defer filled.Close()
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area < p.AreaMin || (p.AreaMax > 0 && area > p.AreaMax) {
			continue
		}
		gocv.DrawContours(&filled, contours, i, white, -1)
	}

	k := max(p.DilateRadius, 0)*2 + 1 + grow
	dilated := gocv.NewMat()
	defer dilated.Close()
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(k, k))
	defer kernel.Close()
	gocv.Dilate(filled, &dilated, kernel)

	return Shift(dilated, p.XOffset, p.YOffset)
}

// Shift translates mask by (dx, dy); pixels moved out are dropped and the
// uncovered band is zero.
func Shift(mask gocv.Mat, dx, dy int) gocv.Mat {
	out := Zeros(mask.Rows(), mask.Cols(), mask.Type())
	w, h := mask.Cols(), mask.Rows()
	if abs(dx) >= w || abs(dy) >= h {
		return out
	}
	srcRect := image.Rect(max(0, -dx), max(0, -dy), w-max(0, dx), h-max(0, dy))
	dstRect := srcRect.Add(image.Pt(dx, dy))
	from := mask.Region(srcRect)
	defer from.Close()
	to := out.Region(dstRect)
	defer to.Close()
	from.CopyTo(&to)
	return out
}

// ExpandRight grows every on pixel of mask rightward by n pixels.
func ExpandRight(mask gocv.Mat, n int) gocv.Mat {
	out := gocv.NewMat()
	if n <= 0 {
		mask.CopyTo(&out)
		return out
	}
	kernel := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 0, 0, 0), 1, n+1, gocv.MatTypeCV8UC1)
	defer kernel.Close()
	gocv.DilateWithParams(mask, &out, kernel, image.Pt(n, 0), 1, gocv.BorderConstant, color.RGBA{})
	return out
}

// Count returns the number of mask pixels.
func Count(mask gocv.Mat) int {
	if mask.Empty() {
		return 0
	}
	return gocv.CountNonZero(mask)
}

// Zeros allocates a zero-filled Mat.
func Zeros(rows, cols int, mt gocv.MatType) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, mt)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
