// Package similarity scores how alike two region patches are once their text
// pixels are ignored.
package similarity

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/forPelevin/textwipe/internal/domain/textmask"
)

const (
	ssimC1 = (0.01 * 255) * (0.01 * 255)
	ssimC2 = (0.03 * 255) * (0.03 * 255)
)

type Options struct {
	Mask textmask.Params
	// RevealMargin extends the text mask rightward so a sentence growing by a
	// few characters is still compared against the same background.
	RevealMargin int
	// LumaPenalty scales the mean-brightness difference subtracted from the score.
	LumaPenalty float64
}

func DefaultOptions() Options {
	return Options{Mask: textmask.Defaults(), RevealMargin: 40, LumaPenalty: 0.5}
}

type Scorer struct {
	opts Options
}

func New(opts Options) *Scorer {
	return &Scorer{opts: opts}
}

// Score returns a value in [0,1]; 1 means indistinguishable outside the text
// mask of a. Patches of different shape score 0.
func (s *Scorer) Score(a, b gocv.Mat) float64 {
	if a.Empty() || b.Empty() || a.Rows() != b.Rows() || a.Cols() != b.Cols() || a.Type() != b.Type() {
		return 0
	}

	mask := textmask.Build(a, s.opts.Mask)
	defer mask.Close()
	grown := textmask.ExpandRight(mask, s.opts.RevealMargin)
	defer grown.Close()
	keep := gocv.NewMat()
	defer keep.Close()
	gocv.BitwiseNot(grown, &keep)

	ga := maskedGray(a, keep)
	defer ga.Close()
	gb := maskedGray(b, keep)
	defer gb.Close()

	score := SSIM(ga, gb)
	if s.opts.LumaPenalty > 0 {
		delta := ga.Mean().Val1 - gb.Mean().Val1
		if delta < 0 {
			delta = -delta
		}
		score *= 1 - s.opts.LumaPenalty*delta/255
	}
	return clamp01(score)
}

func maskedGray(src, keep gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	if src.Channels() == 1 {
		src.CopyTo(&gray)
	} else {
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	}
	out := textmask.Zeros(gray.Rows(), gray.Cols(), gray.Type())
	gray.CopyToWithMask(&out, keep)
	gray.Close()
	return out
}

// SSIM computes the mean structural similarity of two single-channel 8-bit
// images of equal size with an 11x11 Gaussian window.
func SSIM(a, b gocv.Mat) float64 {
	x, y := gocv.NewMat(), gocv.NewMat()
	defer x.Close()
	defer y.Close()
	a.ConvertTo(&x, gocv.MatTypeCV32F)
	b.ConvertTo(&y, gocv.MatTypeCV32F)

	blur := func(src gocv.Mat) gocv.Mat {
		dst := gocv.NewMat()
		gocv.GaussianBlur(src, &dst, image.Pt(11, 11), 1.5, 1.5, gocv.BorderReflect)
		return dst
	}
	mul := func(p, q gocv.Mat) gocv.Mat {
		dst := gocv.NewMat()
		gocv.Multiply(p, q, &dst)
		return dst
	}

	muX, muY := blur(x), blur(y)
	defer muX.Close()
	defer muY.Close()
	muXX, muYY, muXY := mul(muX, muX), mul(muY, muY), mul(muX, muY)
	defer muXX.Close()
	defer muYY.Close()
	defer muXY.Close()

	xx, yy, xy := mul(x, x), mul(y, y), mul(x, y)
	defer xx.Close()
	defer yy.Close()
	defer xy.Close()
	sXX, sYY, sXY := blur(xx), blur(yy), blur(xy)
	defer sXX.Close()
	defer sYY.Close()
	defer sXY.Close()
	gocv.Subtract(sXX, muXX, &sXX)
	gocv.Subtract(sYY, muYY, &sYY)
	gocv.Subtract(sXY, muXY, &sXY)

	// numerator: (2*muXY + C1) * (2*sXY + C2)
	n1, n2 := gocv.NewMat(), gocv.NewMat()
	defer n1.Close()
	defer n2.Close()
	gocv.Add(muXY, muXY, &n1)
	n1.AddFloat(ssimC1)
	gocv.Add(sXY, sXY, &n2)
	n2.AddFloat(ssimC2)
	num := mul(n1, n2)
	defer num.Close()

	// denominator: (muXX + muYY + C1) * (sXX + sYY + C2)
	d1, d2 := gocv.NewMat(), gocv.NewMat()
	defer d1.Close()
	defer d2.Close()
	gocv.Add(muXX, muYY, &d1)
	d1.AddFloat(ssimC1)
	gocv.Add(sXX, sYY, &d2)
	d2.AddFloat(ssimC2)
	den := mul(d1, d2)
	defer den.Close()

	ratio := gocv.NewMat()
	defer ratio.Close()
	gocv.Divide(num, den, &ratio)
	return ratio.Mean().Val1
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
