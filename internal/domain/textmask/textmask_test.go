package textmask

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/forPelevin/textwipe/internal/types"
)

func patchWithBox(bg, fg color.RGBA, box image.Rectangle) gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(bg.B), float64(bg.G), float64(bg.R), 0), 40, 100, gocv.MatTypeCV8UC3)
	if !box.Empty() {
		gocv.Rectangle(&m, box, fg, -1)
	}
	return m
}

var (
	black = color.RGBA{A: 255}
	box   = image.Rect(20, 12, 50, 26)
)

func TestBuild_BlankPatchYieldsEmptyMask(t *testing.T) {
	for _, mode := range []types.ColorMode{types.Binary, types.Gray} {
		patch := patchWithBox(black, white, image.Rectangle{})
		mask := Build(patch, Params{Color: mode, XOffset: -2, YOffset: -2, AreaMin: 20, AreaMax: 5000})

		assert.Equal(t, patch.Rows(), mask.Rows(), mode.String())
		assert.Equal(t, patch.Cols(), mask.Cols(), mode.String())
		assert.Equal(t, 0, Count(mask), mode.String())
		mask.Close()
		patch.Close()
	}
}

func TestBuild_LightTextOnDark(t *testing.T) {
	patch := patchWithBox(black, white, box)
	defer patch.Close()

	mask := Build(patch, Defaults())
	defer mask.Close()

	require.Equal(t, gocv.MatTypeCV8UC1, mask.Type())
	require.Equal(t, 40, mask.Rows())
	require.Equal(t, 100, mask.Cols())
	assert.Greater(t, Count(mask), 0)
	assert.Equal(t, uint8(255), mask.GetUCharAt(19, 34), "box center must be masked")
	assert.Equal(t, uint8(0), mask.GetUCharAt(2, 95), "far corner must stay clear")
}

func TestBuild_DarkTextOnLight(t *testing.T) {
	patch := patchWithBox(white, black, box)
	defer patch.Close()

	mask := Build(patch, Defaults())
	defer mask.Close()

	assert.Greater(t, Count(mask), 0)
	assert.Equal(t, uint8(0), mask.GetUCharAt(2, 95))
}

func TestBuild_Deterministic(t *testing.T) {
	patch := patchWithBox(black, white, box)
	defer patch.Close()

	a := Build(patch, Defaults())
	defer a.Close()
	b := Build(patch, Defaults())
	defer b.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.BitwiseXor(a, b, &diff)
	assert.Equal(t, 0, gocv.CountNonZero(diff))
}

func TestBuild_EmptyPatch(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	mask := Build(empty, Defaults())
	defer mask.Close()
	assert.True(t, mask.Empty())
	assert.Equal(t, 0, Count(mask))
}

func TestShift(t *testing.T) {
	m := Zeros(10, 10, gocv.MatTypeCV8UC1)
	defer m.Close()
	m.SetUCharAt(5, 5, 255)

	left := Shift(m, -2, -2)
	defer left.Close()
	assert.Equal(t, uint8(255), left.GetUCharAt(3, 3))
	assert.Equal(t, 1, Count(left))

	right := Shift(m, 3, 1)
	defer right.Close()
	assert.Equal(t, uint8(255), right.GetUCharAt(6, 8))

	gone := Shift(m, 10, 0)
	defer gone.Close()
	assert.Equal(t, 0, Count(gone))
}

func TestExpandRight(t *testing.T) {
	m := Zeros(3, 10, gocv.MatTypeCV8UC1)
	defer m.Close()
	m.SetUCharAt(1, 2, 255)

	out := ExpandRight(m, 4)
	defer out.Close()
	assert.Equal(t, 5, Count(out))
	for c := 2; c <= 6; c++ {
		assert.Equal(t, uint8(255), out.GetUCharAt(1, c), "col %d", c)
	}
	assert.Equal(t, uint8(0), out.GetUCharAt(1, 1))
	assert.Equal(t, uint8(0), out.GetUCharAt(1, 7))
}
