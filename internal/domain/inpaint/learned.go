package inpaint

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Learned runs a LaMa style ONNX model taking an RGB image in [0,1] and a
// binary mask, both resized to a fixed square input whose side is a multiple
// of 8, and producing RGB in [0,255]. Only masked pixels of the model output
// are written back.
type Learned struct {
	mu   sync.Mutex
	net  gocv.Net
	size int
}

func NewLearned(modelPath string, size int) (*Learned, error) {
	if size <= 0 {
		size = 512
	}
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("inpaint: load model %s", modelPath)
	}
	return &Learned{net: net, size: padToModulo(size, 8)}, nil
}

// padToModulo rounds n up to the next multiple of mod.
func padToModulo(n, mod int) int {
	if r := n % mod; r != 0 {
		return n + mod - r
	}
	return n
}

func (l *Learned) Inpaint(patch, mask gocv.Mat) (gocv.Mat, int, error) {
	n, err := check(patch, mask)
	if err != nil {
		return gocv.Mat{}, 0, err
	}
	if n == 0 {
		return patch.Clone(), 0, nil
	}
	side := image.Pt(l.size, l.size)

	imgBlob := gocv.BlobFromImage(patch, 1.0/255, side, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer imgBlob.Close()

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(mask, &small, side, 0, 0, gocv.InterpolationNearestNeighbor)
	gocv.Threshold(small, &small, 0, 255, gocv.ThresholdBinary)
	maskBlob := gocv.BlobFromImage(small, 1.0/255, side, gocv.NewScalar(0, 0, 0, 0), false, false)
	defer maskBlob.Close()

	l.mu.Lock()
	l.net.SetInput(imgBlob, "image")
	l.net.SetInput(maskBlob, "mask")
	pred := l.net.Forward("")
	l.mu.Unlock()
	defer pred.Close()
	if pred.Empty() {
		return gocv.Mat{}, 0, fmt.Errorf("inpaint: model returned no output")
	}

	// model output is planar RGB; Merge wants BGR order
	planes := make([]gocv.Mat, 3)
	for c := 0; c < 3; c++ {
		planes[2-c] = gocv.GetBlobChannel(pred, 0, c)
	}
	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(planes, &merged)
	for _, p := range planes {
		p.Close()
	}

	bytes := gocv.NewMat()
	defer bytes.Close()
	merged.ConvertTo(&bytes, gocv.MatTypeCV8UC3)

	full := gocv.NewMat()
	defer full.Close()
	gocv.Resize(bytes, &full, image.Pt(patch.Cols(), patch.Rows()), 0, 0, gocv.InterpolationLinear)

	out := patch.Clone()
	full.CopyToWithMask(&out, mask)
	return out, n, nil
}

func (l *Learned) Close() error { return l.net.Close() }
