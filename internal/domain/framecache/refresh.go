package framecache

import (
	"fmt"

	"github.com/corona10/goimagehash"
	"gocv.io/x/gocv"
)

// RefreshDetector flags frames where a static background suddenly changes,
// e.g. a new subtitle line replacing an old one of the same length. On those
// frames the cache only accepts near-perfect matches.
type RefreshDetector struct {
	lookback     int
	nearDistance int
	hashes       []*goimagehash.ImageHash
}

func NewRefreshDetector(lookback, nearDistance int) *RefreshDetector {
	if lookback < 1 {
		lookback = 1
	}
	return &RefreshDetector{lookback: lookback, nearDistance: nearDistance}
}

// Observe records the raw patch of the next frame and reports whether that
// frame is a forced refresh: the previous frame matches the one lookback
// frames earlier while the current frame departs from the previous one.
func (d *RefreshDetector) Observe(patch gocv.Mat) (bool, error) {
	img, err := patch.ToImage()
	if err != nil {
		return false, fmt.Errorf("patch to image: %w", err)
	}
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return false, fmt.Errorf("perception hash: %w", err)
	}

	d.hashes = append(d.hashes, h)
	if len(d.hashes) > d.lookback+1 {
		d.hashes = d.hashes[1:]
	}
	if len(d.hashes) < d.lookback+1 {
		return false, nil
	}

	cur := d.hashes[len(d.hashes)-1]
	prev := d.hashes[len(d.hashes)-2]
	old := d.hashes[0]
	if !d.near(prev, old) {
		return false, nil
	}
	return !d.near(cur, prev), nil
}

func (d *RefreshDetector) near(a, b *goimagehash.ImageHash) bool {
	dist, err := a.Distance(b)
	if err != nil {
		return false
	}
	return dist <= d.nearDistance
}
