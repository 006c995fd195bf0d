// Package framecache keeps the last inpainted patch of a region and reuses it
// while incoming frames stay visually unchanged.
package framecache

import (
	"gocv.io/x/gocv"
)

// Scorer compares a fresh patch with a cached one, returning a value in [0,1].
type Scorer interface {
	Score(current, cached gocv.Mat) float64
}

type Thresholds struct {
	// Accept is the score above which a cached result is always reused.
	Accept float64
	// Gated is the lower score accepted when the frame is not a forced refresh.
	Gated float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Accept: 0.80, Gated: 0.65}
}

type entry struct {
	inpainted gocv.Mat
	mask      gocv.Mat
}

// Cache is a single-entry cache owned by one region. It is not safe for
// concurrent use; the processor stage is its only user.
type Cache struct {
	scorer Scorer
	th     Thresholds
	cur    *entry

	hits, misses int
}

func New(scorer Scorer, th Thresholds) *Cache {
	return &Cache{scorer: scorer, th: th}
}

// Lookup scores patch against the cached result. On a hit it returns a copy
// of the cached inpainted patch that the caller owns; on a miss the returned
// Mat is the zero value and must not be used.
func (c *Cache) Lookup(patch gocv.Mat, forced bool) (gocv.Mat, float64, bool) {
	if c.cur == nil {
		c.misses++
		return gocv.Mat{}, 0, false
	}
	score := c.scorer.Score(patch, c.cur.inpainted)
	if score > c.th.Accept || (!forced && score > c.th.Gated) {
		c.hits++
		return c.cur.inpainted.Clone(), score, true
	}
	c.misses++
	return gocv.Mat{}, score, false
}

// Store replaces the cached entry with copies of inpainted and mask.
func (c *Cache) Store(inpainted, mask gocv.Mat) {
	c.release()
	c.cur = &entry{inpainted: inpainted.Clone(), mask: mask.Clone()}
}

func (c *Cache) Empty() bool { return c.cur == nil }

func (c *Cache) Stats() (hits, misses int) { return c.hits, c.misses }

func (c *Cache) Close() { c.release() }

func (c *Cache) release() {
	if c.cur == nil {
		return
	}
	c.cur.inpainted.Close()
	c.cur.mask.Close()
	c.cur = nil
}
