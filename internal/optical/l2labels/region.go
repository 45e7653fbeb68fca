package l2labels

import (
	"math"

	"github.com/banshee-data/irtrack/internal/optical/l1frames"
)

// Margin keeps the scan far enough from the image border that the north-west,
// north and north-east neighbours of every scanned pixel exist.
const Margin = 2

// DefaultHintMargin is how far, in pixels, a hint region extends past the
// previous marker positions on every side.
const DefaultHintMargin = 64

// Region is a rectangular scan window. Starts are inclusive, ends exclusive.
type Region struct {
	RowStart int
	RowEnd   int
	ColStart int
	ColEnd   int
}

// FullFrame returns the whole image minus the interior margin.
func FullFrame() Region {
	return Region{
		RowStart: Margin,
		RowEnd:   l1frames.Height - Margin,
		ColStart: Margin,
		ColEnd:   l1frames.Width - Margin,
	}
}

// HintRegion returns the bounding box of points expanded by margin on every
// side and clamped to the interior. With no points it returns FullFrame.
func HintRegion(points []l1frames.ImagePoint, margin int) Region {
	if len(points) == 0 {
		return FullFrame()
	}
	r := Region{RowStart: math.MaxInt, RowEnd: math.MinInt, ColStart: math.MaxInt, ColEnd: math.MinInt}
	for _, p := range points {
		row, col := int(p.Row), int(p.Col)
		r.RowStart = min(r.RowStart, row)
		r.RowEnd = max(r.RowEnd, row)
		r.ColStart = min(r.ColStart, col)
		r.ColEnd = max(r.ColEnd, col)
	}
	r.RowStart -= margin
	r.RowEnd += margin
	r.ColStart -= margin
	r.ColEnd += margin
	return r.Clamp()
}

// Clamp restricts r to the interior of the image.
func (r Region) Clamp() Region {
	full := FullFrame()
	r.RowStart = max(r.RowStart, full.RowStart)
	r.RowEnd = min(r.RowEnd, full.RowEnd)
	r.ColStart = max(r.ColStart, full.ColStart)
	r.ColEnd = min(r.ColEnd, full.ColEnd)
	return r
}

// Empty reports whether the region contains no pixels.
func (r Region) Empty() bool {
	return r.RowEnd <= r.RowStart || r.ColEnd <= r.ColStart
}

// Area is the number of pixels in the region.
func (r Region) Area() int {
	if r.Empty() {
		return 0
	}
	return (r.RowEnd - r.RowStart) * (r.ColEnd - r.ColStart)
}

// Contains reports whether pixel (row, col) lies inside the region.
func (r Region) Contains(row, col int) bool {
	return row >= r.RowStart && row < r.RowEnd && col >= r.ColStart && col < r.ColEnd
}
