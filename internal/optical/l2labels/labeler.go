package l2labels

import (
	"errors"
	"fmt"

	"github.com/banshee-data/irtrack/internal/optical/l1frames"
)

// Label identifies a connected foreground region. Zero is background.
type Label uint8

const (
	// Background marks pixels that belong to no component.
	Background Label = 0
	// MaxLabel is the largest label a single frame can allocate.
	MaxLabel Label = 254
)

// ErrLabelOverflow is returned when a frame needs more than MaxLabel
// provisional labels. All partial results are discarded.
var ErrLabelOverflow = errors.New("label space exhausted")

// Thresholds select foreground pixels and the minimum component size.
type Thresholds struct {
	MinDepth   uint16 // inclusive, millimetres
	MaxDepth   uint16 // inclusive, millimetres
	MinIR      uint16 // inclusive
	MaxIR      uint16 // inclusive
	CutoffArea int    // components with area <= CutoffArea are dropped
}

// DefaultThresholds returns the thresholds used for retro-reflective markers
// on the 512x512 depth sensor.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinDepth:   40,
		MaxDepth:   3000,
		MinIR:      750,
		MaxIR:      9000,
		CutoffArea: 6,
	}
}

// Foreground reports whether a pixel is inside both the depth and IR bands.
func (th Thresholds) Foreground(depth, ir uint16) bool {
	return depth >= th.MinDepth && depth <= th.MaxDepth && ir >= th.MinIR && ir <= th.MaxIR
}

// Component is one surviving connected region. Pixels holds row-major flat
// indices and is only valid until the next call to Label.
type Component struct {
	Label  Label
	Pixels []int
}

// Area is the number of pixels in the component.
func (c Component) Area() int { return len(c.Pixels) }

// Labeler performs single-pass 8-connected labeling into buffers allocated
// once at construction. A Labeler is not safe for concurrent use.
type Labeler struct {
	th Thresholds

	labels  []Label
	parent  [int(MaxLabel) + 1]Label // 0 means the label is a root
	alive   [int(MaxLabel) + 1]bool
	members [int(MaxLabel) + 1][]int
	active  []Label // live labels in creation order
	out     []Component

	next   int
	region Region
}

// NewLabeler allocates a labeler for full-size frames.
func NewLabeler(th Thresholds) *Labeler {
	l := &Labeler{
		th:     th,
		labels: make([]Label, l1frames.PixelCount),
		active: make([]Label, 0, int(MaxLabel)),
		out:    make([]Component, 0, int(MaxLabel)),
	}
	for i := range l.members {
		l.members[i] = make([]int, 0, 64)
	}
	l.reset()
	return l
}

// Thresholds returns the labeler's current thresholds.
func (l *Labeler) Thresholds() Thresholds { return l.th }

// SetThresholds replaces the thresholds used by subsequent passes.
func (l *Labeler) SetThresholds(th Thresholds) { l.th = th }

// LabelMap returns the per-pixel labels of the last pass. After a successful
// pass only surviving components carry non-zero labels. The slice is owned by
// the labeler and must not be modified.
func (l *Labeler) LabelMap() []Label { return l.labels }

// Components returns the surviving components of the last pass.
func (l *Labeler) Components() []Component { return l.out }

// Region returns the scan window of the last pass.
func (l *Labeler) Region() Region { return l.region }

// LabelsUsed is the number of provisional labels the last pass allocated.
func (l *Labeler) LabelsUsed() int { return l.next - 1 }

// Label segments one frame within roi. The returned components are valid
// until the next call.
func (l *Labeler) Label(depth, ir []uint16, roi Region) ([]Component, error) {
	if len(depth) != l1frames.PixelCount || len(ir) != l1frames.PixelCount {
		return nil, fmt.Errorf("%w: depth=%d ir=%d samples", l1frames.ErrFrameSize, len(depth), len(ir))
	}
	l.reset()
	l.region = roi.Clamp()
	if err := l.scan(depth, ir); err != nil {
		l.reset()
		return nil, err
	}
	l.resolveEquivalences()
	l.prune()
	for _, lbl := range l.active {
		l.out = append(l.out, Component{Label: lbl, Pixels: l.members[lbl]})
	}
	return l.out, nil
}

func (l *Labeler) reset() {
	clear(l.labels)
	for i := range l.members {
		l.members[i] = l.members[i][:0]
		l.parent[i] = 0
		l.alive[i] = false
	}
	l.active = l.active[:0]
	l.out = l.out[:0]
	l.next = 1
}

func (l *Labeler) scan(depth, ir []uint16) error {
	const w = l1frames.Width
	r := l.region
	for row := r.RowStart; row < r.RowEnd; row++ {
		var left Label
		i := row*w + r.ColStart
		for col := r.ColStart; col < r.ColEnd; col, i = col+1, i+1 {
			if !l.th.Foreground(depth[i], ir[i]) {
				left = Background
				continue
			}
			neighbours := [4]Label{left, l.labels[i-w-1], l.labels[i-w], l.labels[i-w+1]}
			best := Background
			for _, n := range neighbours {
				if n != Background && (best == Background || n < best) {
					best = n
				}
			}
			if best == Background {
				if l.next > int(MaxLabel) {
					return fmt.Errorf("%w: more than %d regions at row %d", ErrLabelOverflow, MaxLabel, row)
				}
				best = Label(l.next)
				l.next++
				l.alive[best] = true
				l.active = append(l.active, best)
			} else {
				for _, n := range neighbours {
					if n != Background && n != best {
						l.union(n, best)
					}
				}
			}
			l.labels[i] = best
			l.members[best] = append(l.members[best], i)
			left = best
		}
	}
	return nil
}

// find follows parent links to the root. Links always point to a smaller
// label, so the walk terminates.
func (l *Labeler) find(x Label) Label {
	for l.parent[x] != Background {
		x = l.parent[x]
	}
	return x
}

func (l *Labeler) union(a, b Label) {
	ra, rb := l.find(a), l.find(b)
	switch {
	case ra == rb:
	case ra < rb:
		l.parent[rb] = ra
	default:
		l.parent[ra] = rb
	}
}

// resolveEquivalences moves every subsumed label's pixels onto its root and
// retires the label. Running it again is a no-op.
func (l *Labeler) resolveEquivalences() {
	for i := 1; i < l.next; i++ {
		lbl := Label(i)
		if l.parent[lbl] == Background {
			continue
		}
		root := l.find(lbl)
		l.parent[lbl] = root
		if len(l.members[lbl]) > 0 {
			l.members[root] = append(l.members[root], l.members[lbl]...)
			l.members[lbl] = l.members[lbl][:0]
		}
		l.alive[lbl] = false
	}
	kept := l.active[:0]
	for _, lbl := range l.active {
		if l.alive[lbl] {
			kept = append(kept, lbl)
		}
	}
	l.active = kept
}

// prune drops components at or below the cutoff area and rewrites the label
// map so surviving pixels carry their root label.
func (l *Labeler) prune() {
	kept := l.active[:0]
	for _, lbl := range l.active {
		px := l.members[lbl]
		if len(px) <= l.th.CutoffArea {
			for _, i := range px {
				l.labels[i] = Background
			}
			l.members[lbl] = px[:0]
			l.alive[lbl] = false
			continue
		}
		for _, i := range px {
			l.labels[i] = lbl
		}
		kept = append(kept, lbl)
	}
	l.active = kept
}
