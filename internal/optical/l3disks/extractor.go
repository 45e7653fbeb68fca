package l3disks

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/irtrack/internal/optical/l1frames"
	"github.com/banshee-data/irtrack/internal/optical/l2labels"
	"github.com/banshee-data/irtrack/internal/optical/posemath"
)

// ExtractorConfig controls how labeled regions become disks.
type ExtractorConfig struct {
	// DepthRadiusMin and DepthRadiusMax bound MeanDepth*Radius for a
	// physically plausible marker (exclusive).
	DepthRadiusMin float64
	DepthRadiusMax float64
	// UseWorldSpace transforms centroids and normals by the frame's
	// camera-to-world matrix.
	UseWorldSpace bool
	// EstimateNormals fits a plane to each disk's points. When off every
	// disk reports posemath.DefaultNormal.
	EstimateNormals bool
}

// DefaultExtractorConfig returns the reference plausibility band with world
// space and normal estimation enabled.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		DepthRadiusMin:  1500,
		DepthRadiusMax:  3300,
		UseWorldSpace:   true,
		EstimateNormals: true,
	}
}

// Proper reports whether depthRadius lies inside the plausibility band.
func (c ExtractorConfig) Proper(depthRadius float64) bool {
	return depthRadius > c.DepthRadiusMin && depthRadius < c.DepthRadiusMax
}

// Extractor converts labeled components into disks. The output slice is
// reused between calls. An Extractor is not safe for concurrent use.
type Extractor struct {
	cfg ExtractorConfig
	lut posemath.LUT
	cov posemath.Covariance
	out []Disk
}

// NewExtractor returns an extractor for full-size frames. lut must cover
// every pixel of the frame.
func NewExtractor(cfg ExtractorConfig, lut posemath.LUT) (*Extractor, error) {
	if lut.Len() != l1frames.PixelCount {
		return nil, fmt.Errorf("lookup table has %d rays, want %d", lut.Len(), l1frames.PixelCount)
	}
	return &Extractor{
		cfg: cfg,
		lut: lut,
		out: make([]Disk, 0, int(l2labels.MaxLabel)),
	}, nil
}

// Config returns the extractor's configuration.
func (e *Extractor) Config() ExtractorConfig { return e.cfg }

// SetConfig replaces the configuration used by subsequent calls.
func (e *Extractor) SetConfig(cfg ExtractorConfig) { e.cfg = cfg }

// Extract produces one disk per component. camToWorld is applied only when
// world space is enabled. The result is valid until the next call.
func (e *Extractor) Extract(comps []l2labels.Component, depth []uint16, camToWorld posemath.Mat4) []Disk {
	e.out = e.out[:0]
	for _, c := range comps {
		if len(c.Pixels) == 0 {
			continue
		}
		e.out = append(e.out, e.disk(len(e.out), c.Pixels, depth, camToWorld))
	}
	return e.out
}

func (e *Extractor) disk(index int, pixels []int, depth []uint16, camToWorld posemath.Mat4) Disk {
	e.cov.Reset()
	var rowSum, colSum, depthSum float64
	for _, p := range pixels {
		rowSum += float64(p / l1frames.Width)
		colSum += float64(p % l1frames.Width)
		depthSum += float64(depth[p])
		e.cov.Add(e.lut.Unproject(p, depth[p]))
	}

	n := float64(len(pixels))
	d := Disk{
		Index:     index,
		Area:      len(pixels),
		Radius:    RadiusFromArea(len(pixels)),
		MeanDepth: depthSum / n,
		ImageCentroid: l1frames.ImagePoint{
			Row: rowSum / n,
			Col: colSum / n,
		},
		CameraCentroid: e.cov.Mean(),
		Normal:         posemath.DefaultNormal,
	}
	d.WorldCentroid = d.CameraCentroid
	d.IsProper = e.cfg.Proper(d.DepthRadius())

	if e.cfg.EstimateNormals {
		if normal, ok := e.cov.Normal(r3.Vec{}); ok {
			d.Normal = normal
		}
	}
	if e.cfg.UseWorldSpace {
		d.WorldCentroid = camToWorld.Apply(d.CameraCentroid)
		if normal, ok := posemath.Normalize(camToWorld.ApplyDirection(d.Normal)); ok {
			d.Normal = normal
		}
	}
	return d
}
