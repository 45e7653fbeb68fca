// Package report renders rig trajectories from the detection log: center
// position per axis against frame index, as a PNG (gonum/plot) or an
// interactive HTML page (go-echarts).
package report

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/irtrack/internal/optical/l4pose"
	"github.com/banshee-data/irtrack/internal/optical/storage/sqlite"
)

// ErrNoSamples is returned when there is nothing to plot.
var ErrNoSamples = errors.New("no valid detections to plot")

// Sample is one plotted frame.
type Sample struct {
	Index     uint64
	Center    r3.Vec
	Phase     l4pose.Phase
	Recovered bool // one marker was extrapolated
}

// FrameSource reads the detection log.
type FrameSource interface {
	Frames(ctx context.Context, sessionID string, limit int) ([]sqlite.FrameRecord, error)
}

// SamplesFromRecords keeps the frames that carry a valid detection.
func SamplesFromRecords(recs []sqlite.FrameRecord) []Sample {
	out := make([]Sample, 0, len(recs))
	for _, r := range recs {
		if !r.Valid || r.Disabled {
			continue
		}
		out = append(out, Sample{
			Index:     r.Index,
			Center:    r.Center,
			Phase:     r.Phase,
			Recovered: r.RecoveredSlot != "",
		})
	}
	return out
}

// LoadSamples reads up to limit frames of sessionID from src.
func LoadSamples(ctx context.Context, src FrameSource, sessionID string, limit int) ([]Sample, error) {
	recs, err := src.Frames(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("load frames: %w", err)
	}
	return SamplesFromRecords(recs), nil
}

func axis(s Sample, i int) float64 {
	switch i {
	case 0:
		return s.Center.X
	case 1:
		return s.Center.Y
	default:
		return s.Center.Z
	}
}

var axisNames = [3]string{"x", "y", "z"}
