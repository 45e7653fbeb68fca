package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var axisColors = [3]color.RGBA{
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
}

// NewTrajectoryPlot builds the center-vs-frame plot. Frames completed from
// three markers are marked with rings on each axis line.
func NewTrajectoryPlot(title string, samples []Sample) (*plot.Plot, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Center (m)"
	p.Add(plotter.NewGrid())

	for i, name := range axisNames {
		pts := make(plotter.XYs, 0, len(samples))
		var recovered plotter.XYs
		for _, s := range samples {
			xy := plotter.XY{X: float64(s.Index), Y: axis(s, i)}
			pts = append(pts, xy)
			if s.Recovered {
				recovered = append(recovered, xy)
			}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = axisColors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(name, line)

		if len(recovered) > 0 {
			sc, err := plotter.NewScatter(recovered)
			if err != nil {
				return nil, err
			}
			sc.GlyphStyle.Color = axisColors[i]
			sc.GlyphStyle.Shape = draw.RingGlyph{}
			sc.GlyphStyle.Radius = vg.Points(3)
			p.Add(sc)
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SavePNG renders the trajectory plot to path. The extension picks the
// format, so .svg and .pdf work too.
func SavePNG(path, title string, samples []Sample) error {
	p, err := NewTrajectoryPlot(title, samples)
	if err != nil {
		return err
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save trajectory plot: %w", err)
	}
	return nil
}
