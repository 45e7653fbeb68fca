package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/irtrack/internal/httputil"
)

// WriteHTML renders an interactive page with the per-axis trajectory and a
// top-down (x, z) scatter of the center.
func WriteHTML(w io.Writer, title string, samples []Sample) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}

	x := make([]string, 0, len(samples))
	for _, s := range samples {
		x = append(x, strconv.FormatUint(s.Index, 10))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("frames=%d", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Center (m)", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x)
	for i, name := range axisNames {
		data := make([]opts.LineData, 0, len(samples))
		for _, s := range samples {
			data = append(data, opts.LineData{Value: axis(s, i)})
		}
		line.AddSeries(name, data)
	}

	top := make([]opts.ScatterData, 0, len(samples))
	for _, s := range samples {
		top = append(top, opts.ScatterData{Value: []interface{}{s.Center.X, s.Center.Z, s.Index}})
	}
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "600px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Top-down path", Subtitle: "x against z"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Z (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("center", top, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(line, scatter)
	return page.Render(w)
}

// Handler serves the HTML report for the first limit logged frames of src.
// Query parameters: session (default all), limit (default 2000).
func Handler(src FrameSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireGET(w, r) {
			return
		}
		limit, err := httputil.QueryInt(r, "limit", 2000)
		if err == nil && limit <= 0 {
			err = errors.New("limit must be positive")
		}
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		session := r.URL.Query().Get("session")
		samples, err := LoadSamples(r.Context(), src, session, limit)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		title := "Rig trajectory"
		if session != "" {
			title += " " + session
		}
		var buf bytes.Buffer
		if err := WriteHTML(&buf, title, samples); err != nil {
			if errors.Is(err, ErrNoSamples) {
				httputil.NotFound(w, err.Error())
				return
			}
			httputil.InternalServerError(w, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	})
}
