package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Figure file names inside the figures directory.
const (
	DailyMeanFigure         = "daily_intensity_mean.png"
	LevelDistributionFigure = "intensity_level_distribution.png"
	FactorsFigure           = "factors_by_fuel.png"
	DashboardFile           = "dashboard.html"
)

var seriesColor = drawing.Color{R: 51, G: 102, B: 204, A: 255}

func renderPNG(path string, r interface {
	Render(rp chart.RendererProvider, w io.Writer) error
}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := r.Render(chart.PNG, f); err != nil {
		f.Close()
		return fmt.Errorf("failed to render %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// paddedRange widens a range around v; go-chart refuses to draw a zero-width range.
func paddedRange(v, pad float64) *chart.ContinuousRange {
	return &chart.ContinuousRange{Min: v - pad, Max: v + pad}
}

func writeDailyMeanChart(dir string, points []dailyPoint) (string, error) {
	xs := make([]time.Time, len(points))
	ys := make([]float64, len(points))
	lo, hi := points[0].Mean, points[0].Mean
	for i, p := range points {
		xs[i], ys[i] = p.Date, p.Mean
		lo, hi = min(lo, p.Mean), max(hi, p.Mean)
	}

	graph := chart.Chart{
		Title:      "Daily mean carbon intensity",
		TitleStyle: chart.Style{FontSize: 14},
		Width:      1000,
		Height:     400,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20}},
		XAxis: chart.XAxis{
			Name:           "date",
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "gCO2/kWh",
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "intensity_mean",
				Style:   chart.Style{StrokeColor: seriesColor, StrokeWidth: 2, DotColor: seriesColor, DotWidth: 3},
				XValues: xs,
				YValues: ys,
			},
		},
	}
	if lo == hi {
		graph.YAxis.Range = paddedRange(lo, 1)
	}
	if len(xs) == 1 {
		graph.XAxis.Range = paddedRange(chart.TimeToFloat64(xs[0]), float64(24*time.Hour))
	}

	path := filepath.Join(dir, DailyMeanFigure)
	return path, renderPNG(path, graph)
}

func writeLevelDistributionChart(dir string, counts []labelCount) (string, error) {
	bars := make([]chart.Value, len(counts))
	top := 0.0
	for i, c := range counts {
		top = max(top, float64(c.Count))
		bars[i] = chart.Value{Label: c.Label, Value: float64(c.Count), Style: chart.Style{FillColor: seriesColor, StrokeColor: seriesColor}}
	}
	graph := chart.BarChart{
		Title:      "Intensity level distribution",
		TitleStyle: chart.Style{FontSize: 14},
		Width:      700,
		Height:     400,
		BarWidth:   60,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20}},
		XAxis:      chart.Style{FontSize: 10},
		YAxis:      chart.YAxis{Name: "intervals", Range: &chart.ContinuousRange{Min: 0, Max: top}},
		Bars:       bars,
	}

	path := filepath.Join(dir, LevelDistributionFigure)
	return path, renderPNG(path, graph)
}

func writeFactorsChart(dir string, fuels []fuelValue) (string, error) {
	// Stacked bars scale by their own total, so zero factors cannot be drawn.
	bars := make([]chart.StackedBar, 0, len(fuels))
	for _, fv := range fuels {
		if fv.Value <= 0 {
			continue
		}
		bars = append(bars, chart.StackedBar{
			Name:  fv.Fuel,
			Width: 24,
			Values: []chart.Value{
				{Label: fmt.Sprintf("%g", fv.Value), Value: fv.Value, Style: chart.Style{FillColor: seriesColor, StrokeColor: seriesColor}},
			},
		})
	}
	graph := chart.StackedBarChart{
		Title:        "Emission factors by fuel (gCO2/kWh)",
		TitleStyle:   chart.Style{FontSize: 14},
		Width:        800,
		Height:       100 + 40*len(bars),
		IsHorizontal: true,
		Background:   chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20}},
		Bars:         bars,
	}

	path := filepath.Join(dir, FactorsFigure)
	return path, renderPNG(path, graph)
}
