package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/tigerroll/carbonlake/internal/transform"
)

func initOpts(height string) charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{
		PageTitle: "carbonlake",
		Theme:     types.ThemeWesteros,
		Width:     "900px",
		Height:    height,
	})
}

// writeDashboard renders the available views into one HTML page. Views
// without data are left out.
func writeDashboard(dir string, points []dailyPoint, counts []labelCount, fuels []fuelValue) (string, error) {
	page := components.NewPage()
	page.PageTitle = "carbonlake"

	if len(points) > 0 {
		dates := make([]string, len(points))
		means := make([]opts.LineData, len(points))
		for i, p := range points {
			dates[i] = p.Date.Format(transform.DateLayout)
			means[i] = opts.LineData{Value: p.Mean}
		}
		line := charts.NewLine()
		line.SetGlobalOptions(
			initOpts("400px"),
			charts.WithTitleOpts(opts.Title{Title: "Daily mean carbon intensity", Subtitle: "gCO2/kWh"}),
			charts.WithXAxisOpts(opts.XAxis{Name: "date"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "gCO2/kWh"}),
		)
		line.SetXAxis(dates).AddSeries("intensity_mean", means)
		page.AddCharts(line)
	}

	if len(counts) > 0 {
		labels := make([]string, len(counts))
		values := make([]opts.BarData, len(counts))
		for i, c := range counts {
			labels[i] = c.Label
			values[i] = opts.BarData{Value: c.Count}
		}
		bar := charts.NewBar()
		bar.SetGlobalOptions(
			initOpts("400px"),
			charts.WithTitleOpts(opts.Title{Title: "Intensity level distribution"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "intervals"}),
		)
		bar.SetXAxis(labels).AddSeries("intervals", values)
		page.AddCharts(bar)
	}

	if len(fuels) > 0 {
		names := make([]string, len(fuels))
		values := make([]opts.BarData, len(fuels))
		for i, fv := range fuels {
			names[i] = fv.Fuel
			values[i] = opts.BarData{Value: fv.Value}
		}
		bar := charts.NewBar()
		bar.SetGlobalOptions(
			initOpts(fmt.Sprintf("%dpx", 120+28*len(fuels))),
			charts.WithTitleOpts(opts.Title{Title: "Emission factors by fuel", Subtitle: "gCO2/kWh"}),
		)
		bar.SetXAxis(names).AddSeries("gco2_per_kwh", values).XYReversal()
		page.AddCharts(bar)
	}

	path := filepath.Join(dir, DashboardFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", DashboardFile, err)
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to render %s: %w", DashboardFile, err)
	}
	return path, f.Close()
}
