// Package layout names the lake tables and their partitioning.
package layout

import (
	"path"
	"path/filepath"

	"github.com/tigerroll/carbonlake/pkg/batch/core/config"
)

const (
	BronzeLayer = "bronze"
	SilverLayer = "silver"
)

var (
	// IntensityKey is the natural key of an intensity interval.
	IntensityKey = []string{"from", "to"}
	// BronzeIntensityPartitions partitions bronze intensity by day.
	BronzeIntensityPartitions = []string{"date_part"}
	// SilverIntensityPartitions partitions both silver intensity tables.
	SilverIntensityPartitions = []string{"year", "month"}
)

// Tables holds the table locations relative to the lake root.
type Tables struct {
	BronzeIntensity      string
	BronzeFactors        string
	SilverIntensity      string
	SilverIntensityDaily string
	SilverFactors        string
}

// New returns the table locations for one source, e.g. "api_carbon_intensity".
func New(sourceName string) Tables {
	if sourceName == "" {
		sourceName = config.DefaultSourceName
	}
	return Tables{
		BronzeIntensity:      path.Join(BronzeLayer, sourceName, "intensity"),
		BronzeFactors:        path.Join(BronzeLayer, sourceName, "factors"),
		SilverIntensity:      path.Join(SilverLayer, sourceName, "intensity"),
		SilverIntensityDaily: path.Join(SilverLayer, sourceName, "intensity_daily"),
		SilverFactors:        path.Join(SilverLayer, sourceName, "factors"),
	}
}

// FromConfig returns the table locations for the configured source.
func FromConfig(cfg *config.LakeConfig) Tables {
	return New(cfg.SourceName)
}

// All returns every table location in pipeline order.
func (t Tables) All() []string {
	return []string{t.BronzeIntensity, t.BronzeFactors, t.SilverIntensity, t.SilverIntensityDaily, t.SilverFactors}
}

// FiguresDir returns report.figures_dir, or "figures" next to the lake root.
func FiguresDir(cfg *config.Config) string {
	if dir := cfg.CarbonLake.Report.FiguresDir; dir != "" {
		return dir
	}
	return filepath.Join(filepath.Dir(filepath.Clean(cfg.CarbonLake.Lake.Path)), "figures")
}
