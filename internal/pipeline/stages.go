// Package pipeline runs the carbonlake stages and records their history.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tigerroll/carbonlake/internal/extract"
	"github.com/tigerroll/carbonlake/internal/report"
	"github.com/tigerroll/carbonlake/internal/transform"
	port "github.com/tigerroll/carbonlake/pkg/batch/core/application/port"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
)

// Stage names, in execution order.
const (
	StageExtractIntensity = "extract-intensity"
	StageExtractFactors   = "extract-factors"
	StageSilverIntensity  = "silver-intensity"
	StageSilverFactors    = "silver-factors"
	StageViews            = "views"
)

// StageNames returns every stage name in execution order.
func StageNames() []string {
	return []string{StageExtractIntensity, StageExtractFactors, StageSilverIntensity, StageSilverFactors, StageViews}
}

// NewStages assembles the pipeline stages in execution order.
func NewStages(ex *extract.Extractor, tr *transform.Stage, rp *report.Reporter) []port.Stage {
	return []port.Stage{
		port.StageFunc{StageName: StageExtractIntensity, Fn: ex.RunIncremental},
		port.StageFunc{StageName: StageExtractFactors, Fn: ex.RunFullFactors},
		port.StageFunc{StageName: StageSilverIntensity, Fn: tr.RunIntensity},
		port.StageFunc{StageName: StageSilverFactors, Fn: tr.RunFactors},
		port.StageFunc{StageName: StageViews, Fn: rp.Run},
	}
}

// Select returns the stages named in names, in pipeline order. An empty
// selection means every stage. Unknown names are an error.
func Select(stages []port.Stage, names []string) ([]port.Stage, error) {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			wanted[n] = true
		}
	}
	if len(wanted) == 0 {
		return stages, nil
	}
	var out []port.Stage
	for _, s := range stages {
		if wanted[s.Name()] {
			out = append(out, s)
			delete(wanted, s.Name())
		}
	}
	if len(wanted) > 0 {
		var unknown []string
		for n := range wanted {
			unknown = append(unknown, n)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown stage(s) %s; valid stages are %s",
			strings.Join(unknown, ", "), strings.Join(namesOf(stages), ", "))
	}
	return out, nil
}

// ParseSelection splits a comma separated stage list, ignoring blanks.
func ParseSelection(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func namesOf(stages []port.Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	return names
}

// execute runs s, turning a panic into an error.
func execute(ctx context.Context, s port.Stage) (outcome model.StageOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Execute(ctx)
}
