package orchestrator

import (
	"fmt"
	"sort"

	"github.com/dmitriimaksimovdevelop/pmutop/internal/counter"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/memload"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/topdown"
)

// Analysis names one kind of measurement and the counters it needs.
type Analysis struct {
	Name        string
	Description string

	// Events returns the counters for one run. maxCmask only matters for
	// memload.
	Events func(maxCmask int) *counter.Set
}

// analyses contains the built-in analyses.
var analyses = map[string]Analysis{
	"topdown": {
		Name:        "topdown",
		Description: "Top-Down breakdown of issue slots into retiring, bad speculation, front end and back end bound",
		Events: func(int) *counter.Set {
			return topdown.Tree.CounterSet()
		},
	},
	"memload": {
		Name:        "memload",
		Description: "Histogram of outstanding demand data reads per cycle from a counter-mask sweep",
		Events: func(maxCmask int) *counter.Set {
			return counter.NewSet(memload.Events(maxCmask)...)
		},
	},
}

// GetAnalysis returns the analysis with the given name.
func GetAnalysis(name string) (Analysis, error) {
	a, ok := analyses[name]
	if !ok {
		return Analysis{}, fmt.Errorf("unknown analysis %q (want one of %v)", name, AnalysisNames())
	}
	return a, nil
}

// AnalysisNames returns the names of all analyses, sorted.
func AnalysisNames() []string {
	names := make([]string, 0, len(analyses))
	for name := range analyses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
