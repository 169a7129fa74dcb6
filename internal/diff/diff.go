// Package diff compares two pmutop reports and highlights regressions/improvements.
package diff

import (
	"fmt"
	"math"
	"strings"

	"github.com/dmitriimaksimovdevelop/pmutop/internal/model"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/output"
)

// DiffReport contains the comparison between two reports.
type DiffReport struct {
	Baseline     string         `json:"baseline"`
	Current      string         `json:"current"`
	Changes      []MetricChange `json:"changes"`
	Regressions  int            `json:"regressions"`
	Improvements int            `json:"improvements"`

	// RetiringDelta is the change in retiring slots, in percentage points.
	// Positive means more useful work per cycle.
	RetiringDelta float64 `json:"retiring_delta"`
}

// MetricChange represents a single metric difference between reports.
// Values are percentages of issue slots; Delta is in percentage points.
type MetricChange struct {
	Path         string  `json:"path"`
	OldValue     float64 `json:"old_value"`
	NewValue     float64 `json:"new_value"`
	Delta        float64 `json:"delta"`
	Direction    string  `json:"direction"`    // "regression", "improvement", "unchanged"
	Significance string  `json:"significance"` // "high", "medium", "low"
}

// Change thresholds in percentage points of issue slots.
const (
	negligible  = 0.5
	directional = 2
	medium      = 5
	high        = 10
)

// LoadReport reads and parses a JSON report file.
func LoadReport(path string) (*model.Report, error) {
	report, err := output.ReadJSON(path)
	if err != nil {
		return nil, err
	}
	if report.Topdown == nil {
		return nil, fmt.Errorf("%s: not a topdown report", path)
	}
	return report, nil
}

// Compare computes differences between two Top-Down reports. Metrics are
// matched by path; a metric present in only one report, or undefined in
// either, is skipped.
func Compare(baseline, current *model.Report) *DiffReport {
	diff := &DiffReport{
		Baseline: describe(baseline),
		Current:  describe(current),
	}
	if baseline.Topdown == nil || current.Topdown == nil {
		return diff
	}

	for _, newMetric := range current.Topdown.Metrics {
		oldMetric, ok := baseline.Topdown.Lookup(newMetric.Path)
		if !ok || oldMetric.Undefined || newMetric.Undefined {
			continue
		}
		if newMetric.Label == "Retiring" {
			diff.RetiringDelta = newMetric.Percent() - oldMetric.Percent()
		}
		addChange(diff, newMetric.Path, oldMetric.Percent(), newMetric.Percent(), higherIsWorse(newMetric.Label))
	}

	for _, c := range diff.Changes {
		switch c.Direction {
		case "regression":
			diff.Regressions++
		case "improvement":
			diff.Improvements++
		}
	}
	return diff
}

// higherIsWorse is true for every stall category. The root and the
// useful-work branch grow as the workload gets faster.
func higherIsWorse(label string) bool {
	switch label {
	case "All slots", "Uop issued", "Retiring":
		return false
	}
	return true
}

func describe(r *model.Report) string {
	if r.Metadata.Timestamp == "" {
		return strings.Join(r.Metadata.Command, " ")
	}
	return r.Metadata.Timestamp
}

func addChange(diff *DiffReport, path string, oldVal, newVal float64, higherIsWorse bool) {
	delta := newVal - oldVal
	if math.Abs(delta) < negligible {
		return
	}

	direction := "unchanged"
	if higherIsWorse {
		if delta > directional {
			direction = "regression"
		} else if delta < -directional {
			direction = "improvement"
		}
	} else {
		if delta < -directional {
			direction = "regression"
		} else if delta > directional {
			direction = "improvement"
		}
	}

	significance := "low"
	abs := math.Abs(delta)
	if abs >= high {
		significance = "high"
	} else if abs >= medium {
		significance = "medium"
	}

	diff.Changes = append(diff.Changes, MetricChange{
		Path:         path,
		OldValue:     oldVal,
		NewValue:     newVal,
		Delta:        delta,
		Direction:    direction,
		Significance: significance,
	})
}

// FormatDiff returns a human-readable diff summary.
func FormatDiff(d *DiffReport) string {
	var sb strings.Builder

	sb.WriteString("=== Report Diff ===\n")
	sb.WriteString(fmt.Sprintf("Baseline: %s\n", d.Baseline))
	sb.WriteString(fmt.Sprintf("Current:  %s\n\n", d.Current))

	symbol := "→"
	if d.RetiringDelta > 0 {
		symbol = "↑"
	} else if d.RetiringDelta < 0 {
		symbol = "↓"
	}
	sb.WriteString(fmt.Sprintf("Retiring: %+.2f pp %s\n", d.RetiringDelta, symbol))
	sb.WriteString(fmt.Sprintf("Regressions: %d, Improvements: %d\n\n", d.Regressions, d.Improvements))

	if d.Regressions > 0 {
		sb.WriteString("⚠ Regressions:\n")
		writeChanges(&sb, d.Changes, "regression")
		sb.WriteString("\n")
	}

	if d.Improvements > 0 {
		sb.WriteString("✓ Improvements:\n")
		writeChanges(&sb, d.Changes, "improvement")
	}

	return sb.String()
}

func writeChanges(sb *strings.Builder, changes []MetricChange, direction string) {
	for _, c := range changes {
		if c.Direction == direction {
			sb.WriteString(fmt.Sprintf("  [%s] %s: %.2f%% → %.2f%% (%+.2f pp)\n",
				strings.ToUpper(c.Significance), c.Path, c.OldValue, c.NewValue, c.Delta))
		}
	}
}
