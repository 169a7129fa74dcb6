// Package model defines the report types written by pmutop.
// These types are serialized to JSON and read back by diff and MCP clients.
// Schema version: 1.0.0
package model

import "math"

// SchemaVersion is written into every report.
const SchemaVersion = "1.0.0"

// --- Report: top-level output ---

// Report is one measurement of one workload.
type Report struct {
	Metadata Metadata       `json:"metadata"`
	Topdown  *TopdownResult `json:"topdown,omitempty"`
	Memload  *MemloadResult `json:"memload,omitempty"`
	Summary  Summary        `json:"summary"`

	// Counts holds the raw counter values so a report can be re-evaluated.
	Counts map[string]uint64 `json:"counts"`
}

// Metadata identifies the measurement run.
type Metadata struct {
	Tool          string   `json:"tool"`
	Version       string   `json:"version"`
	SchemaVersion string   `json:"schema_version"`
	Hostname      string   `json:"hostname"`
	Timestamp     string   `json:"timestamp"`
	Duration      string   `json:"duration"`
	Analysis      string   `json:"analysis"` // "topdown" or "memload"
	Command       []string `json:"command"`
	Sampler       string   `json:"sampler"`
	CPU           string   `json:"cpu"`
	KernelVersion string   `json:"kernel_version"`
	Arch          string   `json:"arch"`
}

// --- Top-Down ---

// TopdownResult is the evaluated hierarchy in pre-order.
type TopdownResult struct {
	Metrics []Metric `json:"metrics"`
}

// Metric is one evaluated node. Path joins the labels from the root with
// '/' and identifies the node across reports.
type Metric struct {
	Label string `json:"label"`
	Path  string `json:"path"`
	Depth int    `json:"depth"`

	// Fraction of issue slots, normally in [0, 1]. Undefined is set when the
	// formula divided by zero, in which case Fraction is 0. Infinite keeps
	// the sign of a non-zero numerator over zero: 1 or -1, 0 for NaN.
	Fraction  float64 `json:"fraction"`
	Undefined bool    `json:"undefined,omitempty"`
	Infinite  int     `json:"infinite,omitempty"`
}

// NewMetric builds a Metric, folding NaN and infinities into Undefined so
// the report stays valid JSON.
func NewMetric(label, path string, depth int, value float64) Metric {
	m := Metric{Label: label, Path: path, Depth: depth, Fraction: value}
	switch {
	case math.IsInf(value, 1):
		m.Infinite = 1
	case math.IsInf(value, -1):
		m.Infinite = -1
	case !math.IsNaN(value):
		return m
	}
	m.Fraction = 0
	m.Undefined = true
	return m
}

// Value returns the evaluated fraction, restoring NaN or an infinity for
// undefined metrics.
func (m Metric) Value() float64 {
	if !m.Undefined {
		return m.Fraction
	}
	if m.Infinite != 0 {
		return math.Inf(m.Infinite)
	}
	return math.NaN()
}

// Percent returns the fraction as a percentage.
func (m Metric) Percent() float64 { return 100 * m.Fraction }

// Append adds the next node in pre-order. Its path is derived from the
// closest preceding entry one level up.
func (t *TopdownResult) Append(label string, depth int, value float64) {
	path := label
	for i := len(t.Metrics) - 1; i >= 0 && depth > 0; i-- {
		if t.Metrics[i].Depth == depth-1 {
			path = t.Metrics[i].Path + PathSeparator + label
			break
		}
	}
	t.Metrics = append(t.Metrics, NewMetric(label, path, depth, value))
}

// Lookup returns the metric with the given path.
func (t *TopdownResult) Lookup(path string) (Metric, bool) {
	for _, m := range t.Metrics {
		if m.Path == path {
			return m, true
		}
	}
	return Metric{}, false
}

// --- Memload ---

// MemloadResult is the outstanding demand read histogram.
type MemloadResult struct {
	MaxCmask  int          `json:"max_cmask"`
	Cycles    uint64       `json:"cycles"`
	Overflow  uint64       `json:"overflow"`
	Truncated bool         `json:"truncated"`
	Buckets   []HistBucket `json:"buckets"`
}

// HistBucket is the share of cycles with exactly Outstanding reads in flight.
type HistBucket struct {
	Outstanding int     `json:"outstanding"`
	Percent     float64 `json:"percent"`
}

// Mean returns the average number of outstanding reads over the cycles
// that had at least one, or 0 if none did.
func (m *MemloadResult) Mean() float64 {
	var weighted, total float64
	for _, b := range m.Buckets {
		weighted += float64(b.Outstanding) * b.Percent
		total += b.Percent
	}
	if total <= 0 {
		return 0
	}
	return weighted / total
}

// --- Summary: pre-computed analysis ---

// Summary highlights what to look at first.
type Summary struct {
	Bottlenecks     []Bottleneck     `json:"bottlenecks"`
	CriticalPath    []string         `json:"critical_path,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
}

// Bottleneck is a metric above its threshold.
type Bottleneck struct {
	Severity string  `json:"severity"` // "warning" or "critical"
	Path     string  `json:"path"`
	Value    float64 `json:"value"`
	Message  string  `json:"message"`
}

// Recommendation is a follow-up for a detected bottleneck.
type Recommendation struct {
	Priority int      `json:"priority"`
	Path     string   `json:"path"`
	Title    string   `json:"title"`
	Commands []string `json:"commands,omitempty"`
	Evidence string   `json:"evidence"`
	Source   string   `json:"source"`
}
