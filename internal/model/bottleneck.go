package model

import "fmt"

// Threshold flags a Top-Down metric. Warning and Critical are percentages
// of issue slots.
type Threshold struct {
	Label    string
	Warning  float64
	Critical float64
	Message  func(value float64) string
}

func share(what string) func(float64) string {
	return func(v float64) string {
		return fmt.Sprintf("%.1f%% of issue slots %s", v, what)
	}
}

// DefaultThresholds returns the built-in bottleneck thresholds.
// Warning levels follow the Top-Down Analysis Method node thresholds.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Label: "Bad speculation", Warning: 15, Critical: 30,
			Message: share("are lost to mispredicted branches or machine clears")},
		{Label: "Front end bound", Warning: 15, Critical: 30,
			Message: share("go unused because the front end starves the back end")},
		{Label: "Fetch latency bound", Warning: 10, Critical: 20,
			Message: share("see no uops delivered (icache, ITLB or resteer stalls)")},
		{Label: "Fetch bandwidth bound", Warning: 10, Critical: 20,
			Message: share("are limited by decoder or uop cache throughput")},
		{Label: "Core bound", Warning: 10, Critical: 20,
			Message: share("stall on execution resources rather than memory")},
		{Label: "Memory bound", Warning: 20, Critical: 40,
			Message: share("stall on the memory hierarchy")},
		{Label: "L1 bound", Warning: 10, Critical: 20,
			Message: share("stall although loads hit L1")},
		{Label: "DTLB load miss", Warning: 10, Critical: 20,
			Message: share("are spent on data TLB misses")},
		{Label: "Load blocked by store forwarding", Warning: 10, Critical: 20,
			Message: share("wait on failed store forwarding")},
		{Label: "Lock latency", Warning: 10, Critical: 20,
			Message: share("wait on locked memory operations")},
		{Label: "Split loads", Warning: 10, Critical: 20,
			Message: share("are spent on cache-line split loads")},
		{Label: "4K aliasing", Warning: 10, Critical: 20,
			Message: share("are spent on 4K address aliasing")},
		{Label: "Fill buffer full", Warning: 10, Critical: 20,
			Message: share("wait for a free L1 fill buffer")},
		{Label: "L2 bound", Warning: 3, Critical: 10,
			Message: share("stall on loads served by L2")},
		{Label: "L3 bound", Warning: 3, Critical: 10,
			Message: share("stall on loads served by L3")},
		{Label: "Ext mem bound", Warning: 10, Critical: 20,
			Message: share("stall on loads served by DRAM")},
		{Label: "Bandwidth", Warning: 10, Critical: 20,
			Message: share("stall with the memory bus saturated")},
		{Label: "Latency", Warning: 10, Critical: 20,
			Message: share("stall on DRAM latency")},
	}
}

// DetectBottlenecks runs all threshold checks against the report's
// Top-Down metrics. Undefined metrics are never flagged.
func DetectBottlenecks(report *Report) []Bottleneck {
	if report.Topdown == nil {
		return nil
	}

	byLabel := make(map[string]Metric, len(report.Topdown.Metrics))
	for _, m := range report.Topdown.Metrics {
		byLabel[m.Label] = m
	}

	var bottlenecks []Bottleneck
	for _, threshold := range DefaultThresholds() {
		m, ok := byLabel[threshold.Label]
		if !ok || m.Undefined {
			continue
		}
		value := m.Percent()

		var severity string
		switch {
		case value >= threshold.Critical:
			severity = "critical"
		case value >= threshold.Warning:
			severity = "warning"
		default:
			continue
		}

		bottlenecks = append(bottlenecks, Bottleneck{
			Severity: severity,
			Path:     m.Path,
			Value:    value,
			Message:  threshold.Message(value),
		})
	}
	return bottlenecks
}

// CriticalPath descends from the root, at each level following the child
// with the largest value, and returns the labels visited. It shows the
// single most expensive chain of categories.
func CriticalPath(t *TopdownResult) []string {
	if t == nil || len(t.Metrics) == 0 {
		return nil
	}

	metrics := t.Metrics
	path := []string{metrics[0].Label}
	i := 0
	for {
		best := -1
		// Children of metrics[i] are the following entries at depth+1,
		// up to the next entry at depth <= metrics[i].Depth.
		for j := i + 1; j < len(metrics) && metrics[j].Depth > metrics[i].Depth; j++ {
			if metrics[j].Depth != metrics[i].Depth+1 || metrics[j].Undefined {
				continue
			}
			if best < 0 || metrics[j].Fraction > metrics[best].Fraction {
				best = j
			}
		}
		if best < 0 {
			return path
		}
		path = append(path, metrics[best].Label)
		i = best
	}
}
