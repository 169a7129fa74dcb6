package model

import (
	"fmt"
	"strings"
)

const optimizationManual = "Intel 64 and IA-32 Architectures Optimization Reference Manual, Appendix B.3"

type hint struct {
	title    string
	commands []string
	source   string
}

// hints maps a bottleneck label to the usual next step.
var hints = map[string]hint{
	"Bad speculation": {
		title:    "Find the mispredicted branches and make them predictable or branchless",
		commands: []string{"perf record -e branch-misses:pp -- <cmd>", "perf report --sort symbol"},
		source:   optimizationManual,
	},
	"Front end bound": {
		title:    "Shrink the hot code footprint (PGO, function reordering, less inlining)",
		commands: []string{"perf record -e frontend_retired.dsb_miss -- <cmd>"},
		source:   optimizationManual,
	},
	"Fetch latency bound": {
		title:    "Reduce instruction cache and ITLB misses; consider huge pages for text",
		commands: []string{"perf stat -e icache.misses,itlb_misses.walk_completed -- <cmd>"},
		source:   optimizationManual,
	},
	"Fetch bandwidth bound": {
		title:  "Keep hot loops in the decoded uop cache; avoid length-changing prefixes",
		source: optimizationManual,
	},
	"Core bound": {
		title:  "Break long dependency chains and avoid divides in hot loops",
		source: optimizationManual,
	},
	"Memory bound": {
		title:    "Inspect the memory access pattern; see how many reads are in flight",
		commands: []string{"pmutop memload -- <cmd>"},
		source:   optimizationManual,
	},
	"DTLB load miss": {
		title:    "Back hot data with huge pages",
		commands: []string{"echo always > /sys/kernel/mm/transparent_hugepage/enabled"},
		source:   optimizationManual,
	},
	"Load blocked by store forwarding": {
		title:  "Load data with the same size and alignment it was stored with",
		source: optimizationManual,
	},
	"Lock latency": {
		title:  "Reduce contended atomics; shard counters per thread",
		source: optimizationManual,
	},
	"Split loads": {
		title:  "Align hot data structures to cache lines",
		source: optimizationManual,
	},
	"4K aliasing": {
		title:  "Offset buffers that are accessed together by something other than 4 KiB",
		source: optimizationManual,
	},
	"Fill buffer full": {
		title:  "Improve locality so fewer lines miss L1 at once",
		source: optimizationManual,
	},
	"L2 bound": {
		title:  "Block loops so the working set fits in L1",
		source: optimizationManual,
	},
	"L3 bound": {
		title:  "Block loops so the working set fits in L2; check for false sharing",
		source: optimizationManual,
	},
	"Ext mem bound": {
		title:  "Shrink the working set or prefetch ahead of use",
		source: optimizationManual,
	},
	"Bandwidth": {
		title:  "Reduce bytes moved: compress data, use smaller types, avoid streaming twice",
		source: optimizationManual,
	},
	"Latency": {
		title:  "Overlap misses: software prefetch, independent loads, fewer pointer chases",
		source: optimizationManual,
	},
}

// GenerateRecommendations produces one follow-up per detected bottleneck,
// critical ones first.
func GenerateRecommendations(bottlenecks []Bottleneck) []Recommendation {
	var recs []Recommendation
	priority := 1

	for _, severity := range []string{"critical", "warning"} {
		for _, b := range bottlenecks {
			if b.Severity != severity {
				continue
			}
			h, ok := hints[labelOf(b.Path)]
			if !ok {
				continue
			}
			recs = append(recs, Recommendation{
				Priority: priority,
				Path:     b.Path,
				Title:    h.title,
				Commands: h.commands,
				Evidence: formatEvidence("%s=%.1f%% (%s)", labelOf(b.Path), b.Value, b.Severity),
				Source:   h.source,
			})
			priority++
		}
	}
	return recs
}

// Summarize fills report.Summary from the report's results.
func Summarize(report *Report) {
	report.Summary.Bottlenecks = DetectBottlenecks(report)
	report.Summary.CriticalPath = CriticalPath(report.Topdown)
	report.Summary.Recommendations = GenerateRecommendations(report.Summary.Bottlenecks)
}

func labelOf(path string) string {
	return path[strings.LastIndex(path, PathSeparator)+1:]
}

// PathSeparator joins labels in Metric.Path.
const PathSeparator = "/"

func formatEvidence(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}

// Hint returns the follow-up for a category label.
func Hint(label string) (title string, commands []string, ok bool) {
	h, ok := hints[label]
	return h.title, h.commands, ok
}
