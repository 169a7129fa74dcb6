package output

import (
	"fmt"
	"strings"

	"github.com/dmitriimaksimovdevelop/pmutop/internal/model"
)

// FormatSummary returns the bottlenecks and follow-ups of a report as text.
func FormatSummary(report *model.Report) string {
	var sb strings.Builder

	if len(report.Summary.CriticalPath) > 0 {
		sb.WriteString(fmt.Sprintf("Critical path: %s\n",
			strings.Join(report.Summary.CriticalPath, " > ")))
	}

	if m := report.Memload; m != nil {
		sb.WriteString(fmt.Sprintf("Mean outstanding demand reads: %.2f\n", m.Mean()))
		if m.Truncated {
			sb.WriteString(fmt.Sprintf("Histogram truncated at cmask %d (%d cycles above)\n",
				m.MaxCmask, m.Overflow))
		}
	}

	if len(report.Summary.Bottlenecks) == 0 {
		if report.Topdown != nil {
			sb.WriteString("No bottleneck above threshold.\n")
		}
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("\nBottlenecks (%d):\n", len(report.Summary.Bottlenecks)))
	for _, b := range report.Summary.Bottlenecks {
		sb.WriteString(fmt.Sprintf("  [%s] %s: %s\n",
			strings.ToUpper(b.Severity), labelOf(b.Path), b.Message))
	}

	if len(report.Summary.Recommendations) > 0 {
		sb.WriteString("\nNext steps:\n")
		for _, r := range report.Summary.Recommendations {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", r.Priority, r.Title))
			for _, cmd := range r.Commands {
				sb.WriteString(fmt.Sprintf("       $ %s\n", cmd))
			}
		}
	}
	return sb.String()
}

func labelOf(path string) string {
	return path[strings.LastIndex(path, model.PathSeparator)+1:]
}
