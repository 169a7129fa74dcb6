package output

import (
	"io"

	"github.com/dmitriimaksimovdevelop/pmutop/internal/memload"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/model"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/topdown"
)

// RenderTopdown writes the hierarchy in the indented percentage format.
// Undefined metrics print as NaN or a signed Inf.
func RenderTopdown(w io.Writer, td *model.TopdownResult) error {
	results := make([]topdown.Result, 0, len(td.Metrics))
	for _, m := range td.Metrics {
		results = append(results, topdown.Result{Label: m.Label, Depth: m.Depth, Value: m.Value()})
	}
	return topdown.RenderResults(w, results)
}

// RenderMemload writes one line per histogram bucket.
func RenderMemload(w io.Writer, m *model.MemloadResult) error {
	h := &memload.Histogram{Cycles: m.Cycles, Overflow: m.Overflow}
	for _, b := range m.Buckets {
		h.Buckets = append(h.Buckets, memload.Bucket{Outstanding: b.Outstanding, Percent: b.Percent})
	}
	return h.Render(w)
}
