package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dmitriimaksimovdevelop/pmutop/internal/counter"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/memload"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/model"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/orchestrator"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/sampler"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/topdown"
)

// metricEntry describes one category for list_metrics.
type metricEntry struct {
	Label       string `json:"label"`
	Depth       int    `json:"depth"`
	Formula     string `json:"formula,omitempty"`
	Description string `json:"description"`
}

// handleListMetrics returns the hierarchy in pre-order.
func handleListMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var entries []metricEntry
	topdown.Tree.Walk(func(n *topdown.Node, depth int) {
		e := metricEntry{Label: n.Label, Depth: depth, Description: n.Description}
		if n.Formula != nil {
			e.Formula = n.Formula.String()
		} else {
			e.Formula = "sum of children"
		}
		entries = append(entries, e)
	})
	return jsonResult(entries, true)
}

// handleExplainMetric describes one category in detail.
func handleExplainMetric(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	label := stringArg(args, "label", "")
	if label == "" {
		return errResult("label is required"), nil
	}

	node := topdown.Tree.Find(label)
	if node == nil {
		return errResult(fmt.Sprintf("unknown category %q. Use list_metrics to see all.", label)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**%s**\n%s\n", node.Label, node.Description))

	if node.Formula != nil {
		sb.WriteString(fmt.Sprintf("**Formula:** %s\n", node.Formula))
	} else {
		sb.WriteString("**Formula:** sum of its children\n")
	}

	if len(node.Children) > 0 {
		labels := make([]string, 0, len(node.Children))
		for _, c := range node.Children {
			labels = append(labels, c.Label)
		}
		sb.WriteString(fmt.Sprintf("**Breaks down into:** %s\n", strings.Join(labels, ", ")))
	}

	sb.WriteString("**Counters:**\n")
	for _, e := range node.CounterSet().Events() {
		sb.WriteString(fmt.Sprintf("- %s\n", e))
	}

	for _, t := range model.DefaultThresholds() {
		if strings.EqualFold(t.Label, node.Label) {
			sb.WriteString(fmt.Sprintf("**Thresholds:** warning >= %.0f%%, critical >= %.0f%% of issue slots\n",
				t.Warning, t.Critical))
		}
	}

	if title, commands, ok := model.Hint(node.Label); ok {
		sb.WriteString(fmt.Sprintf("**When high:** %s\n", title))
		for _, c := range commands {
			sb.WriteString(fmt.Sprintf("- `%s`\n", c))
		}
	}

	return newTextResult(sb.String()), nil
}

// handleListEvents returns the counters of one analysis in request order.
func handleListEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	analysis, err := orchestrator.GetAnalysis(stringArg(args, "analysis", "topdown"))
	if err != nil {
		return errResult(err.Error()), nil
	}
	maxCmask := intArg(args, "max_cmask", memload.DefaultMaxCmask)
	if err := memload.CheckMaxCmask(maxCmask); err != nil {
		return errResult(err.Error()), nil
	}

	events := analysis.Events(maxCmask).Events()
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, string(e))
	}
	return jsonResult(names, true)
}

// handleEvaluateTopdown evaluates the tree over supplied counts.
func handleEvaluateTopdown(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	counts, err := countsArg(args, topdown.Tree.CounterSet())
	if err != nil {
		return errResult(err.Error()), nil
	}

	results, err := evaluateTree(counts)
	if err != nil {
		return errResult(err.Error()), nil
	}

	td := &model.TopdownResult{}
	for _, r := range results {
		td.Append(r.Label, r.Depth, r.Value)
	}
	report := &model.Report{
		Metadata: model.Metadata{Tool: "pmutop", SchemaVersion: model.SchemaVersion, Analysis: "topdown"},
		Topdown:  td,
		Counts:   countsMap(counts),
	}
	model.Summarize(report)
	return jsonResult(report, false)
}

// handleEvaluateMemload estimates the outstanding-read histogram over
// supplied counts.
func handleEvaluateMemload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	maxCmask := intArg(args, "max_cmask", memload.DefaultMaxCmask)
	if err := memload.CheckMaxCmask(maxCmask); err != nil {
		return errResult(err.Error()), nil
	}

	counts, err := countsArg(args, counter.NewSet(memload.Events(maxCmask)...))
	if err != nil {
		return errResult(err.Error()), nil
	}

	h, err := estimateMemload(counts, maxCmask)
	if err != nil {
		return errResult(err.Error()), nil
	}
	if h.Cycles == 0 {
		return errResult(fmt.Sprintf("%s is 0", memload.CyclesEvent)), nil
	}

	result := &model.MemloadResult{
		MaxCmask:  maxCmask,
		Cycles:    h.Cycles,
		Overflow:  h.Overflow,
		Truncated: h.Truncated(),
	}
	for _, b := range h.Buckets {
		result.Buckets = append(result.Buckets, model.HistBucket{Outstanding: b.Outstanding, Percent: b.Percent})
	}
	report := &model.Report{
		Metadata: model.Metadata{Tool: "pmutop", SchemaVersion: model.SchemaVersion, Analysis: "memload"},
		Memload:  result,
		Counts:   countsMap(counts),
	}
	return jsonResult(report, false)
}

// evaluateTree turns a missing counter into an error instead of a panic.
func evaluateTree(c counter.Counts) (results []topdown.Result, err error) {
	defer recoverMissing(&err)
	return topdown.Tree.Evaluate(c), nil
}

func estimateMemload(c counter.Counts, maxCmask int) (h *memload.Histogram, err error) {
	defer recoverMissing(&err)
	return memload.Estimate(c, maxCmask)
}

func recoverMissing(err *error) {
	r := recover()
	if r == nil {
		return
	}
	var missing *counter.MissingEventError
	if e, ok := r.(error); ok && errors.As(e, &missing) {
		*err = fmt.Errorf("%w. Use list_events for the full list", missing)
		return
	}
	panic(r)
}

// countsArg reads counter values from either the "counts" JSON object or the
// raw "report" text, which is matched positionally against set.
func countsArg(args map[string]interface{}, set *counter.Set) (counter.Counts, error) {
	if raw := stringArg(args, "report", ""); raw != "" {
		return sampler.ParseReport(strings.NewReader(raw), set)
	}

	raw := stringArg(args, "counts", "")
	if raw == "" {
		return counter.Counts{}, errors.New("either counts or report is required")
	}
	var values map[string]uint64
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return counter.Counts{}, fmt.Errorf("counts: %w", err)
	}
	m := make(map[counter.Event]uint64, len(values))
	for name, v := range values {
		m[counter.Event(name)] = v
	}
	return counter.CountsFromMap(m), nil
}

func countsMap(c counter.Counts) map[string]uint64 {
	m := make(map[string]uint64, c.Len())
	for e, v := range c.Map() {
		m[string(e)] = v
	}
	return m
}

func jsonResult(v interface{}, indent bool) (*mcp.CallToolResult, error) {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
	}
	return newTextResult(string(data)), nil
}

// getArgs safely extracts the arguments map from a CallToolRequest.
// Returns an empty map if Arguments is nil or not a map.
func getArgs(request mcp.CallToolRequest) map[string]interface{} {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

// stringArg extracts a string argument with a default value.
func stringArg(args map[string]interface{}, key, defaultVal string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return defaultVal
	}
	return s
}

// intArg extracts a numeric argument. JSON numbers arrive as float64.
func intArg(args map[string]interface{}, key string, defaultVal int) int {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	f, ok := val.(float64)
	if !ok {
		return defaultVal
	}
	// Clamp so out-of-range values stay out of range after conversion.
	return int(math.Max(math.MinInt32, math.Min(math.MaxInt32, f)))
}

// newTextResult creates a successful MCP tool result with text content.
func newTextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

// errResult creates an MCP tool error result (IsError=true).
// This is returned as a tool-level error, not a transport-level JSON-RPC error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: msg,
			},
		},
	}
}
