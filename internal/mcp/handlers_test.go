package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dmitriimaksimovdevelop/pmutop/internal/memload"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/model"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/topdown"
)

func request(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected 1 content item, got %d", len(res.Content))
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return tc.Text
}

// treeCounts returns a JSON counts object covering every Top-Down event.
func treeCounts(t *testing.T, overrides map[string]uint64) string {
	t.Helper()
	m := make(map[string]uint64)
	for _, e := range topdown.Tree.CounterSet().Events() {
		m[string(e)] = 100
	}
	for k, v := range overrides {
		m[k] = v
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// --- getArgs / stringArg / intArg helpers ---

func TestGetArgs_NilArguments(t *testing.T) {
	args := getArgs(mcp.CallToolRequest{})
	if args == nil {
		t.Fatal("getArgs returned nil, expected empty map")
	}
	if len(args) != 0 {
		t.Fatalf("expected empty map, got %v", args)
	}
}

func TestGetArgs_WrongType(t *testing.T) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: "not a map",
		},
	}
	if args := getArgs(req); len(args) != 0 {
		t.Fatalf("expected empty map for wrong type, got %v", args)
	}
}

func TestStringArg(t *testing.T) {
	args := map[string]interface{}{"name": "hello", "empty": "", "nil": nil, "num": 42}
	tests := []struct {
		key  string
		want string
	}{
		{"name", "hello"},
		{"empty", "default"},
		{"nil", "default"},
		{"num", "default"},
		{"missing", "default"},
	}
	for _, tt := range tests {
		if got := stringArg(args, tt.key, "default"); got != tt.want {
			t.Errorf("stringArg(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestIntArg(t *testing.T) {
	args := map[string]interface{}{"n": float64(5), "s": "5"}
	if got := intArg(args, "n", 17); got != 5 {
		t.Errorf("intArg(n) = %d, want 5", got)
	}
	if got := intArg(args, "s", 17); got != 17 {
		t.Errorf("intArg(s) = %d, want default 17", got)
	}
	if got := intArg(args, "missing", 17); got != 17 {
		t.Errorf("intArg(missing) = %d, want default 17", got)
	}
	huge := map[string]interface{}{"big": 1e300, "small": -1e300}
	if got := intArg(huge, "big", 17); got != math.MaxInt32 {
		t.Errorf("intArg(big) = %d, want %d", got, math.MaxInt32)
	}
	if got := intArg(huge, "small", 17); got != math.MinInt32 {
		t.Errorf("intArg(small) = %d, want %d", got, math.MinInt32)
	}
}

// --- newTextResult / errResult ---

func TestNewTextResult(t *testing.T) {
	result := newTextResult("hello world")
	if result.IsError {
		t.Fatal("newTextResult should not set IsError")
	}
	if got := resultText(t, result); got != "hello world" {
		t.Fatalf("expected 'hello world', got %q", got)
	}
}

func TestErrResult(t *testing.T) {
	result := errResult("something failed")
	if !result.IsError {
		t.Fatal("errResult should set IsError=true")
	}
	if got := resultText(t, result); got != "something failed" {
		t.Fatalf("expected 'something failed', got %q", got)
	}
}

// --- list_metrics / explain_metric ---

func TestHandleListMetrics(t *testing.T) {
	res, err := handleListMetrics(context.Background(), mcp.CallToolRequest{})
	if err != nil || res.IsError {
		t.Fatalf("unexpected failure: %v", err)
	}

	var entries []metricEntry
	if err := json.Unmarshal([]byte(resultText(t, res)), &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 23 {
		t.Fatalf("entries = %d, want 23", len(entries))
	}
	if entries[0].Label != "All slots" || entries[0].Formula != "sum of children" {
		t.Errorf("first entry = %+v", entries[0])
	}
	for _, e := range entries {
		if e.Description == "" {
			t.Errorf("%q has no description", e.Label)
		}
	}
}

func TestHandleExplainMetric_AllLabels(t *testing.T) {
	topdown.Tree.Walk(func(n *topdown.Node, _ int) {
		res, err := handleExplainMetric(context.Background(), request(map[string]interface{}{"label": n.Label}))
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", n.Label, err)
		}
		if res.IsError {
			t.Fatalf("%q: expected success, got IsError", n.Label)
		}
		if !strings.Contains(resultText(t, res), "**"+n.Label+"**") {
			t.Errorf("%q: missing title", n.Label)
		}
	})
}

func TestHandleExplainMetric_Details(t *testing.T) {
	res, _ := handleExplainMetric(context.Background(), request(map[string]interface{}{"label": "memory BOUND"}))
	text := resultText(t, res)
	for _, want := range []string{
		"**Memory bound**",
		"**Formula:** ((CYCLE_ACTIVITY.STALLS_MEM_ANY + RESOURCE_STALLS.SB) / CPU_CLK_UNHALTED.THREAD)",
		"- CYCLE_ACTIVITY.STALLS_MEM_ANY\n",
		"**Thresholds:** warning >= 20%, critical >= 40% of issue slots",
		"- `pmutop memload -- <cmd>`",
		"**Breaks down into:** L1 bound, L2 bound, L3 bound, Ext mem bound",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}

func TestHandleExplainMetric_Errors(t *testing.T) {
	res, err := handleExplainMetric(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected Go error (should not panic): %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "label is required") {
		t.Error("expected IsError for missing label")
	}

	res, _ = handleExplainMetric(context.Background(), request(map[string]interface{}{"label": "Cache thrash"}))
	if !res.IsError || !strings.Contains(resultText(t, res), `"Cache thrash"`) {
		t.Error("expected IsError naming the unknown label")
	}
}

// --- list_events ---

func TestHandleListEvents(t *testing.T) {
	res, _ := handleListEvents(context.Background(), request(map[string]interface{}{
		"analysis":  "memload",
		"max_cmask": float64(3),
	}))
	if res.IsError {
		t.Fatalf("unexpected IsError: %s", resultText(t, res))
	}
	var names []string
	if err := json.Unmarshal([]byte(resultText(t, res)), &names); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"CPU_CLK_UNHALTED.THREAD",
		"OFFCORE_REQUESTS_OUTSTANDING.DEMAND_DATA_RD:cmask=1",
		"OFFCORE_REQUESTS_OUTSTANDING.DEMAND_DATA_RD:cmask=2",
		"OFFCORE_REQUESTS_OUTSTANDING.DEMAND_DATA_RD:cmask=3",
	}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", names, want)
	}

	res, _ = handleListEvents(context.Background(), mcp.CallToolRequest{})
	if err := json.Unmarshal([]byte(resultText(t, res)), &names); err != nil {
		t.Fatal(err)
	}
	if len(names) != 30 || names[0] != "UOPS_RETIRED.RETIRE_SLOTS" {
		t.Errorf("topdown events = %d starting %q", len(names), names[0])
	}

	res, _ = handleListEvents(context.Background(), request(map[string]interface{}{"analysis": "bogus"}))
	if !res.IsError {
		t.Error("expected IsError for unknown analysis")
	}
}

// --- evaluate_topdown ---

func TestHandleEvaluateTopdown(t *testing.T) {
	counts := treeCounts(t, map[string]uint64{
		"CPU_CLK_UNHALTED.THREAD":     1000,
		"IDQ_UOPS_NOT_DELIVERED.CORE": 400,
	})
	res, err := handleEvaluateTopdown(context.Background(), request(map[string]interface{}{"counts": counts}))
	if err != nil || res.IsError {
		t.Fatalf("unexpected failure: %v %s", err, resultText(t, res))
	}

	var report model.Report
	if err := json.Unmarshal([]byte(resultText(t, res)), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	fe, ok := report.Topdown.Lookup("All slots/No uop issued/Front end bound")
	if !ok {
		t.Fatal("missing front end bound")
	}
	if fe.Percent() < 9.999 || fe.Percent() > 10.001 {
		t.Errorf("front end bound = %.4f%%, want 10%%", fe.Percent())
	}
	if report.Metadata.Analysis != "topdown" {
		t.Errorf("analysis = %q", report.Metadata.Analysis)
	}
}

func TestHandleEvaluateTopdown_MissingEvent(t *testing.T) {
	counts := `{"CPU_CLK_UNHALTED.THREAD": 1000}`
	res, err := handleEvaluateTopdown(context.Background(), request(map[string]interface{}{"counts": counts}))
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError for incomplete counts")
	}
	if !strings.Contains(resultText(t, res), "was not sampled") {
		t.Errorf("unexpected message: %s", resultText(t, res))
	}
}

func TestHandleEvaluateTopdown_BadInput(t *testing.T) {
	for name, args := range map[string]map[string]interface{}{
		"none":      {},
		"bad json":  {"counts": "{not json"},
		"bad row":   {"report": "abc;;x;1;1\n"},
		"row count": {"report": "1;;x;1;1\n"},
	} {
		res, err := handleEvaluateTopdown(context.Background(), request(args))
		if err != nil {
			t.Fatalf("%s: unexpected Go error: %v", name, err)
		}
		if !res.IsError {
			t.Errorf("%s: expected IsError", name)
		}
	}
}

// --- evaluate_memload ---

func memloadReport(counts ...uint64) string {
	var sb strings.Builder
	for _, c := range counts {
		sb.WriteString(fmt.Sprintf("%d;;offcore_requests_outstanding_demand_data_rd;100;100.00\n", c))
	}
	return sb.String()
}

func TestHandleEvaluateMemload_Report(t *testing.T) {
	res, _ := handleEvaluateMemload(context.Background(), request(map[string]interface{}{
		"report":    "# started\n" + memloadReport(1000, 900, 500, 100),
		"max_cmask": float64(3),
	}))
	if res.IsError {
		t.Fatalf("unexpected IsError: %s", resultText(t, res))
	}

	var report model.Report
	if err := json.Unmarshal([]byte(resultText(t, res)), &report); err != nil {
		t.Fatal(err)
	}
	m := report.Memload
	if m == nil || len(m.Buckets) != 2 {
		t.Fatalf("memload = %+v", m)
	}
	for _, b := range m.Buckets {
		if b.Percent < 39.999 || b.Percent > 40.001 {
			t.Errorf("bucket %d = %.4f, want 40", b.Outstanding, b.Percent)
		}
	}
	if !m.Truncated || m.Overflow != 100 {
		t.Errorf("truncated = %v overflow = %d, want true 100", m.Truncated, m.Overflow)
	}
	if report.Counts[string(memload.ThresholdEvent(2))] != 500 {
		t.Errorf("counts not positionally matched: %v", report.Counts)
	}
}

func TestHandleEvaluateMemload_Errors(t *testing.T) {
	res, _ := handleEvaluateMemload(context.Background(), request(map[string]interface{}{
		"report":    memloadReport(0, 0, 0),
		"max_cmask": float64(2),
	}))
	if !res.IsError || !strings.Contains(resultText(t, res), "is 0") {
		t.Error("expected IsError for zero cycles")
	}

	res, _ = handleEvaluateMemload(context.Background(), request(map[string]interface{}{
		"counts":    `{"CPU_CLK_UNHALTED.THREAD": 10}`,
		"max_cmask": float64(2),
	}))
	if !res.IsError || !strings.Contains(resultText(t, res), "was not sampled") {
		t.Error("expected IsError for missing thresholds")
	}

	res, _ = handleEvaluateMemload(context.Background(), request(map[string]interface{}{
		"counts":    `{}`,
		"max_cmask": float64(1),
	}))
	if !res.IsError {
		t.Error("expected IsError for max_cmask 1")
	}
}

func TestMaxCmaskUpperBound(t *testing.T) {
	for _, v := range []float64{256, 1e13, 1e300} {
		args := map[string]interface{}{"analysis": "memload", "max_cmask": v}
		res, err := handleListEvents(context.Background(), request(args))
		if err != nil {
			t.Fatalf("list_events %g: unexpected Go error: %v", v, err)
		}
		if !res.IsError || !strings.Contains(resultText(t, res), "counter mask is at most 255") {
			t.Errorf("list_events %g: expected IsError, got %s", v, resultText(t, res))
		}

		args = map[string]interface{}{"counts": `{}`, "max_cmask": v}
		res, _ = handleEvaluateMemload(context.Background(), request(args))
		if !res.IsError || !strings.Contains(resultText(t, res), "counter mask is at most 255") {
			t.Errorf("evaluate_memload %g: expected IsError, got %s", v, resultText(t, res))
		}
	}

	res, _ := handleListEvents(context.Background(), request(map[string]interface{}{
		"analysis":  "memload",
		"max_cmask": float64(255),
	}))
	if res.IsError {
		t.Fatalf("max_cmask 255 rejected: %s", resultText(t, res))
	}
}
