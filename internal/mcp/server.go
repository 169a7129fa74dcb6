package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server instance.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server with registered tools.
func NewServer(version string) *Server {
	s := server.NewMCPServer("pmutop", version, server.WithLogging())

	registerTools(s)

	return &Server{
		mcpServer: s,
	}
}

// Start runs the server in stdio mode (blocking).
func (s *Server) Start(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.mcpServer)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

const countsDescription = "Counter values as a JSON object mapping event name to count, " +
	`e.g. {"CPU_CLK_UNHALTED.THREAD": 1000}. Use list_events for the names.`

const reportDescription = "Alternative to counts: the raw ';'-separated report printed by " +
	"'ocperf.py stat -x;' when given the events of list_events in that order."

// registerTools adds all supported tools to the server.
func registerTools(s *server.MCPServer) {
	// Tool: list_metrics
	listTool := mcp.NewTool("list_metrics",
		mcp.WithDescription("List every Top-Down category with its depth, formula and a one-line description. Use with explain_metric for detail."),
	)
	s.AddTool(listTool, handleListMetrics)

	// Tool: explain_metric
	explainTool := mcp.NewTool("explain_metric",
		mcp.WithDescription("Explain one Top-Down category: what it measures, its formula, the counters it reads, its alert thresholds and what to do when it is high."),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Category label, case-insensitive (e.g. 'Memory bound', 'DTLB load miss'). Use list_metrics to see all."),
		),
	)
	s.AddTool(explainTool, handleExplainMetric)

	// Tool: list_events
	eventsTool := mcp.NewTool("list_events",
		mcp.WithDescription("List the hardware events an analysis needs, in the order the sampler must report them."),
		mcp.WithString("analysis",
			mcp.Description("Which analysis to list events for"),
			mcp.DefaultString("topdown"),
			mcp.Enum("topdown", "memload"),
		),
		mcp.WithNumber("max_cmask",
			mcp.Description("Highest counter-mask threshold for memload (default 17)"),
		),
	)
	s.AddTool(eventsTool, handleListEvents)

	// Tool: evaluate_topdown
	topdownTool := mcp.NewTool("evaluate_topdown",
		mcp.WithDescription("Evaluate the Ivy Bridge Top-Down hierarchy over counter values collected elsewhere. Returns every category as a fraction of issue slots, plus detected bottlenecks and next steps."),
		mcp.WithString("counts", mcp.Description(countsDescription)),
		mcp.WithString("report", mcp.Description(reportDescription)),
	)
	s.AddTool(topdownTool, handleEvaluateTopdown)

	// Tool: evaluate_memload
	memloadTool := mcp.NewTool("evaluate_memload",
		mcp.WithDescription("Estimate the histogram of outstanding demand data reads per cycle from a counter-mask sweep collected elsewhere."),
		mcp.WithString("counts", mcp.Description(countsDescription)),
		mcp.WithString("report", mcp.Description(reportDescription)),
		mcp.WithNumber("max_cmask",
			mcp.Description("Highest counter-mask threshold in the sweep (default 17)"),
		),
	)
	s.AddTool(memloadTool, handleEvaluateMemload)
}
