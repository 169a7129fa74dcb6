// Package sampler runs an external counter sampling tool (ocperf.py or a
// compatible perf stat front end) around a workload and turns its
// machine-readable report into counts.
package sampler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/dmitriimaksimovdevelop/pmutop/internal/counter"
)

// ToolEnv overrides the default sampling tool.
const ToolEnv = "PMUTOP_SAMPLER"

// Config selects the sampling tool.
type Config struct {
	// Tool is the sampler binary, resolved through $PATH and SearchPaths.
	// It must accept "stat -x<sep> --log-fd <n> -e <event>... <command>".
	Tool string

	// SearchPaths are extra directories for resolving Tool.
	SearchPaths []string
}

// DefaultConfig returns a Config using ocperf.py, or $PMUTOP_SAMPLER when set.
func DefaultConfig() Config {
	tool := "ocperf.py"
	if v := os.Getenv(ToolEnv); v != "" {
		tool = v
	}
	return Config{
		Tool:        tool,
		SearchPaths: DefaultSearchPaths,
	}
}

// Sampler gathers one set of counts per workload run.
type Sampler struct {
	cfg    Config
	runner Runner
}

// New creates a Sampler. runner is usually an *ExecRunner.
func New(cfg Config, runner Runner) *Sampler {
	return &Sampler{cfg: cfg, runner: runner}
}

// Args builds the tool's argument list. Events appear in set order; the
// report comes back in the same order.
func (s *Sampler) Args(set *counter.Set, command []string) []string {
	args := []string{"stat", "-x" + Separator, "--log-fd", strconv.Itoa(ReportFD)}
	for _, e := range set.Events() {
		args = append(args, "-e", string(e))
	}
	return append(args, command...)
}

// Sample runs command under the sampling tool exactly once and returns the
// counts for set. If the tool or the workload fails, the returned error is
// an *ExitError carrying its status and no counts are produced.
func (s *Sampler) Sample(ctx context.Context, set *counter.Set, command []string) (counter.Counts, error) {
	if len(command) == 0 {
		return counter.Counts{}, errors.New("no workload command given")
	}
	if set.Len() == 0 {
		return counter.Counts{}, errors.New("no events requested")
	}

	args := s.Args(set, command)
	log.Debugf("Sampling command: %s %s", s.cfg.Tool, strings.Join(args, " "))

	var report bytes.Buffer
	if err := s.runner.Run(ctx, s.cfg.Tool, args, &report); err != nil {
		return counter.Counts{}, err
	}
	return ParseReport(&report, set)
}
