// Package orchestrator runs one measurement end to end: gate on the CPU,
// sample the workload once, evaluate and summarize.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dmitriimaksimovdevelop/pmutop/internal/counter"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/memload"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/model"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/platform"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/topdown"
)

// Version is reported in every report's metadata.
var Version = "0.1.0"

// Sampler gathers counts for one workload run. *sampler.Sampler
// implements it.
type Sampler interface {
	Sample(ctx context.Context, set *counter.Set, command []string) (counter.Counts, error)
}

// IdentifyFunc reads the CPU identity.
type IdentifyFunc func() (platform.Identity, error)

// Config holds per-run settings.
type Config struct {
	// SamplerName is recorded in the report metadata.
	SamplerName string

	// MaxCmask is the highest counter-mask threshold for memload.
	MaxCmask int
}

// DefaultConfig returns the settings used when no flags are given.
func DefaultConfig() Config {
	return Config{SamplerName: "ocperf.py", MaxCmask: memload.DefaultMaxCmask}
}

// Orchestrator coordinates identity gating, sampling and evaluation.
type Orchestrator struct {
	sampler  Sampler
	identify IdentifyFunc
	config   Config
}

// New creates an Orchestrator.
func New(s Sampler, identify IdentifyFunc, cfg Config) *Orchestrator {
	return &Orchestrator{sampler: s, identify: identify, config: cfg}
}

// gate reads the CPU identity and rejects unsupported processors. It runs
// before anything is spawned.
func (o *Orchestrator) gate() (platform.Identity, error) {
	id, err := o.identify()
	if err != nil {
		return platform.Identity{}, err
	}
	if err := platform.Check(id); err != nil {
		return id, err
	}
	log.Debugf("CPU %s supported", id)
	return id, nil
}

// RunTopdown measures command and evaluates the Top-Down tree.
func (o *Orchestrator) RunTopdown(ctx context.Context, command []string) (*model.Report, error) {
	id, err := o.gate()
	if err != nil {
		return nil, err
	}

	analysis, _ := GetAnalysis("topdown")
	set := analysis.Events(0)
	start := time.Now()
	counts, err := o.sampler.Sample(ctx, set, command)
	if err != nil {
		return nil, err
	}

	td := &model.TopdownResult{}
	for _, r := range topdown.Tree.Evaluate(counts) {
		td.Append(r.Label, r.Depth, r.Value)
	}

	report := &model.Report{
		Metadata: o.buildMetadata(analysis.Name, id, command, time.Since(start)),
		Topdown:  td,
		Counts:   countsMap(counts),
	}
	model.Summarize(report)
	log.Debugf("Topdown complete: %d metrics, %d bottlenecks", len(td.Metrics), len(report.Summary.Bottlenecks))
	return report, nil
}

// RunMemload measures command with a counter-mask sweep up to the
// configured maximum and estimates the outstanding-read histogram. A
// non-zero count at the highest threshold marks the result Truncated; the
// report is still produced.
func (o *Orchestrator) RunMemload(ctx context.Context, command []string) (*model.Report, error) {
	maxCmask := o.config.MaxCmask
	if err := memload.CheckMaxCmask(maxCmask); err != nil {
		return nil, err
	}

	id, err := o.gate()
	if err != nil {
		return nil, err
	}

	analysis, _ := GetAnalysis("memload")
	set := analysis.Events(maxCmask)
	start := time.Now()
	counts, err := o.sampler.Sample(ctx, set, command)
	if err != nil {
		return nil, err
	}

	h, err := memload.Estimate(counts, maxCmask)
	if err != nil {
		return nil, err
	}
	if h.Cycles == 0 {
		return nil, fmt.Errorf("%s counted 0 cycles", memload.CyclesEvent)
	}

	result := &model.MemloadResult{
		MaxCmask:  maxCmask,
		Cycles:    h.Cycles,
		Overflow:  h.Overflow,
		Truncated: h.Truncated(),
		Buckets:   make([]model.HistBucket, 0, len(h.Buckets)),
	}
	for _, b := range h.Buckets {
		result.Buckets = append(result.Buckets, model.HistBucket{Outstanding: b.Outstanding, Percent: b.Percent})
	}

	report := &model.Report{
		Metadata: o.buildMetadata(analysis.Name, id, command, time.Since(start)),
		Memload:  result,
		Counts:   countsMap(counts),
	}
	model.Summarize(report)
	return report, nil
}

// buildMetadata constructs Metadata from the current system and run.
func (o *Orchestrator) buildMetadata(analysis string, id platform.Identity, command []string, elapsed time.Duration) model.Metadata {
	hostname, _ := os.Hostname()

	return model.Metadata{
		Tool:          "pmutop",
		Version:       Version,
		SchemaVersion: model.SchemaVersion,
		Hostname:      hostname,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Duration:      elapsed.Round(time.Millisecond).String(),
		Analysis:      analysis,
		Command:       command,
		Sampler:       o.config.SamplerName,
		CPU:           id.String(),
		KernelVersion: platform.KernelRelease(),
		Arch:          runtime.GOARCH,
	}
}

func countsMap(c counter.Counts) map[string]uint64 {
	m := make(map[string]uint64, c.Len())
	for e, v := range c.Map() {
		m[string(e)] = v
	}
	return m
}
