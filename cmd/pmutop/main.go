// pmutop measures where an Ivy Bridge core spends its issue slots.
//
// It runs a workload once under a perf stat front end (ocperf.py by
// default), evaluates the Top-Down hierarchy or the outstanding-read
// histogram over the counts and prints the result.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	diffpkg "github.com/dmitriimaksimovdevelop/pmutop/internal/diff"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/memload"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/model"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/orchestrator"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/output"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/platform"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/sampler"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	sampler  string
	procRoot string
	useCPUID bool
	verbose  bool
}

func (g *globalOptions) samplerConfig() sampler.Config {
	cfg := sampler.DefaultConfig()
	if g.sampler != "" {
		cfg.Tool = g.sampler
	}
	return cfg
}

func (g *globalOptions) platformConfig() platform.Config {
	cfg := platform.DefaultConfig()
	cfg.ProcRoot = g.procRoot
	cfg.UseCPUID = g.useCPUID
	return cfg
}

func (g *globalOptions) orchestrator(maxCmask int) *orchestrator.Orchestrator {
	scfg := g.samplerConfig()
	s := sampler.New(scfg, sampler.NewExecRunner(scfg.SearchPaths))

	pcfg := g.platformConfig()
	identify := func() (platform.Identity, error) { return platform.Detect(pcfg) }

	cfg := orchestrator.DefaultConfig()
	cfg.SamplerName = scfg.Tool
	cfg.MaxCmask = maxCmask
	return orchestrator.New(s, identify, cfg)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(exitStatus(err))
	}
}

// exitStatus maps an error to the process exit status: a failed sampler or
// workload passes its own status through, anything else is 1.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *sampler.ExitError
	if errors.As(err, &exitErr) && exitErr.Status > 0 {
		return exitErr.Status
	}
	return 1
}

func setupLogging(verbose bool) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp: true,
	})
	if verbose {
		log.SetLevel(log.DebugLevel)
		log.Debug("Debug logging is enabled")
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "pmutop",
		Short: "Top-Down bottleneck analysis for Ivy Bridge",
		Long: `pmutop runs a workload once under a perf stat front end and explains
where the core spent its issue slots.

  topdown   retiring, bad speculation, front end and back end bound,
            broken down to cache levels and memory bandwidth/latency
  memload   histogram of outstanding demand data reads per cycle

Only Ivy Bridge (06_3AH, 06_3EH) is supported.`,
		Version:       orchestrator.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(opts.verbose)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.sampler, "sampler", "", "Sampling tool (default ocperf.py, or $"+sampler.ToolEnv+")")
	pf.StringVar(&opts.procRoot, "proc", platform.DefaultConfig().ProcRoot, "procfs mount point")
	pf.BoolVar(&opts.useCPUID, "cpuid", false, "Read the CPU identity with CPUID instead of /proc/cpuinfo")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newTopdownCmd(opts),
		newMemloadCmd(opts),
		newEventsCmd(),
		newCapabilitiesCmd(opts),
		newDiffCmd(),
		newMCPCmd(),
	)
	return rootCmd
}

// reportFlags select the outputs written after a measurement.
type reportFlags struct {
	jsonPath string
	summary  bool
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.jsonPath, "json", "", "Also write the JSON report to this path (- for stdout only)")
	cmd.Flags().BoolVar(&f.summary, "summary", false, "Print bottlenecks and next steps after the result")
}

// emit renders report with render unless JSON goes to stdout.
func (f *reportFlags) emit(w io.Writer, report *model.Report, render func(io.Writer) error) error {
	if f.jsonPath == "-" {
		return output.EncodeJSON(w, report)
	}
	if err := render(w); err != nil {
		return err
	}
	if f.summary {
		if _, err := fmt.Fprint(w, "\n"+output.FormatSummary(report)); err != nil {
			return err
		}
	}
	if f.jsonPath != "" {
		return output.WriteJSON(report, f.jsonPath)
	}
	return nil
}

func newTopdownCmd(opts *globalOptions) *cobra.Command {
	var rf reportFlags

	cmd := &cobra.Command{
		Use:   "topdown [flags] [--] <command> [args...]",
		Short: "Break the workload's issue slots down by bottleneck",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := opts.orchestrator(memload.DefaultMaxCmask).RunTopdown(context.Background(), args)
			if err != nil {
				return err
			}
			return rf.emit(cmd.OutOrStdout(), report, func(w io.Writer) error {
				return output.RenderTopdown(w, report.Topdown)
			})
		},
	}
	cmd.Flags().SetInterspersed(false)
	rf.register(cmd)
	return cmd
}

func newMemloadCmd(opts *globalOptions) *cobra.Command {
	var (
		rf       reportFlags
		maxCmask int
	)

	cmd := &cobra.Command{
		Use:   "memload [flags] [--] <command> [args...]",
		Short: "Estimate how many demand reads are outstanding per cycle",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := opts.orchestrator(maxCmask).RunMemload(context.Background(), args)
			if err != nil {
				return err
			}
			if err := rf.emit(cmd.OutOrStdout(), report, func(w io.Writer) error {
				return output.RenderMemload(w, report.Memload)
			}); err != nil {
				return err
			}
			if report.Memload.Truncated {
				log.Warnf("Highest cmask has non-zero event count %d", report.Memload.Overflow)
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().IntVar(&maxCmask, "max-cmask", memload.DefaultMaxCmask, "Highest counter-mask threshold to sample")
	rf.register(cmd)
	return cmd
}

func newEventsCmd() *cobra.Command {
	var maxCmask int

	cmd := &cobra.Command{
		Use:       "events <analysis>",
		Short:     "Print the counters an analysis samples, in request order",
		Args:      cobra.ExactArgs(1),
		ValidArgs: orchestrator.AnalysisNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := orchestrator.GetAnalysis(args[0])
			if err != nil {
				return err
			}
			if err := memload.CheckMaxCmask(maxCmask); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, e := range analysis.Events(maxCmask).Events() {
				fmt.Fprintln(w, e)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxCmask, "max-cmask", memload.DefaultMaxCmask, "Highest counter-mask threshold (memload)")
	return cmd
}

func newCapabilitiesCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "Show whether this host can run topdown and memload",
		RunE: func(cmd *cobra.Command, args []string) error {
			scfg := opts.samplerConfig()
			caps := platform.Probe(opts.platformConfig(), func() (string, error) {
				return sampler.ResolveTool(scfg.Tool, scfg.SearchPaths)
			})

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(caps)
			}
			_, err := fmt.Fprint(w, platform.FormatCapabilities(caps))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print capabilities as JSON")
	return cmd
}

func newDiffCmd() *cobra.Command {
	var diffOutput string

	cmd := &cobra.Command{
		Use:   "diff <baseline.json> <current.json>",
		Short: "Compare two saved topdown reports",
		Long:  "Match categories by path and report regressions and improvements in percentage points.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd.OutOrStdout(), args[0], args[1], diffOutput)
		},
	}
	cmd.Flags().StringVarP(&diffOutput, "output", "o", "-", "Output diff file path")
	return cmd
}

// runDiff handles the `diff` command.
func runDiff(w io.Writer, baselinePath, currentPath, outputPath string) error {
	baseline, err := diffpkg.LoadReport(baselinePath)
	if err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}
	current, err := diffpkg.LoadReport(currentPath)
	if err != nil {
		return fmt.Errorf("load current: %w", err)
	}

	result := diffpkg.Compare(baseline, current)

	if outputPath == "-" {
		_, err := fmt.Fprint(w, diffpkg.FormatDiff(result))
		return err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0644)
}
