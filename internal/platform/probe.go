package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Capabilities describes whether this host can produce a Top-Down report.
type Capabilities struct {
	KernelRelease string `json:"kernel_release"`

	// PerfEventParanoid is the kernel.perf_event_paranoid sysctl, or nil if
	// it could not be read.
	PerfEventParanoid *int `json:"perf_event_paranoid,omitempty"`

	HardwareCounters   bool      `json:"hardware_counters"`
	HardwareCounterErr string    `json:"hardware_counter_error,omitempty"`
	SamplerPath        string    `json:"sampler_path,omitempty"`
	SamplerErr         string    `json:"sampler_error,omitempty"`
	CPU                *Identity `json:"cpu,omitempty"`
	CPUErr             string    `json:"cpu_error,omitempty"`
	CPUSupported       bool      `json:"cpu_supported"`
}

// Ready reports whether sampling is expected to work.
func (c *Capabilities) Ready() bool {
	return c.HardwareCounters && c.SamplerPath != "" && c.CPUSupported
}

// Probe inspects the host. resolveSampler locates the sampling tool.
func Probe(cfg Config, resolveSampler func() (string, error)) *Capabilities {
	caps := &Capabilities{KernelRelease: KernelRelease()}

	if v, err := readParanoid(cfg.ProcRoot); err == nil {
		caps.PerfEventParanoid = &v
	}

	if err := openCycleCounter(); err != nil {
		caps.HardwareCounterErr = err.Error()
	} else {
		caps.HardwareCounters = true
	}

	if path, err := resolveSampler(); err != nil {
		caps.SamplerErr = err.Error()
	} else {
		caps.SamplerPath = path
	}

	id, err := Detect(cfg)
	if err != nil {
		caps.CPUErr = err.Error()
		return caps
	}
	caps.CPU = &id
	caps.CPUSupported = Check(id) == nil
	return caps
}

func readParanoid(procRoot string) (int, error) {
	data, err := os.ReadFile(filepath.Join(procRoot, "sys", "kernel", "perf_event_paranoid"))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// FormatCapabilities returns a human-readable summary.
func FormatCapabilities(c *Capabilities) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Kernel: %s\n", orUnknown(c.KernelRelease))
	if c.PerfEventParanoid != nil {
		fmt.Fprintf(&sb, "perf_event_paranoid: %d\n", *c.PerfEventParanoid)
	} else {
		sb.WriteString("perf_event_paranoid: unknown\n")
	}
	sb.WriteString("\n")

	writeCheck(&sb, c.HardwareCounters, "hardware cycle counter", c.HardwareCounterErr)
	writeCheck(&sb, c.SamplerPath != "", "sampling tool "+c.SamplerPath, c.SamplerErr)

	cpu := "cpu"
	if c.CPU != nil {
		cpu = "cpu " + c.CPU.String()
	}
	detail := c.CPUErr
	if detail == "" && !c.CPUSupported {
		detail = "not an Ivy Bridge processor"
	}
	writeCheck(&sb, c.CPUSupported, cpu, detail)

	if c.Ready() {
		sb.WriteString("\nReady for topdown and memload.\n")
	}
	return sb.String()
}

func writeCheck(sb *strings.Builder, ok bool, what, detail string) {
	status := "✗"
	if ok {
		status = "✓"
	}
	fmt.Fprintf(sb, "  %s %s", status, strings.TrimSpace(what))
	if !ok && detail != "" {
		fmt.Fprintf(sb, ": %s", detail)
	}
	sb.WriteString("\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
