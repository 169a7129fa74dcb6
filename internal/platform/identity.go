// Package platform identifies the running CPU and decides whether the
// Top-Down formulas apply to it.
package platform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/prometheus/procfs"
)

// ErrIdentityUnavailable is wrapped when the CPU family or model cannot be
// read.
var ErrIdentityUnavailable = errors.New("cpu identity unavailable")

// Identity is the x86 (family, model) pair.
type Identity struct {
	Family int `json:"family"`
	Model  int `json:"model"`
}

// String renders the identity the way Intel documents it, e.g. "06_3AH".
func (id Identity) String() string {
	return fmt.Sprintf("%02X_%02XH", id.Family, id.Model)
}

// Supported lists the processors whose counters the formulas were written
// for: Ivy Bridge client (06_3A) and server (06_3E).
var Supported = []Identity{
	{Family: 0x06, Model: 0x3A},
	{Family: 0x06, Model: 0x3E},
}

// UnsupportedError reports a CPU outside Supported.
type UnsupportedError struct {
	Identity Identity
}

func (e *UnsupportedError) Error() string {
	return "unsupported CPU model " + e.Identity.String()
}

// Check returns an *UnsupportedError unless id is in Supported.
func Check(id Identity) error {
	for _, s := range Supported {
		if s == id {
			return nil
		}
	}
	return &UnsupportedError{Identity: id}
}

// Config selects where the identity is read from.
type Config struct {
	// ProcRoot is the procfs mount point.
	ProcRoot string

	// UseCPUID reads the identity with the CPUID instruction instead of
	// /proc/cpuinfo.
	UseCPUID bool
}

// DefaultConfig reads /proc/cpuinfo.
func DefaultConfig() Config {
	return Config{ProcRoot: procfs.DefaultMountPoint}
}

// Detect reads the identity from the configured source.
func Detect(cfg Config) (Identity, error) {
	if cfg.UseCPUID {
		return FromCPUID()
	}
	return FromProcfs(cfg.ProcRoot)
}

// FromProcfs reads "cpu family" and "model" of the first processor listed
// in <root>/cpuinfo.
func FromProcfs(root string) (Identity, error) {
	fs, err := procfs.NewFS(root)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: open %s: %v", ErrIdentityUnavailable, root, err)
	}
	infos, err := fs.CPUInfo()
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	if len(infos) == 0 {
		return Identity{}, fmt.Errorf("%w: no processors in %s/cpuinfo", ErrIdentityUnavailable, root)
	}

	family, err := strconv.Atoi(strings.TrimSpace(infos[0].CPUFamily))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: cpu family %q", ErrIdentityUnavailable, infos[0].CPUFamily)
	}
	model, err := strconv.Atoi(strings.TrimSpace(infos[0].Model))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: model %q", ErrIdentityUnavailable, infos[0].Model)
	}
	return Identity{Family: family, Model: model}, nil
}

// FromCPUID reads the identity of the current core.
func FromCPUID() (Identity, error) {
	if cpuid.CPU.Family == 0 {
		return Identity{}, fmt.Errorf("%w: CPUID reported no family (vendor %s)",
			ErrIdentityUnavailable, cpuid.CPU.VendorString)
	}
	return Identity{Family: cpuid.CPU.Family, Model: cpuid.CPU.Model}, nil
}
