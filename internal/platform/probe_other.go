//go:build !linux

package platform

import "errors"

// KernelRelease returns "" off linux.
func KernelRelease() string { return "" }

func openCycleCounter() error {
	return errors.New("hardware counters need linux perf_event")
}
