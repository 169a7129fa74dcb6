//go:build linux

package platform

import (
	"bytes"
	"fmt"
	"runtime"

	"github.com/elastic/go-perf"
	"golang.org/x/sys/unix"
)

// KernelRelease returns the running kernel release, or "" if unknown.
func KernelRelease() string {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return ""
	}
	return string(bytes.TrimRight(uname.Release[:], "\x00"))
}

// openCycleCounter opens and reads a user-space cycle counter on the calling
// thread, the least privilege any sampling run needs.
func openCycleCounter() error {
	attr := new(perf.Attr)
	if err := perf.CPUCycles.Configure(attr); err != nil {
		return fmt.Errorf("configure cycles: %w", err)
	}
	attr.Options.Disabled = true
	attr.Options.ExcludeKernel = true
	attr.Options.ExcludeHypervisor = true

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ev, err := perf.Open(attr, perf.CallingThread, perf.AnyCPU, nil)
	if err != nil {
		return fmt.Errorf("perf_event_open: %w", err)
	}
	defer ev.Close()

	if _, err := ev.Measure(func() {}); err != nil {
		return fmt.Errorf("read cycles: %w", err)
	}
	return nil
}
