package sampler

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultSearchPaths are where pmu-tools checkouts usually live when
// ocperf.py is not on $PATH.
var DefaultSearchPaths = []string{
	"/usr/local/bin",
	"/usr/share/pmu-tools",
	"/usr/local/share/pmu-tools",
	"/opt/pmu-tools",
}

// ResolveTool finds the sampling tool. A name containing a path separator
// is used as given; otherwise $PATH is searched first, then searchPaths.
func ResolveTool(tool string, searchPaths []string) (string, error) {
	if strings.ContainsRune(tool, filepath.Separator) {
		if err := checkExecutable(tool); err != nil {
			return "", err
		}
		return tool, nil
	}

	if path, err := exec.LookPath(tool); err == nil {
		return path, nil
	}

	for _, dir := range searchPaths {
		path := filepath.Join(dir, tool)
		if checkExecutable(path) == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("sampling tool %q not found in $PATH or %v", tool, searchPaths)
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%q is a directory", path)
	}
	if info.Mode().Perm()&0111 == 0 {
		return fmt.Errorf("%q is not executable (mode=%s)", path, info.Mode())
	}
	return nil
}
