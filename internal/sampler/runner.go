package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ReportFD is the descriptor number the sampling tool sees for the report
// pipe. exec.Cmd maps ExtraFiles[0] to fd 3 in the child.
const ReportFD = 3

// Runner launches the sampling tool and waits for it. Everything the tool
// writes to ReportFD is copied to report; the tool's own stdio (and so the
// workload's) is left to the Runner.
type Runner interface {
	Run(ctx context.Context, tool string, args []string, report io.Writer) error
}

// ExitError is returned when the sampling tool, or the workload it wraps,
// exits unsuccessfully.
type ExitError struct {
	Tool   string
	Status int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Tool, e.Status)
}

// ExecRunner runs the tool as a child process sharing this process's
// terminal.
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// SearchPaths are tried after $PATH when resolving the tool.
	SearchPaths []string
}

// NewExecRunner returns an ExecRunner attached to the standard streams.
func NewExecRunner(searchPaths []string) *ExecRunner {
	return &ExecRunner{
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		SearchPaths: searchPaths,
	}
}

// gracefulShutdownTimeout is how long we wait after SIGINT before sending SIGKILL.
const gracefulShutdownTimeout = 3 * time.Second

// Run starts tool with args and blocks until it exits. The report pipe is
// drained concurrently so a large report cannot stall the tool.
//
// The context is only consulted for cancellation: SIGINT is forwarded to the
// tool so it can print what it has, then SIGKILL after
// gracefulShutdownTimeout.
func (r *ExecRunner) Run(ctx context.Context, tool string, args []string, report io.Writer) error {
	path, err := ResolveTool(tool, r.SearchPaths)
	if err != nil {
		return err
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("report pipe: %w", err)
	}
	defer pr.Close()

	cmd := exec.Command(path, args...)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.ExtraFiles = []*os.File{pw}

	if err := cmd.Start(); err != nil {
		pw.Close()
		return fmt.Errorf("start %s: %w", tool, err)
	}
	// Only the child holds the write end now, so the reader sees EOF once
	// the tool exits.
	pw.Close()
	log.Debugf("Started %s (pid %d)", path, cmd.Process.Pid)

	var g errgroup.Group
	g.Go(func() error {
		if _, err := io.Copy(report, pr); err != nil {
			return fmt.Errorf("read report: %w", err)
		}
		return nil
	})

	exited := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Signal(syscall.SIGINT)
			select {
			case <-exited:
			case <-time.After(gracefulShutdownTimeout):
				_ = cmd.Process.Signal(os.Kill)
			}
		case <-exited:
		}
	}()

	waitErr := cmd.Wait()
	close(exited)
	copyErr := g.Wait()

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Tool: tool, Status: exitStatus(exitErr)}
		}
		return fmt.Errorf("wait %s: %w", tool, waitErr)
	}
	return copyErr
}

// exitStatus follows the shell convention of 128+signal for a process
// killed by a signal.
func exitStatus(err *exec.ExitError) int {
	if ws, ok := err.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return err.ExitCode()
}
