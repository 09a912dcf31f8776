package farm

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/backmassage/autoencode/internal/graph"
)

// ExecResult holds the outcome of a single invocation.
type ExecResult struct {
	Stderr string
	Err    error
}

// Executor runs one node command.
type Executor interface {
	Execute(ctx context.Context, cmd graph.Command) ExecResult
}

// ExecExecutor runs commands as local processes. When Verbose is set stderr
// is tee'd to os.Stderr in real time; otherwise it is captured silently for
// classification.
type ExecExecutor struct {
	Verbose bool
}

func (e ExecExecutor) Execute(ctx context.Context, c graph.Command) ExecResult {
	cmd := exec.CommandContext(ctx, c.Executable, c.Args...)
	cmd.Dir = c.WorkDir

	var stderrBuf bytes.Buffer
	if e.Verbose {
		cmd.Stderr = io.MultiWriter(&stderrBuf, os.Stderr)
	} else {
		cmd.Stderr = &stderrBuf
	}

	err := cmd.Run()
	return ExecResult{
		Stderr: stderrBuf.String(),
		Err:    err,
	}
}
