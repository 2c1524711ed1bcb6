package p4

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
)

// ExecResult holds the captured output of one p4 process.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Executor launches the p4 executable. argv[0] is the executable; stdin, when
// non-nil, is written to the process and the stream closed.
type Executor interface {
	Execute(argv []string, stdin []byte) (*ExecResult, error)
}

// OSExecutor runs commands as child processes.
type OSExecutor struct {
	// WorkDir is the working directory of the child; empty means inherit.
	WorkDir string
}

// Execute spawns argv and blocks until the process exits.
// A non-zero exit code is reported through ExecResult, not as an error.
func (e *OSExecutor) Execute(argv []string, stdin []byte) (*ExecResult, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("exec error: empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if e.WorkDir != "" {
		cmd.Dir = e.WorkDir
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("exec error: %w", err)
		}
	}

	return &ExecResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
	}, nil
}
