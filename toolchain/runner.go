// Package toolchain runs the external tools the build depends on: the
// TensorFlow dependency script, make, clang, the C++ compiler and ar.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command describes a single external tool invocation.
type Command struct {
	Dir  string
	Name string
	Args []string
	Env  []string // appended to the current environment

	// Stream, when set, receives the tool's output as it is produced.
	// The output is captured either way.
	Stream io.Writer

	// Stdout, when set, receives standard output exclusively; only standard
	// error is captured then.
	Stdout io.Writer
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Runner interacts with the environment and executes tools.
type Runner interface {
	// Run executes the command and returns its combined stdout/stderr.
	// A non-zero exit is reported as a *ToolError.
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ToolError carries the verbatim output of a failed tool.
type ToolError struct {
	Command  string
	Dir      string
	ExitCode int
	Output   []byte
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s (dir=%s): %v", e.Command, e.Dir, e.Err)
	if len(e.Output) > 0 {
		msg += "\n" + string(e.Output)
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// OSRunner runs commands as child processes.
type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var out bytes.Buffer
	var w io.Writer = &out
	if c.Stream != nil {
		w = io.MultiWriter(&out, c.Stream)
	}
	cmd.Stdout = w
	cmd.Stderr = w
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	}

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return out.Bytes(), &ToolError{
			Command:  c.String(),
			Dir:      c.Dir,
			ExitCode: code,
			Output:   out.Bytes(),
			Err:      err,
		}
	}
	return out.Bytes(), nil
}
