// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package cliexec invokes the Salesforce CLI and parses its JSON output.
//
// The CLI routinely emits structured errors on stdout with a non-zero
// exit code, so JSON commands prefer stdout even on failure and only
// fall back to an enriched error when stdout is not parseable.
package cliexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/forcedev/sfmcp/pkg/logger"
)

// maxOutputBytes caps captured stdout/stderr at 100 MiB per stream.
const maxOutputBytes = 100 << 20

// errTailBytes is how much of each stream an error message carries.
const errTailBytes = 2048

// ErrCLI is the sentinel wrapped by all CLI execution failures.
var ErrCLI = errors.New("sf CLI error")

// Runner runs Salesforce CLI commands. The production implementation
// spawns the binary; tests substitute fakes.
type Runner interface {
	// Run executes the CLI with the given argument vector and returns the
	// captured output. A non-zero exit is reported through Output.ExitCode,
	// not as an error; errors mean the process could not be run at all.
	Run(ctx context.Context, args ...string) (*Output, error)

	// RunJSON executes a command expected to emit JSON (appending --json
	// when absent) and returns the parsed document.
	RunJSON(ctx context.Context, args ...string) (gjson.Result, error)
}

// Output is the captured result of one CLI invocation.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Executor spawns the external CLI in the current working directory.
type Executor struct {
	// Command is the CLI binary, normally "sf".
	Command string
}

// New creates an executor for the given CLI binary.
func New(command string) *Executor {
	if command == "" {
		command = "sf"
	}
	return &Executor{Command: command}
}

// limitedBuffer caps the bytes retained from a child process stream.
// Overflow is discarded rather than failing the command.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - b.buf.Len()
	if remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

// Run executes the CLI synchronously. The argument vector is passed to the
// OS directly (no shell), so user-supplied strings are never interpolated.
//
// Cancellation is deliberate: a cancelled context stops new work but an
// in-flight CLI process is allowed to finish, so the org is never left in
// an indeterminate state by a killed deploy or DML.
func (e *Executor) Run(ctx context.Context, args ...string) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Debugw("running sf CLI", "command", e.Command, "args", strings.Join(args, " "))

	cmd := exec.Command(e.Command, args...)
	stdout := &limitedBuffer{max: maxOutputBytes}
	stderr := &limitedBuffer{max: maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	out := &Output{
		Stdout: stdout.buf.Bytes(),
		Stderr: stderr.buf.Bytes(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return out, nil
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	default:
		return nil, fmt.Errorf("%w: failed to run %q: %v", ErrCLI, e.Command, err)
	}
}

// RunJSON executes a command expected to emit JSON. --json is appended when
// the caller did not pass it. Stdout is preferred even when the child
// returned non-zero; only unparseable output becomes an error, enriched
// with both stream tails.
func (e *Executor) RunJSON(ctx context.Context, args ...string) (gjson.Result, error) {
	if !containsFlag(args, "--json") {
		args = append(args, "--json")
	}

	out, err := e.Run(ctx, args...)
	if err != nil {
		return gjson.Result{}, err
	}

	stdout := bytes.TrimSpace(out.Stdout)
	if gjson.ValidBytes(stdout) && len(stdout) > 0 {
		return gjson.ParseBytes(stdout), nil
	}

	return gjson.Result{}, fmt.Errorf("%w: %q exited %d with unparseable output; stdout: %s; stderr: %s",
		ErrCLI, strings.Join(args, " "), out.ExitCode, tail(out.Stdout), tail(out.Stderr))
}

func containsFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > errTailBytes {
		s = "…" + s[len(s)-errTailBytes:]
	}
	if s == "" {
		return "(empty)"
	}
	return s
}
