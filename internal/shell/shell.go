// Package shell runs external tools (git, cmake) on behalf of a recipe.
//
// Every stage that shells out does so through a [Runner], so tests can
// substitute a fake and assert on the exact command lines without cloning
// or compiling anything.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"

	"github.com/qiniu/x/gsh"
)

// Cmd describes a single external process invocation.
type Cmd struct {
	Name string
	Args []string
	Dir  string            // working directory; empty means the current one
	Env  map[string]string // overrides on top of the host environment
}

// String returns the command line, space separated.
func (c Cmd) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is what a finished process left behind.
type Result struct {
	ExitCode int
	Output   []byte // stdout and stderr, interleaved
}

// Runner runs a command and blocks until it exits.
//
// A non-nil error means the command could not be started or exited with a
// non-zero status. Implementations return a *ExitError in the latter case
// so callers can report the status and the tool's own diagnostics.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (*Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Cmd) (*Result, error)

// Run calls f(ctx, cmd).
func (f RunnerFunc) Run(ctx context.Context, cmd Cmd) (*Result, error) {
	return f(ctx, cmd)
}

// ExitError reports a command that failed.
type ExitError struct {
	Cmd    Cmd
	Code   int // -1 if the process never ran
	Output string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Cmd.Name, e.Code)
	if e.Code < 0 && e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Cmd.Name, e.Err)
	}
	if out := lastLines(e.Output, 10); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------

type sysRunner struct {
	stream io.Writer
}

// Option configures the host runner.
type Option func(*sysRunner)

// WithStream copies tool output to w while it is being captured.
func WithStream(w io.Writer) Option {
	return func(r *sysRunner) {
		r.stream = w
	}
}

// New returns a Runner that executes commands on the host.
func New(opts ...Option) Runner {
	r := &sysRunner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *sysRunner) Run(ctx context.Context, c Cmd) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = mergeEnv(gsh.Sys.Environ(), c.Env)
	}

	var buf bytes.Buffer
	var w io.Writer = &buf
	if r.stream != nil {
		w = io.MultiWriter(&buf, r.stream)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	err := gsh.Sys.Run(cmd)
	res := &Result{Output: buf.Bytes()}
	if err == nil {
		return res, nil
	}

	res.ExitCode = -1
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		res.ExitCode = ee.ExitCode()
	}
	return res, &ExitError{Cmd: c, Code: res.ExitCode, Output: buf.String(), Err: err}
}

// mergeEnv returns base with every key in override replaced or added,
// sorted by key.
func mergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base)+len(override))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}

func lastLines(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
