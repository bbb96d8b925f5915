// Package vcs obtains a working copy of a recipe's source tree.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goplus/llrecipe/internal/shell"
)

// ErrSourceFetchFailed is returned when a working copy cannot be produced:
// the remote is unreachable, the clone was interrupted, or the target
// directory is already occupied.
var ErrSourceFetchFailed = errors.New("source fetch failed")

// VCS defines the interface for version control operations.
type VCS interface {
	// Clone creates a fresh working copy of remote at dir.
	// ref can be a branch or a tag; empty means the remote's default branch.
	// dir must not exist or be empty; Clone never merges into existing content.
	Clone(ctx context.Context, remote, ref, dir string) error

	// Revision returns the commit hash checked out in dir.
	Revision(ctx context.Context, dir string) (string, error)

	// Latest returns the latest commit hash (HEAD) from the remote repository.
	Latest(ctx context.Context, remote string) (string, error)
}

// gitVCS implements VCS using the git command.
type gitVCS struct {
	git    string
	depth  int
	runner shell.Runner
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

// WithRunner sets the runner git is executed with.
func WithRunner(r shell.Runner) GitOption {
	return func(g *gitVCS) {
		g.runner = r
	}
}

// WithDepth makes clones shallow. Zero fetches the full history.
func WithDepth(depth int) GitOption {
	return func(g *gitVCS) {
		g.depth = depth
	}
}

// NewGitVCS creates a new git VCS instance.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{git: "git", depth: 1}
	for _, opt := range opts {
		opt(g)
	}
	if g.runner == nil {
		g.runner = shell.New()
	}
	return g
}

func (g *gitVCS) Clone(ctx context.Context, remote, ref, dir string) error {
	if err := checkTarget(dir); err != nil {
		return err
	}
	args := []string{"clone"}
	if g.depth > 0 {
		args = append(args, "--depth", fmt.Sprint(g.depth))
	}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, remote, dir)
	if _, err := g.runner.Run(ctx, shell.Cmd{Name: g.git, Args: args}); err != nil {
		return fmt.Errorf("%w: clone %s: %w", ErrSourceFetchFailed, remote, err)
	}
	return nil
}

func (g *gitVCS) Revision(ctx context.Context, dir string) (string, error) {
	res, err := g.runner.Run(ctx, shell.Cmd{Name: g.git, Args: []string{"rev-parse", "HEAD"}, Dir: dir})
	if err != nil {
		return "", fmt.Errorf("rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(string(res.Output)), nil
}

func (g *gitVCS) Latest(ctx context.Context, remote string) (string, error) {
	res, err := g.runner.Run(ctx, shell.Cmd{Name: g.git, Args: []string{"ls-remote", remote, "HEAD"}})
	if err != nil {
		return "", fmt.Errorf("get remote HEAD: %w", err)
	}

	output := strings.TrimSpace(string(res.Output))
	if output == "" {
		return "", fmt.Errorf("no HEAD found in remote %s", remote)
	}

	// format: <hash>\tHEAD
	hash, _, _ := strings.Cut(output, "\t")
	return hash, nil
}

// checkTarget fails fast when dir already holds content.
func checkTarget(dir string) error {
	entries, err := os.ReadDir(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("%w: %w", ErrSourceFetchFailed, err)
	case len(entries) > 0:
		return fmt.Errorf("%w: target %s is not empty", ErrSourceFetchFailed, dir)
	}
	return nil
}
