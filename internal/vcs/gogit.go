package vcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// goGitVCS implements VCS in-process with go-git, for hosts without a git
// binary.
type goGitVCS struct {
	progress io.Writer
}

// NewGoGitVCS creates a VCS backed by go-git. Clone progress is written to
// progress if it is not nil.
func NewGoGitVCS(progress io.Writer) VCS {
	return &goGitVCS{progress: progress}
}

func (g *goGitVCS) Clone(ctx context.Context, remote, ref, dir string) error {
	if err := checkTarget(dir); err != nil {
		return err
	}
	opts := &git.CloneOptions{
		URL:          remote,
		Depth:        1,
		SingleBranch: true,
		Progress:     g.progress,
	}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
	}
	_, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil && ref != "" && missingRef(err) {
		// ref may name a tag rather than a branch
		os.RemoveAll(dir)
		opts.ReferenceName = plumbing.NewTagReferenceName(ref)
		_, err = git.PlainCloneContext(ctx, dir, false, opts)
	}
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("%w: clone %s: %w", ErrSourceFetchFailed, remote, err)
	}
	return nil
}

// missingRef reports whether a clone failed only because the remote has no
// such reference.
func missingRef(err error) bool {
	return errors.Is(err, plumbing.ErrReferenceNotFound) ||
		errors.Is(err, git.NoMatchingRefSpecError{})
}

func (g *goGitVCS) Revision(ctx context.Context, dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

func (g *goGitVCS) Latest(ctx context.Context, remote string) (string, error) {
	rem := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{remote},
	})
	refs, err := rem.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("get remote HEAD: %w", err)
	}

	var head *plumbing.Reference
	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, ref := range refs {
		byName[ref.Name()] = ref
		if ref.Name() == plumbing.HEAD {
			head = ref
		}
	}
	if head == nil {
		return "", fmt.Errorf("no HEAD found in remote %s", remote)
	}
	if head.Type() == plumbing.SymbolicReference {
		target, ok := byName[head.Target()]
		if !ok {
			return "", fmt.Errorf("remote HEAD points to missing %s", head.Target())
		}
		head = target
	}
	return head.Hash().String(), nil
}
