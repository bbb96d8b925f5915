package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/google/go-cmp/cmp"
	"github.com/goplus/llrecipe/internal/shell"
)

// recorder is a fake runner that remembers every command it was given.
type recorder struct {
	cmds   []shell.Cmd
	output string
	err    error
}

func (r *recorder) Run(ctx context.Context, cmd shell.Cmd) (*shell.Result, error) {
	r.cmds = append(r.cmds, cmd)
	if r.err != nil {
		return &shell.Result{ExitCode: 128, Output: []byte(r.output)}, r.err
	}
	return &shell.Result{Output: []byte(r.output)}, nil
}

func TestGitVCS_CloneArgs(t *testing.T) {
	tests := []struct {
		name string
		opts []GitOption
		ref  string
		want []string
	}{
		{"default", nil, "", []string{"clone", "--depth", "1", "https://example.com/lib", "DIR"}},
		{"ref", nil, "v1.0", []string{"clone", "--depth", "1", "--branch", "v1.0", "https://example.com/lib", "DIR"}},
		{"full history", []GitOption{WithDepth(0)}, "", []string{"clone", "https://example.com/lib", "DIR"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "lib")
			rec := &recorder{}
			g := NewGitVCS(append(tt.opts, WithRunner(rec), WithGitPath("/opt/git"))...)
			if err := g.Clone(context.Background(), "https://example.com/lib", tt.ref, dir); err != nil {
				t.Fatalf("Clone: %v", err)
			}
			if len(rec.cmds) != 1 {
				t.Fatalf("got %d commands, want 1", len(rec.cmds))
			}
			if rec.cmds[0].Name != "/opt/git" {
				t.Errorf("Name = %q, want /opt/git", rec.cmds[0].Name)
			}
			want := make([]string, len(tt.want))
			for i, a := range tt.want {
				want[i] = strings.ReplaceAll(a, "DIR", dir)
			}
			if diff := cmp.Diff(want, rec.cmds[0].Args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGitVCS_CloneFailure(t *testing.T) {
	rec := &recorder{
		output: "fatal: unable to access 'https://unreachable.invalid/x/': Could not resolve host",
		err:    &shell.ExitError{Cmd: shell.Cmd{Name: "git"}, Code: 128},
	}
	g := NewGitVCS(WithRunner(rec))
	err := g.Clone(context.Background(), "https://unreachable.invalid/x", "", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, ErrSourceFetchFailed) {
		t.Fatalf("Clone error = %v, want ErrSourceFetchFailed", err)
	}
	var ee *shell.ExitError
	if !errors.As(err, &ee) || ee.Code != 128 {
		t.Errorf("Clone error should carry the git exit status, got %v", err)
	}
}

func TestCloneOccupiedTarget(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "stale.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	for name, v := range map[string]VCS{
		"git":    NewGitVCS(WithRunner(rec)),
		"go-git": NewGoGitVCS(nil),
	} {
		err := v.Clone(context.Background(), "https://example.com/lib", "", dir)
		if !errors.Is(err, ErrSourceFetchFailed) {
			t.Errorf("%s: Clone error = %v, want ErrSourceFetchFailed", name, err)
		}
	}
	if len(rec.cmds) != 0 {
		t.Errorf("git was run %d times, want fail fast before running", len(rec.cmds))
	}
	if _, err := os.Stat(filepath.Join(dir, "stale.txt")); err != nil {
		t.Errorf("existing content was touched: %v", err)
	}
}

func TestGitVCS_Latest(t *testing.T) {
	rec := &recorder{output: "0123456789abcdef0123456789abcdef01234567\tHEAD\n"}
	hash, err := NewGitVCS(WithRunner(rec)).Latest(context.Background(), "https://example.com/lib")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if hash != "0123456789abcdef0123456789abcdef01234567" {
		t.Errorf("Latest = %q", hash)
	}
	if diff := cmp.Diff([]string{"ls-remote", "https://example.com/lib", "HEAD"}, rec.cmds[0].Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	_, err = NewGitVCS(WithRunner(&recorder{})).Latest(context.Background(), "https://example.com/lib")
	if err == nil {
		t.Error("Latest on empty output should fail")
	}
}

func TestGoGitVCS_CloneMissingRemote(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	err := NewGoGitVCS(nil).Clone(context.Background(), missing, "", dir)
	if !errors.Is(err, ErrSourceFetchFailed) {
		t.Fatalf("Clone error = %v, want ErrSourceFetchFailed", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("failed clone left %s behind", dir)
	}
}

func TestMissingRef(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no such branch", git.NoMatchingRefSpecError{}, true},
		{"wrapped", fmt.Errorf("clone: %w", plumbing.ErrReferenceNotFound), true},
		{"no repository", transport.ErrRepositoryNotFound, false},
		{"unreachable", errors.New("dial tcp: lookup invalid.invalid: no such host"), false},
		{"cancelled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := missingRef(tt.err); got != tt.want {
				t.Errorf("missingRef(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// TestGitVCS_LocalClone clones a repository created on the fly, so it
// needs git but no network.
func TestGitVCS_LocalClone(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}
	remote := t.TempDir()
	gitRun(t, remote, "init", "-q", "-b", "main")
	if err := os.WriteFile(filepath.Join(remote, "CMakeLists.txt"), []byte("project(demo)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gitRun(t, remote, "add", ".")
	gitRun(t, remote, "-c", "user.name=t", "-c", "user.email=t@example.com", "commit", "-q", "-m", "init")

	g := NewGitVCS()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "demo")
	if err := g.Clone(ctx, "file://"+filepath.ToSlash(remote), "main", dir); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "CMakeLists.txt")); err != nil {
		t.Fatalf("clone is missing CMakeLists.txt: %v", err)
	}

	rev, err := g.Revision(ctx, dir)
	if err != nil {
		t.Fatalf("Revision: %v", err)
	}
	if len(rev) != 40 {
		t.Errorf("expected 40-char hash, got %d chars: %s", len(rev), rev)
	}

	// A second clone into the same place must not merge.
	if err := g.Clone(ctx, "file://"+filepath.ToSlash(remote), "main", dir); !errors.Is(err, ErrSourceFetchFailed) {
		t.Errorf("second Clone error = %v, want ErrSourceFetchFailed", err)
	}
}

func gitRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}
