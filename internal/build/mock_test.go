package build

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goplus/llrecipe/internal/buildinfo"
	"github.com/goplus/llrecipe/internal/shell"
)

// fakeVCS "clones" by copying a local tree.
type fakeVCS struct {
	tree   string
	err    error
	clones []string
}

func (f *fakeVCS) Clone(ctx context.Context, remote, ref, dir string) error {
	f.clones = append(f.clones, remote)
	if f.err != nil {
		return f.err
	}
	return os.CopyFS(dir, os.DirFS(f.tree))
}

func (f *fakeVCS) Revision(ctx context.Context, dir string) (string, error) {
	return "0123abcd", nil
}

func (f *fakeVCS) Latest(ctx context.Context, remote string) (string, error) {
	return "0123abcd", nil
}

// fakeCMake plays cmake: configure records the project file it saw, build
// drops the listed files into the build directory.
type fakeCMake struct {
	cmds      []shell.Cmd
	outputs   []string // relative to the build directory
	configure error
	build     error

	projectFile  string // CMakeLists.txt as seen at configure time
	hadBuildInfo bool
}

func (f *fakeCMake) Run(ctx context.Context, cmd shell.Cmd) (*shell.Result, error) {
	f.cmds = append(f.cmds, cmd)
	switch cmd.Args[0] {
	case "-S":
		data, _ := os.ReadFile(filepath.Join(cmd.Args[1], "CMakeLists.txt"))
		f.projectFile = string(data)
		_, err := os.Stat(filepath.Join(cmd.Args[3], buildinfo.FileName))
		f.hadBuildInfo = err == nil
		if f.configure != nil {
			return &shell.Result{ExitCode: 1}, f.configure
		}
	case "--build":
		if f.build != nil {
			return &shell.Result{ExitCode: 2}, f.build
		}
		for _, name := range f.outputs {
			p := filepath.Join(cmd.Args[1], filepath.FromSlash(name))
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(p, []byte("!<arch>\n"+name), 0o644); err != nil {
				return nil, err
			}
		}
	}
	return &shell.Result{}, nil
}

// args returns the arguments of the first recorded command starting with first.
func (f *fakeCMake) args(first string) []string {
	for _, c := range f.cmds {
		if len(c.Args) > 0 && c.Args[0] == first {
			return c.Args
		}
	}
	return nil
}

// readTree returns every file below root keyed by its slash path.
func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	tree := make(map[string]string)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		tree[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

// copyTestdata copies the bitreader fixture so a test can modify it.
func copyTestdata(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "bitreader-cpp")
	if err := os.CopyFS(dir, os.DirFS(filepath.Join("testdata", "bitreader-cpp"))); err != nil {
		t.Fatal(err)
	}
	return dir
}

func keys(m map[string]string) []string {
	var ks []string
	for k := range m {
		ks = append(ks, k)
	}
	return ks
}

func contains(args []string, want ...string) bool {
	joined := " " + strings.Join(args, " ") + " "
	for _, w := range want {
		if !strings.Contains(joined, " "+w+" ") {
			return false
		}
	}
	return true
}
