// Package collect harvests build artifacts into a package layout.
package collect

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goplus/llrecipe/recipe"
)

// ErrArtifactsMissing is returned when a required group of copy rules
// matched no files.
var ErrArtifactsMissing = errors.New("artifacts missing")

// Layout names the trees a collection reads from and writes to.
type Layout struct {
	SourceDir  string // checkout root
	BuildDir   string // build output root
	PackageDir string // destination; created on demand
}

// Report lists what a collection copied.
type Report struct {
	Files  []string       // package-relative, slash separated, sorted
	Groups map[string]int // files matched per rule group
}

// Collect applies rules in order, copying every match into l.PackageDir.
//
// A pattern without a "/" matches at any depth below the rule's Src.
// KeepPath rules keep the path relative to Src, other rules flatten to the
// file name. Running Collect twice over the same inputs yields the same
// package tree.
func Collect(l Layout, rules []recipe.CopyRule) (*Report, error) {
	rep := &Report{Groups: make(map[string]int)}
	var groups []string
	seen := make(map[string]bool)
	for i, rule := range rules {
		if rule.Group != "" {
			if _, ok := rep.Groups[rule.Group]; !ok {
				groups = append(groups, rule.Group)
				rep.Groups[rule.Group] = 0
			}
		}
		files, err := match(l, rule)
		if err != nil {
			return nil, fmt.Errorf("copy rule %d (%s): %w", i, rule.Pattern, err)
		}
		for _, f := range files {
			dst := target(rule, f.rel)
			if err := copyFile(f.abs, filepath.Join(l.PackageDir, filepath.FromSlash(dst))); err != nil {
				return nil, err
			}
			if !seen[dst] {
				seen[dst] = true
				rep.Files = append(rep.Files, dst)
			}
		}
		if rule.Group != "" {
			rep.Groups[rule.Group] += len(files)
		}
	}
	for _, g := range groups {
		if rep.Groups[g] == 0 {
			return rep, fmt.Errorf("%w: no files for %q", ErrArtifactsMissing, g)
		}
	}
	sort.Strings(rep.Files)
	return rep, nil
}

type matched struct {
	abs string
	rel string // relative to the rule root, slash separated
}

func match(l Layout, rule recipe.CopyRule) ([]matched, error) {
	base := l.BuildDir
	if rule.From == recipe.FromSource {
		base = l.SourceDir
	}
	root := filepath.Join(base, filepath.FromSlash(rule.Src))
	fi, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	pattern := rule.Pattern
	if !strings.Contains(pattern, "/") {
		pattern = "**/" + pattern
	}
	names, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	files := make([]matched, len(names))
	for i, name := range names {
		files[i] = matched{abs: filepath.Join(root, filepath.FromSlash(name)), rel: name}
	}
	return files, nil
}

func target(rule recipe.CopyRule, rel string) string {
	if !rule.KeepPath {
		rel = path.Base(rel)
	}
	if rule.Dst == "" || rule.Dst == "." {
		return rel
	}
	return path.Join(rule.Dst, rel)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
