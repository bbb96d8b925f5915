// Package build runs a recipe from a fresh checkout to a published package.
package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/goplus/llrecipe/internal/buildinfo"
	"github.com/goplus/llrecipe/internal/collect"
	"github.com/goplus/llrecipe/internal/env"
	"github.com/goplus/llrecipe/internal/patch"
	"github.com/goplus/llrecipe/internal/publish"
	"github.com/goplus/llrecipe/internal/shell"
	"github.com/goplus/llrecipe/internal/vcs"
	"github.com/goplus/llrecipe/pkgs/buildsys/cmake"
	"github.com/goplus/llrecipe/recipe"
)

// Workspace directory layout:
//
//	workspace/
//	  src/<checkout>/   # source tree
//	  build/            # build output, llrecipebuildinfo.cmake
const (
	srcDir   = "src"
	buildDir = "build"
)

// ErrOutputOccupied is returned when OutputDir holds files that are not a
// package published by a previous run.
var ErrOutputOccupied = errors.New("output directory is not empty")

// Options configures a single run.
type Options struct {
	// OutputDir receives the package layout. It must be missing, empty or
	// hold a previously published package, which is replaced only once
	// every stage has succeeded.
	OutputDir string

	// WorkspaceDir holds the checkout and the build tree. If empty, a
	// temporary directory under env.WorkDir() is used and removed after
	// the run unless KeepWorkspace is set.
	WorkspaceDir  string
	KeepWorkspace bool

	// Settings override the recipe defaults, which override the host.
	Settings recipe.Settings

	Generator string   // overrides the recipe generator
	Toolchain string   // CMAKE_TOOLCHAIN_FILE, overrides the recipe toolchain
	CMakeArgs []string // extra configure arguments
	BuildArgs []string // extra "cmake --build" arguments
}

// Result describes a finished run.
type Result struct {
	State     State
	Workspace string
	Revision  string
	OutputDir string
	Files     []string
	Metadata  *publish.Metadata
}

// Builder runs recipes. It is not safe for concurrent use on the same
// workspace or output directory.
type Builder struct {
	vcs    vcs.VCS
	runner shell.Runner
	logger *log.Logger
	cmake  string
}

// Option configures a Builder.
type Option func(*Builder)

// WithVCS sets the source provider.
func WithVCS(v vcs.VCS) Option {
	return func(b *Builder) {
		b.vcs = v
	}
}

// WithRunner sets the runner external tools are executed with.
func WithRunner(r shell.Runner) Option {
	return func(b *Builder) {
		b.runner = r
	}
}

// WithLogger sets the logger stage transitions are reported to.
func WithLogger(l *log.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithCMake overrides the cmake executable.
func WithCMake(path string) Option {
	return func(b *Builder) {
		b.cmake = path
	}
}

// NewBuilder returns a Builder. By default it runs git and cmake from PATH.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{cmake: "cmake"}
	for _, opt := range opts {
		opt(b)
	}
	if b.runner == nil {
		b.runner = shell.New()
	}
	if b.vcs == nil {
		b.vcs = vcs.NewGitVCS(vcs.WithRunner(b.runner))
	}
	if b.logger == nil {
		b.logger = log.Default()
	}
	return b
}

// run carries the state of a single Run.
type run struct {
	*Builder
	r        *recipe.Recipe
	opts     Options
	settings recipe.Settings
	logger   *log.Logger
	res      *Result

	checkout string
	buildDir string
	staging  string
}

// Run executes r through every stage. On failure the returned error is a
// *StageError, Result.State is Failed and nothing is left at OutputDir
// unless it existed before the run.
func (b *Builder) Run(ctx context.Context, r *recipe.Recipe, opts Options) (*Result, error) {
	if opts.OutputDir == "" {
		return nil, errors.New("build: no output directory")
	}
	out, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	opts.OutputDir = out

	ru := &run{
		Builder:  b,
		r:        r,
		opts:     opts,
		settings: recipe.HostSettings().Merge(r.Settings).Merge(opts.Settings),
		logger:   b.logger.With("recipe", r.Identity.ID()),
		res:      &Result{State: Pending, OutputDir: out},
	}
	ru.logger.Info("start", "settings", ru.settings.String())

	if err := checkOutput(out); err != nil {
		return ru.fail(Fetched, err)
	}
	cleanup, err := ru.workspace()
	if err != nil {
		return ru.fail(Fetched, err)
	}
	defer cleanup()
	defer func() {
		if ru.staging != "" {
			os.RemoveAll(ru.staging)
		}
	}()

	steps := []struct {
		to State
		fn func(context.Context) error
	}{
		{Fetched, ru.fetch},
		{Patched, ru.patch},
		{Built, ru.build},
		{Collected, ru.collect},
		{Published, ru.publish},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return ru.fail(step.to, err)
		}
		ru.res.State = step.to
		ru.logger.Info(step.to.String())
	}
	return ru.res, nil
}

func (ru *run) fail(stage State, err error) (*Result, error) {
	ru.res.State = Failed
	serr := newStageError(stage, err)
	ru.logger.Error("failed", "stage", stage, "err", err)
	return ru.res, serr
}

// checkOutput fails unless out is missing, empty or a published package.
func checkOutput(out string) error {
	entries, err := os.ReadDir(out)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return err
	case len(entries) == 0:
		return nil
	}
	if _, err := os.Stat(filepath.Join(out, publish.ManifestFile)); err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s has no %s", ErrOutputOccupied, out, publish.ManifestFile)
}

func (ru *run) workspace() (cleanup func(), err error) {
	ws := ru.opts.WorkspaceDir
	temp := ws == ""
	if temp {
		root, err := env.WorkDir()
		if err != nil {
			return nil, err
		}
		if ws, err = os.MkdirTemp(root, ru.r.Identity.Name+"-*"); err != nil {
			return nil, err
		}
	} else if err = os.MkdirAll(ws, 0o755); err != nil {
		return nil, err
	}
	ru.res.Workspace = ws
	ru.checkout = filepath.Join(ws, srcDir, filepath.FromSlash(ru.r.Source.Dir))
	ru.buildDir = filepath.Join(ws, buildDir)
	ru.logger.Debug("workspace", "dir", ws)

	if !temp || ru.opts.KeepWorkspace {
		return func() {}, nil
	}
	return func() { os.RemoveAll(ws) }, nil
}

func (ru *run) fetch(ctx context.Context) error {
	src := ru.r.Source
	ru.logger.Info("fetching", "url", src.URL, "ref", src.Ref)
	if err := ru.vcs.Clone(ctx, src.URL, src.Ref, ru.checkout); err != nil {
		return err
	}
	if rev, err := ru.vcs.Revision(ctx, ru.checkout); err == nil {
		ru.res.Revision = rev
		ru.logger.Debug("checked out", "revision", rev)
	}
	if f := ru.r.Patch.File; f != "" {
		if _, err := os.Stat(filepath.Join(ru.checkout, filepath.FromSlash(f))); err != nil {
			return fmt.Errorf("%w: %s not in checkout: %w", vcs.ErrSourceFetchFailed, f, err)
		}
	}
	return nil
}

func (ru *run) patch(ctx context.Context) error {
	p := ru.r.Patch
	if p.Anchor == "" {
		ru.logger.Debug("no patch")
		return nil
	}
	return patch.File(filepath.Join(ru.checkout, filepath.FromSlash(p.File)), p.Anchor, p.Directives)
}

func (ru *run) build(ctx context.Context) error {
	if err := os.MkdirAll(ru.buildDir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", cmake.ErrConfigureFailed, err)
	}
	info, err := buildinfo.Write(ru.buildDir, ru.r.Identity, ru.settings)
	if err != nil {
		return fmt.Errorf("%w: %w", cmake.ErrConfigureFailed, err)
	}
	ru.logger.Debug("build info", "file", info)

	b := ru.r.Build
	project := ru.checkout
	if b.Subdir != "" {
		project = filepath.Join(project, filepath.FromSlash(b.Subdir))
	}
	gen := b.Generator
	if ru.opts.Generator != "" {
		gen = ru.opts.Generator
	}
	var toolchain string
	if b.Toolchain != "" {
		toolchain = filepath.Join(ru.checkout, filepath.FromSlash(b.Toolchain))
	}
	if ru.opts.Toolchain != "" {
		toolchain = ru.opts.Toolchain
	}
	c := cmake.New(project, ru.buildDir, ru.runner).
		Executable(ru.cmake).
		Generator(gen).
		Toolchain(toolchain).
		Settings(ru.settings)
	for k, v := range b.Defines {
		c.Define(k, v)
	}
	for k, v := range b.Env {
		c.Env(k, v)
	}

	args := append(append([]string(nil), b.Args...), ru.opts.CMakeArgs...)
	ru.logger.Info("configuring", "generator", gen)
	if err := c.Configure(ctx, args...); err != nil {
		return err
	}
	ru.logger.Info("compiling")
	return c.Build(ctx, ru.opts.BuildArgs...)
}

func (ru *run) collect(ctx context.Context) error {
	out := ru.opts.OutputDir
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(filepath.Dir(out), "."+filepath.Base(out)+".tmp-*")
	if err != nil {
		return err
	}
	ru.staging = staging

	rep, err := collect.Collect(collect.Layout{
		SourceDir:  ru.checkout,
		BuildDir:   ru.buildDir,
		PackageDir: staging,
	}, ru.r.Package.Copy)
	if err != nil {
		return err
	}
	for g, n := range rep.Groups {
		ru.logger.Debug("collected", "group", g, "files", n)
	}
	ru.res.Files = rep.Files
	return nil
}

func (ru *run) publish(ctx context.Context) error {
	meta, err := publish.Publish(ru.staging, &publish.Manifest{
		Identity: ru.r.Identity,
		Settings: ru.settings,
		Libs:     ru.r.Info.Libs,
		Files:    ru.res.Files,
	})
	if err != nil {
		return err
	}
	out := ru.opts.OutputDir
	if err := os.RemoveAll(out); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	// Move the package to the output directory
	if err := os.Rename(ru.staging, out); err != nil {
		return err
	}
	ru.staging = ""
	ru.res.Metadata = meta
	ru.logger.Info("published", "dir", out, "libs", meta.Libs)
	return nil
}
