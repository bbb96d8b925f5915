// Package cmake wraps the cmake configure/build workflow.
package cmake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goplus/llrecipe/internal/shell"
	"github.com/goplus/llrecipe/recipe"
	shellwords "mvdan.cc/sh/v3/shell"
)

var (
	// ErrConfigureFailed is returned when project generation fails.
	ErrConfigureFailed = errors.New("configure failed")

	// ErrCompileFailed is returned when compiling or linking fails.
	ErrCompileFailed = errors.New("compile failed")
)

// SettingPrefix prefixes the cache variables that carry build settings.
const SettingPrefix = "LLRECIPE_SETTINGS_"

type defineValue struct {
	value    string
	typeName string
}

// CMake drives CMake-based builds.
type CMake struct {
	exe       string
	sourceDir string
	buildDir  string
	generator string
	buildType string
	toolchain string
	defines   map[string]defineValue
	env       map[string]string
	runner    shell.Runner
}

// New returns a CMake building sourceDir into buildDir with runner.
func New(sourceDir, buildDir string, runner shell.Runner) *CMake {
	if runner == nil {
		runner = shell.New()
	}
	return &CMake{
		exe:       "cmake",
		sourceDir: sourceDir,
		buildDir:  buildDir,
		defines:   make(map[string]defineValue),
		env:       make(map[string]string),
		runner:    runner,
	}
}

// Executable overrides the cmake binary.
func (c *CMake) Executable(path string) *CMake {
	c.exe = path
	return c
}

// Generator sets the CMake generator (e.g. "Ninja", "Unix Makefiles").
func (c *CMake) Generator(name string) *CMake {
	c.generator = name
	return c
}

// BuildType sets CMAKE_BUILD_TYPE and the --config of multi-config generators.
func (c *CMake) BuildType(name string) *CMake {
	c.buildType = name
	return c
}

// Toolchain sets CMAKE_TOOLCHAIN_FILE.
func (c *CMake) Toolchain(path string) *CMake {
	c.toolchain = path
	return c
}

// Define adds a -D<key>:STRING=<value> definition.
func (c *CMake) Define(key, value string) *CMake {
	c.defines[key] = defineValue{value: value, typeName: "STRING"}
	return c
}

// DefineBool adds a -D<key>:BOOL=ON/OFF definition.
func (c *CMake) DefineBool(key string, value bool) *CMake {
	v := "OFF"
	if value {
		v = "ON"
	}
	c.defines[key] = defineValue{value: v, typeName: "BOOL"}
	return c
}

// Env sets an environment variable for every cmake invocation.
func (c *CMake) Env(key, value string) *CMake {
	c.env[key] = value
	return c
}

// Settings forwards s verbatim as LLRECIPE_SETTINGS_* cache entries. The
// build type also becomes CMAKE_BUILD_TYPE.
func (c *CMake) Settings(s recipe.Settings) *CMake {
	for _, p := range s.Pairs() {
		c.Define(SettingPrefix+strings.ToUpper(p.Key), p.Value)
	}
	if s.BuildType != "" {
		c.BuildType(s.BuildType)
	}
	return c
}

// Configure runs "cmake -S <source> -B <build>" with all configured options.
// Extra args are appended at the end.
func (c *CMake) Configure(ctx context.Context, args ...string) error {
	if err := os.MkdirAll(c.buildDir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigureFailed, err)
	}
	if _, err := c.runner.Run(ctx, c.configureCmd(args)); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigureFailed, err)
	}
	return nil
}

// Build runs "cmake --build <build>" with optional extra arguments.
func (c *CMake) Build(ctx context.Context, args ...string) error {
	if _, err := c.runner.Run(ctx, c.buildCmd(args)); err != nil {
		return fmt.Errorf("%w: %w", ErrCompileFailed, err)
	}
	return nil
}

// OutputDir returns the build directory, where artifacts land.
func (c *CMake) OutputDir() string {
	return c.buildDir
}

func (c *CMake) configureCmd(args []string) shell.Cmd {
	cmakeArgs := []string{"-S", c.sourceDir, "-B", c.buildDir}
	if c.generator != "" {
		cmakeArgs = append(cmakeArgs, "-G", c.generator)
	}
	if c.toolchain != "" {
		c.Define("CMAKE_TOOLCHAIN_FILE", c.toolchain)
	}
	if c.buildType != "" {
		c.Define("CMAKE_BUILD_TYPE", c.buildType)
	}
	cmakeArgs = append(cmakeArgs, c.definesArgs()...)
	cmakeArgs = append(cmakeArgs, args...)
	return shell.Cmd{Name: c.exe, Args: cmakeArgs, Env: c.env}
}

func (c *CMake) buildCmd(args []string) shell.Cmd {
	cmdArgs := []string{"--build", c.buildDir}
	if c.buildType != "" {
		cmdArgs = append(cmdArgs, "--config", c.buildType)
	}
	cmdArgs = append(cmdArgs, args...)
	return shell.Cmd{Name: c.exe, Args: cmdArgs, Env: c.env}
}

func (c *CMake) definesArgs() []string {
	if len(c.defines) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.defines))
	for k := range c.defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		d := c.defines[k]
		args = append(args, "-D"+k+":"+d.typeName+"="+d.value)
	}
	return args
}

// SplitArgs splits a shell-quoted argument string such as
// `-G Ninja -DCMAKE_CXX_FLAGS="-O2 -g"` into arguments. $VARS are expanded
// from the environment.
func SplitArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return shellwords.Fields(s, nil)
}
