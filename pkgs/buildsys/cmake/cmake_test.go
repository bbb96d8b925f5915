package cmake

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/goplus/llrecipe/internal/shell"
	"github.com/goplus/llrecipe/recipe"
)

type recorder struct {
	cmds []shell.Cmd
	fail map[string]error // keyed by first argument
}

func (r *recorder) Run(ctx context.Context, cmd shell.Cmd) (*shell.Result, error) {
	r.cmds = append(r.cmds, cmd)
	if err, ok := r.fail[cmd.Args[0]]; ok {
		return &shell.Result{ExitCode: 1}, err
	}
	return &shell.Result{}, nil
}

func TestConfigureArgs(t *testing.T) {
	rec := &recorder{}
	buildDir := filepath.Join(t.TempDir(), "build")
	c := New("/src/bitreader-cpp", buildDir, rec).
		Generator("Ninja").
		Settings(recipe.Settings{OS: "Linux", Arch: "x86_64", BuildType: "Debug"}).
		Define("BUILD_TESTING", "OFF").
		Env("CC", "clang")

	if err := c.Configure(context.Background(), "--fresh"); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	want := []string{
		"-S", "/src/bitreader-cpp", "-B", buildDir, "-G", "Ninja",
		"-DBUILD_TESTING:STRING=OFF",
		"-DCMAKE_BUILD_TYPE:STRING=Debug",
		"-DLLRECIPE_SETTINGS_ARCH:STRING=x86_64",
		"-DLLRECIPE_SETTINGS_BUILD_TYPE:STRING=Debug",
		"-DLLRECIPE_SETTINGS_OS:STRING=Linux",
		"--fresh",
	}
	if diff := cmp.Diff(want, rec.cmds[0].Args); diff != "" {
		t.Errorf("configure args mismatch (-want +got):\n%s", diff)
	}
	if rec.cmds[0].Env["CC"] != "clang" {
		t.Errorf("Env = %v, want CC=clang", rec.cmds[0].Env)
	}
	if _, err := os.Stat(buildDir); err != nil {
		t.Errorf("Configure did not create the build dir: %v", err)
	}
}

func TestBuildArgs(t *testing.T) {
	rec := &recorder{}
	c := New("src", "out", rec).BuildType("Release").Executable("/usr/bin/cmake")
	if err := c.Build(context.Background(), "--parallel"); err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := rec.cmds[0]
	if got.Name != "/usr/bin/cmake" {
		t.Errorf("Name = %q", got.Name)
	}
	if diff := cmp.Diff([]string{"--build", "out", "--config", "Release", "--parallel"}, got.Args); diff != "" {
		t.Errorf("build args mismatch (-want +got):\n%s", diff)
	}
}

func TestFailureKinds(t *testing.T) {
	exitErr := &shell.ExitError{Cmd: shell.Cmd{Name: "cmake"}, Code: 1, Output: "CMake Error"}
	rec := &recorder{fail: map[string]error{"-S": exitErr, "--build": exitErr}}
	c := New("src", filepath.Join(t.TempDir(), "b"), rec)

	err := c.Configure(context.Background())
	if !errors.Is(err, ErrConfigureFailed) {
		t.Errorf("Configure error = %v, want ErrConfigureFailed", err)
	}
	var ee *shell.ExitError
	if !errors.As(err, &ee) || ee.Output != "CMake Error" {
		t.Errorf("Configure error should keep tool output, got %v", err)
	}

	if err := c.Build(context.Background()); !errors.Is(err, ErrCompileFailed) {
		t.Errorf("Build error = %v, want ErrCompileFailed", err)
	}
}

func TestDefinesArgs(t *testing.T) {
	c := New("", "", &recorder{})
	c.Define("FOO", "BAR")
	c.DefineBool("ENABLE", true)
	c.DefineBool("DISABLE", false)

	want := []string{"-DDISABLE:BOOL=OFF", "-DENABLE:BOOL=ON", "-DFOO:STRING=BAR"}
	if diff := cmp.Diff(want, c.definesArgs()); diff != "" {
		t.Errorf("definesArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestDefinesArgsEmpty(t *testing.T) {
	if args := New("", "", &recorder{}).definesArgs(); args != nil {
		t.Errorf("definesArgs on empty = %v, want nil", args)
	}
}

func TestOutputDir(t *testing.T) {
	if got := New("", "build", nil).OutputDir(); got != "build" {
		t.Errorf("OutputDir = %q, want %q", got, "build")
	}
}

func TestSplitArgs(t *testing.T) {
	t.Setenv("LLRECIPE_SDK", "/opt/sdk")
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"-G Ninja", []string{"-G", "Ninja"}},
		{`-DCMAKE_CXX_FLAGS="-O2 -g" -DX=1`, []string{"-DCMAKE_CXX_FLAGS=-O2 -g", "-DX=1"}},
		{"-DSDK=$LLRECIPE_SDK", []string{"-DSDK=/opt/sdk"}},
	}
	for _, tt := range tests {
		got, err := SplitArgs(tt.in)
		if err != nil {
			t.Errorf("SplitArgs(%q): %v", tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("SplitArgs(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
	if _, err := SplitArgs(`-DX="unterminated`); err == nil {
		t.Error("SplitArgs should reject unbalanced quotes")
	}
}

func TestConfigureBuildE2E(t *testing.T) {
	if _, err := exec.LookPath("cmake"); err != nil {
		t.Skip("cmake not found in PATH")
	}

	buildDir := filepath.Join(t.TempDir(), "build")
	src, err := filepath.Abs(filepath.Join("testdata", "project"))
	if err != nil {
		t.Fatal(err)
	}
	c := New(src, buildDir, shell.New())
	c.Generator("Unix Makefiles")
	c.Settings(recipe.Settings{OS: "Linux", BuildType: "Release"})

	if err := c.Configure(context.Background()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := c.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := os.Stat(filepath.Join(buildDir, "libdummy.a")); err != nil {
		t.Errorf("missing libdummy.a: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(buildDir, "CMakeCache.txt"))
	if err != nil {
		t.Fatalf("read CMakeCache.txt: %v", err)
	}
	cache := string(data)
	for _, want := range []string{
		"CMAKE_BUILD_TYPE:STRING=Release",
		"LLRECIPE_SETTINGS_OS:STRING=Linux",
	} {
		if !strings.Contains(cache, want) {
			t.Errorf("cache missing %q", want)
		}
	}
}
