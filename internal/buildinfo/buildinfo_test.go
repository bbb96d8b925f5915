package buildinfo

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goplus/llrecipe/recipe"
)

var id = recipe.Identity{Name: "bitreader-cpp", Version: "0.1"}

func TestRender(t *testing.T) {
	settings := recipe.Settings{OS: "Linux", Arch: "x86_64", BuildType: "Debug", Compiler: "gcc"}
	data, err := Render(id, settings)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		"# Generated by llrecipe for bitreader-cpp@v0.1.0.",
		`set(LLRECIPE_PACKAGE_NAME "bitreader-cpp")`,
		`set(LLRECIPE_SETTINGS_ARCH "x86_64")`,
		`set(LLRECIPE_SETTINGS_BUILD_TYPE "Debug")`,
		`set(LLRECIPE_SETTINGS_COMPILER "gcc")`,
		`set(LLRECIPE_SETTINGS_OS "Linux")`,
		"macro(llrecipe_basic_setup)",
		"endmacro()",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("build info missing %q:\n%s", want, out)
		}
	}

	again, _ := Render(id, settings)
	if !bytes.Equal(data, again) {
		t.Error("Render is not deterministic")
	}
}

func TestRenderSkipsEmptySettings(t *testing.T) {
	data, err := Render(id, recipe.Settings{OS: "Linux"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(string(data), "LLRECIPE_SETTINGS_COMPILER") {
		t.Errorf("empty compiler setting should not be emitted:\n%s", data)
	}
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"plain":     `"plain"`,
		`a "b"`:     `"a \"b\""`,
		`C:\sdk`:    `"C:\\sdk"`,
		"${HOME}/x": `"\${HOME}/x"`,
	}
	for in, want := range tests {
		if got := quote(in); got != want {
			t.Errorf("quote(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "build")
	path, err := Write(dir, id, recipe.Settings{OS: "Linux"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if path != filepath.Join(dir, FileName) {
		t.Errorf("path = %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("build info not written: %v", err)
	}
}
