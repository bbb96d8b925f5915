// Package buildinfo generates the CMake build-info file that a patched
// project includes before calling llrecipe_basic_setup().
package buildinfo

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/goplus/llrecipe/recipe"
)

// FileName is the name of the generated file inside the build directory.
const FileName = "llrecipebuildinfo.cmake"

var tmpl = template.Must(template.New(FileName).Funcs(template.FuncMap{
	"quote": quote,
	"upper": strings.ToUpper,
}).Parse(`# Generated by llrecipe for {{.ID}}. Do not edit.

set(LLRECIPE_PACKAGE_NAME {{quote .Name}})
set(LLRECIPE_PACKAGE_VERSION {{quote .Version}})
{{range .Settings}}set(LLRECIPE_SETTINGS_{{upper .Key}} {{quote .Value}})
{{end}}
macro(llrecipe_basic_setup)
    if(NOT CMAKE_BUILD_TYPE AND LLRECIPE_SETTINGS_BUILD_TYPE)
        set(CMAKE_BUILD_TYPE "${LLRECIPE_SETTINGS_BUILD_TYPE}")
    endif()
    set(CMAKE_ARCHIVE_OUTPUT_DIRECTORY "${CMAKE_BINARY_DIR}/lib")
    set(CMAKE_LIBRARY_OUTPUT_DIRECTORY "${CMAKE_BINARY_DIR}/lib")
    set(CMAKE_RUNTIME_OUTPUT_DIRECTORY "${CMAKE_BINARY_DIR}/bin")
    message(STATUS "llrecipe: basic setup for ${LLRECIPE_PACKAGE_NAME} done")
endmacro()
`))

// Render returns the build-info file for id built with settings.
// The output depends on nothing else.
func Render(id recipe.Identity, settings recipe.Settings) ([]byte, error) {
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, struct {
		ID       string
		Name     string
		Version  string
		Settings []recipe.Setting
	}{id.ID(), id.Name, id.Version, settings.Pairs()})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write renders the build-info file into buildDir and returns its path.
func Write(buildDir string, id recipe.Identity, settings recipe.Settings) (string, error) {
	data, err := Render(id, settings)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(buildDir, FileName)
	return path, os.WriteFile(path, data, 0o644)
}

// quote renders s as a CMake quoted argument.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)
	return `"` + r.Replace(s) + `"`
}
