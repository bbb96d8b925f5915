// Package publish writes the consumer metadata of a package layout.
package publish

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/goplus/llrecipe/recipe"
)

// ManifestFile is the name of the package manifest at the layout root.
const ManifestFile = "llrecipe.json"

// Manifest describes a published package.
type Manifest struct {
	recipe.Identity
	Settings recipe.Settings `json:"settings"`
	Libs     []string        `json:"libs"`
	Files    []string        `json:"files,omitempty"`
}

// Metadata is what a consumer needs to link against the package.
type Metadata struct {
	Name string
	Libs []string
}

// Flags returns compiler and linker flags for a package installed at prefix.
func (m *Metadata) Flags(prefix string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-I%s -L%s", filepath.Join(prefix, "include"), filepath.Join(prefix, "lib"))
	for _, lib := range m.Libs {
		b.WriteString(" -l")
		b.WriteString(lib)
	}
	return b.String()
}

// Publish writes lib/pkgconfig/<name>.pc and the manifest into dir.
func Publish(dir string, m *Manifest) (*Metadata, error) {
	pc, err := PkgConfig(m)
	if err != nil {
		return nil, err
	}
	pcDir := filepath.Join(dir, "lib", "pkgconfig")
	if err := os.MkdirAll(pcDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(pcDir, m.Name+".pc"), pc, 0o644); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), append(data, '\n'), 0o644); err != nil {
		return nil, err
	}
	return &Metadata{Name: m.Name, Libs: append([]string(nil), m.Libs...)}, nil
}

// Load reads the manifest of the package at dir.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", ManifestFile, err)
	}
	return &m, nil
}

var pcTemplate = template.Must(template.New("pc").Parse(`prefix=${pcfiledir}/../..
libdir=${prefix}/lib
includedir=${prefix}/include

Name: {{.Name}}
Description: {{with .Description}}{{.}}{{else}}{{.Name}}{{end}}
Version: {{.Version}}
{{- with .URL}}
URL: {{.}}
{{- end}}
Libs: -L${libdir}{{range .Libs}} -l{{.}}{{end}}
Cflags: -I${includedir}
`))

// PkgConfig renders a relocatable pkg-config file for m.
func PkgConfig(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	if err := pcTemplate.Execute(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
