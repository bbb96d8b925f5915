// Package recipe defines the declarative description of how a native
// library is fetched, patched, built and packaged.
package recipe

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/mod/semver"
)

// ErrInvalid is returned when a recipe fails validation.
var ErrInvalid = errors.New("invalid recipe")

// Copy rule roots.
const (
	FromSource = "source"
	FromBuild  = "build"
)

// -----------------------------------------------------------------------------

// Identity is informational metadata about the packaged library. It never
// affects how the package is built.
type Identity struct {
	Name        string   `toml:"name" json:"name"`
	Version     string   `toml:"version" json:"version"`
	License     string   `toml:"license" json:"license,omitempty"`
	Author      string   `toml:"author" json:"author,omitempty"`
	URL         string   `toml:"url" json:"url"`
	Description string   `toml:"description" json:"description,omitempty"`
	Topics      []string `toml:"topics" json:"topics,omitempty"`
}

// ID returns "<name>@<canonical version>", e.g. "bitreader-cpp@v0.1.0".
func (id Identity) ID() string {
	return id.Name + "@" + semver.Canonical(semverOf(id.Version))
}

func semverOf(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// -----------------------------------------------------------------------------

// Settings are the build settings supplied by the invoking environment.
// They are forwarded verbatim to the build tool; nothing in this module
// branches on their values.
type Settings struct {
	OS        string `toml:"os" json:"os,omitempty" mapstructure:"os"`
	Compiler  string `toml:"compiler" json:"compiler,omitempty" mapstructure:"compiler"`
	BuildType string `toml:"build_type" json:"build_type,omitempty" mapstructure:"build_type"`
	Arch      string `toml:"arch" json:"arch,omitempty" mapstructure:"arch"`
}

// Setting is a single key/value pair of Settings.
type Setting struct {
	Key   string
	Value string
}

// HostSettings returns the settings describing the running host.
func HostSettings() Settings {
	return Settings{
		OS:        runtime.GOOS,
		BuildType: "Release",
		Arch:      runtime.GOARCH,
	}
}

// Merge returns s with every non-empty field of o applied on top.
func (s Settings) Merge(o Settings) Settings {
	if o.OS != "" {
		s.OS = o.OS
	}
	if o.Compiler != "" {
		s.Compiler = o.Compiler
	}
	if o.BuildType != "" {
		s.BuildType = o.BuildType
	}
	if o.Arch != "" {
		s.Arch = o.Arch
	}
	return s
}

// Pairs returns the non-empty settings sorted by key.
func (s Settings) Pairs() []Setting {
	all := []Setting{
		{"arch", s.Arch},
		{"build_type", s.BuildType},
		{"compiler", s.Compiler},
		{"os", s.OS},
	}
	pairs := all[:0]
	for _, p := range all {
		if p.Value != "" {
			pairs = append(pairs, p)
		}
	}
	return pairs
}

// String joins the non-empty values in key order with "-", e.g.
// "amd64-Release-linux".
func (s Settings) String() string {
	pairs := s.Pairs()
	vals := make([]string, len(pairs))
	for i, p := range pairs {
		vals[i] = p.Value
	}
	return strings.Join(vals, "-")
}

// -----------------------------------------------------------------------------

// Source tells the Source Provider where to fetch from.
type Source struct {
	URL string `toml:"url"` // defaults to Identity.URL
	Ref string `toml:"ref"` // branch or tag; empty means the remote default
	Dir string `toml:"dir"` // checkout directory, relative to the workspace source root
}

// Patch is an anchored text insertion into the build-configuration file.
type Patch struct {
	File       string   `toml:"file"` // relative to the checkout
	Anchor     string   `toml:"anchor"`
	Directives []string `toml:"directives"`
}

// Build configures the Build Invoker.
type Build struct {
	Subdir    string            `toml:"subdir"` // project root inside the checkout
	Generator string            `toml:"generator"`
	Toolchain string            `toml:"toolchain"` // toolchain file inside the checkout
	Defines   map[string]string `toml:"defines"`
	Env       map[string]string `toml:"env"` // environment of every cmake invocation
	Args      []string          `toml:"args"`
}

// CopyRule copies every file matching Pattern below Src into Dst inside the
// package layout.
type CopyRule struct {
	Pattern  string `toml:"pattern"`
	From     string `toml:"from"` // FromSource or FromBuild
	Src      string `toml:"src"`
	Dst      string `toml:"dst"`
	KeepPath bool   `toml:"keep_path"`
	// Group names a requirement set: at least one file must be copied by
	// the rules sharing a group. Rules without a group may match nothing.
	Group string `toml:"group"`
}

// Package lists the copy rules of the Artifact Collector.
type Package struct {
	Copy []CopyRule `toml:"copy"`
}

// CppInfo is what consumers of the package need to link against it.
type CppInfo struct {
	Libs []string `toml:"libs" json:"libs"`
}

// Recipe is a complete package-build recipe.
type Recipe struct {
	Identity Identity `toml:"recipe"`
	Settings Settings `toml:"settings"` // defaults, overridden by the environment
	Source   Source   `toml:"source"`
	Patch    Patch    `toml:"patch"`
	Build    Build    `toml:"build"`
	Package  Package  `toml:"package"`
	Info     CppInfo  `toml:"package_info"`
}

// normalize fills in defaults derived from other fields.
func (r *Recipe) normalize() {
	if r.Source.URL == "" {
		r.Source.URL = r.Identity.URL
	}
	if r.Source.Dir == "" {
		r.Source.Dir = checkoutName(r.Source.URL)
	}
	if r.Patch.Anchor != "" && r.Patch.File == "" {
		r.Patch.File = "CMakeLists.txt"
	}
	for i := range r.Package.Copy {
		if r.Package.Copy[i].From == "" {
			r.Package.Copy[i].From = FromBuild
		}
		if r.Package.Copy[i].Src == "" {
			r.Package.Copy[i].Src = "."
		}
	}
}

// checkoutName derives "repo" from ".../repo.git" or ".../repo".
func checkoutName(url string) string {
	url = strings.TrimRight(url, "/")
	if i := strings.LastIndexAny(url, "/:"); i >= 0 {
		url = url[i+1:]
	}
	return strings.TrimSuffix(url, ".git")
}

// Validate reports the first problem found in r, wrapped in ErrInvalid.
func (r *Recipe) Validate() error {
	id := r.Identity
	switch {
	case id.Name == "":
		return invalidf("recipe.name is required")
	case !semver.IsValid(semverOf(id.Version)):
		return invalidf("recipe.version %q is not a valid version", id.Version)
	case r.Source.URL == "":
		return invalidf("source.url or recipe.url is required")
	case !filepath.IsLocal(r.Source.Dir):
		return invalidf("source.dir %q must be a local relative path", r.Source.Dir)
	}
	if r.Patch.Anchor != "" {
		if !filepath.IsLocal(r.Patch.File) {
			return invalidf("patch.file %q must be a local relative path", r.Patch.File)
		}
		if len(r.Patch.Directives) == 0 {
			return invalidf("patch.directives must not be empty")
		}
	}
	if r.Build.Subdir != "" && !filepath.IsLocal(r.Build.Subdir) {
		return invalidf("build.subdir %q must be a local relative path", r.Build.Subdir)
	}
	if r.Build.Toolchain != "" && !filepath.IsLocal(r.Build.Toolchain) {
		return invalidf("build.toolchain %q must be a local relative path", r.Build.Toolchain)
	}
	for i, rule := range r.Package.Copy {
		if err := rule.validate(); err != nil {
			return invalidf("package.copy[%d]: %v", i, err)
		}
	}
	for _, lib := range r.Info.Libs {
		if lib == "" || strings.ContainsAny(lib, " \t/") {
			return invalidf("package_info.libs: bad library name %q", lib)
		}
	}
	return nil
}

func (c CopyRule) validate() error {
	if c.Pattern == "" {
		return errors.New("pattern is required")
	}
	if !doublestar.ValidatePattern(c.Pattern) {
		return fmt.Errorf("bad pattern %q", c.Pattern)
	}
	if c.From != FromSource && c.From != FromBuild {
		return fmt.Errorf("from must be %q or %q, got %q", FromSource, FromBuild, c.From)
	}
	if !filepath.IsLocal(c.Src) {
		return fmt.Errorf("src %q must be a local relative path", c.Src)
	}
	if c.Dst == "" || !filepath.IsLocal(c.Dst) {
		return fmt.Errorf("dst %q must be a local relative path", c.Dst)
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
