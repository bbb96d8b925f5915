// Package recipes holds the recipes shipped with llrecipe.
package recipes

import (
	"embed"
	"io/fs"
	"sort"
	"strings"

	"github.com/goplus/llrecipe/recipe"
)

const ext = ".toml"

//go:embed *.toml
var builtin embed.FS

// Names returns the names of the built-in recipes, sorted.
func Names() []string {
	matches, _ := fs.Glob(builtin, "*"+ext)
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = strings.TrimSuffix(m, ext)
	}
	sort.Strings(names)
	return names
}

// Lookup loads the built-in recipe with the given name.
// The error wraps fs.ErrNotExist if there is none.
func Lookup(name string) (*recipe.Recipe, error) {
	return recipe.LoadFS(builtin, name+ext)
}
