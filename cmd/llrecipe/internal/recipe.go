package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/goplus/llrecipe/internal/recipes"
	"github.com/goplus/llrecipe/recipe"
	"golang.org/x/mod/semver"
)

// loadRecipe resolves arg to a recipe. arg is either a path to a recipe
// file or the name of a built-in recipe, optionally suffixed with
// "@version".
func loadRecipe(arg string) (*recipe.Recipe, error) {
	if strings.HasSuffix(arg, ".toml") {
		return recipe.LoadFile(arg)
	}
	if fi, err := os.Stat(arg); err == nil && !fi.IsDir() {
		return recipe.LoadFile(arg)
	}

	name, version := parseRecipeArg(arg)
	r, err := recipes.Lookup(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unknown recipe %q, see 'llrecipe recipes'", name)
	}
	if err != nil {
		return nil, err
	}
	if version != "" && version != "latest" && canonical(version) != canonical(r.Identity.Version) {
		return nil, fmt.Errorf("recipe %s provides version %s, not %s", name, r.Identity.Version, version)
	}
	return r, nil
}

// parseRecipeArg parses a recipe argument in the form "name@version" or "name".
func parseRecipeArg(arg string) (name, version string) {
	for i := len(arg) - 1; i >= 0; i-- {
		if arg[i] == '@' {
			return arg[:i], arg[i+1:]
		}
	}
	return arg, ""
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}
