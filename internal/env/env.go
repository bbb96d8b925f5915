// Package env resolves the directories llrecipe keeps on the host.
package env

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// HomeEnv overrides the cache root when set.
const HomeEnv = "LLRECIPE_HOME"

// Home returns the llrecipe cache root, $XDG_CACHE_HOME/llrecipe by default.
func Home() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	return filepath.Join(xdg.CacheHome, "llrecipe")
}

// WorkDir returns the directory that holds per-run workspaces, creating it
// if necessary.
func WorkDir() (string, error) {
	dir := filepath.Join(Home(), "work")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// ConfigDir returns $XDG_CONFIG_HOME/llrecipe. It is not created.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "llrecipe")
}
