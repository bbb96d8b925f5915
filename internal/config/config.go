// Package config loads llrecipe settings from flags, environment and an
// optional llrecipe.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/llrecipe/internal/env"
	"github.com/goplus/llrecipe/recipe"
	"github.com/spf13/viper"
)

const (
	// FileName is the config file looked up in the current directory and
	// then in $XDG_CONFIG_HOME/llrecipe.
	FileName = "llrecipe.toml"

	// EnvPrefix prefixes environment overrides, e.g. LLRECIPE_SETTINGS_ARCH.
	EnvPrefix = "LLRECIPE"
)

// Fetchers.
const (
	FetcherGit   = "git"    // shell out to git
	FetcherGoGit = "go-git" // clone in-process
)

// Config holds the resolved settings of a run.
type Config struct {
	Workspace     string          `mapstructure:"workspace"`
	KeepWorkspace bool            `mapstructure:"keep_workspace"`
	Fetcher       string          `mapstructure:"fetcher"`
	Git           string          `mapstructure:"git"`
	CMake         string          `mapstructure:"cmake"`
	Generator     string          `mapstructure:"generator"`
	Toolchain     string          `mapstructure:"toolchain"`
	CMakeArgs     string          `mapstructure:"cmake_args"`
	BuildArgs     string          `mapstructure:"build_args"`
	Verbose       bool            `mapstructure:"verbose"`
	Quiet         bool            `mapstructure:"quiet"`
	LogLevel      string          `mapstructure:"log_level"`
	Settings      recipe.Settings `mapstructure:"settings"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Fetcher:  FetcherGit,
		Git:      "git",
		CMake:    "cmake",
		LogLevel: "info",
	}
}

// New returns a viper instance carrying the defaults and reading
// LLRECIPE_* environment variables. Callers bind their flags to it before
// calling Load.
func New() *viper.Viper {
	v := viper.New()

	d := Default()
	v.SetDefault("workspace", d.Workspace)
	v.SetDefault("keep_workspace", d.KeepWorkspace)
	v.SetDefault("fetcher", d.Fetcher)
	v.SetDefault("git", d.Git)
	v.SetDefault("cmake", d.CMake)
	v.SetDefault("generator", d.Generator)
	v.SetDefault("toolchain", d.Toolchain)
	v.SetDefault("cmake_args", d.CMakeArgs)
	v.SetDefault("build_args", d.BuildArgs)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("quiet", d.Quiet)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("settings.os", "")
	v.SetDefault("settings.compiler", "")
	v.SetDefault("settings.build_type", "")
	v.SetDefault("settings.arch", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file, or the first llrecipe.toml found if file is empty, into v
// and decodes the result. A missing default file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file == "" {
		file = find()
	} else if _, err := os.Stat(file); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func find() string {
	for _, dir := range []string{".", env.ConfigDir()} {
		p := filepath.Join(dir, FileName)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

func (c *Config) validate() error {
	switch c.Fetcher {
	case FetcherGit, FetcherGoGit:
	default:
		return fmt.Errorf("unknown fetcher %q (want %q or %q)", c.Fetcher, FetcherGit, FetcherGoGit)
	}
	if c.Verbose && c.Quiet {
		return errors.New("verbose and quiet are mutually exclusive")
	}
	return nil
}

// Level returns the log level implied by the verbosity switches.
func (c *Config) Level() string {
	switch {
	case c.Verbose:
		return "debug"
	case c.Quiet:
		return "warn"
	}
	return c.LogLevel
}
