package internal

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/llrecipe/internal/build"
	"github.com/goplus/llrecipe/internal/env"
	"github.com/goplus/llrecipe/pkgs/buildsys/cmake"
	"github.com/goplus/llrecipe/recipe"
	"github.com/spf13/cobra"
)

var makeOutput string

var makeCmd = &cobra.Command{
	Use:   "make [recipe[@version] | file.toml]",
	Short: "Build a recipe into a package",
	Long: `Make clones the recipe's source, patches and builds it with CMake and
collects the headers and libraries into a package directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runMake,
}

func init() {
	flags := makeCmd.Flags()
	flags.StringVarP(&makeOutput, "output", "o", "", "Output path (directory or .zip file)")
	flags.String("generator", "", "CMake generator")
	flags.String("cmake-args", "", "extra CMake configure arguments, shell quoted")
	flags.String("build-args", "", "extra \"cmake --build\" arguments, shell quoted")
	flags.String("toolchain", "", "CMake toolchain file")
	flags.String("os", "", "target operating system setting")
	flags.String("arch", "", "target architecture setting")
	flags.String("compiler", "", "compiler setting")
	flags.String("build-type", "", "build type setting (Release, Debug, ...)")

	bindFlags(v, flags, map[string]string{
		"generator":           "generator",
		"cmake_args":          "cmake-args",
		"build_args":          "build-args",
		"toolchain":           "toolchain",
		"settings.os":         "os",
		"settings.arch":       "arch",
		"settings.compiler":   "compiler",
		"settings.build_type": "build-type",
	})
	rootCmd.AddCommand(makeCmd)
}

func runMake(cmd *cobra.Command, args []string) error {
	r, err := loadRecipe(args[0])
	if err != nil {
		return err
	}
	extra, err := cmake.SplitArgs(cfg.CMakeArgs)
	if err != nil {
		return fmt.Errorf("invalid --cmake-args: %w", err)
	}
	buildArgs, err := cmake.SplitArgs(cfg.BuildArgs)
	if err != nil {
		return fmt.Errorf("invalid --build-args: %w", err)
	}
	toolchain := cfg.Toolchain
	if toolchain != "" {
		if toolchain, err = filepath.Abs(toolchain); err != nil {
			return fmt.Errorf("failed to resolve toolchain: %w", err)
		}
	}

	settings := recipe.HostSettings().Merge(r.Settings).Merge(cfg.Settings)
	dest := makeOutput
	if dest == "" {
		dest = filepath.Join(env.Home(), "packages", fmt.Sprintf("%s@%s-%s", r.Identity.Name, r.Identity.Version, settings))
	}
	// Resolve output path to absolute before the build
	dest, err = filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	out := dest
	if isZip(dest) {
		tmpDir, err := os.MkdirTemp("", "llrecipe-make-*")
		if err != nil {
			return fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(tmpDir)
		out = filepath.Join(tmpDir, "pkg")
	}

	runner := newRunner(cmd)
	builder := build.NewBuilder(
		build.WithRunner(runner),
		build.WithVCS(newVCS(cmd, runner)),
		build.WithLogger(logger),
		build.WithCMake(cfg.CMake),
	)
	res, err := builder.Run(cmd.Context(), r, build.Options{
		OutputDir:     out,
		WorkspaceDir:  cfg.Workspace,
		KeepWorkspace: cfg.KeepWorkspace,
		Settings:      cfg.Settings,
		Generator:     cfg.Generator,
		Toolchain:     toolchain,
		CMakeArgs:     extra,
		BuildArgs:     buildArgs,
	})
	if err != nil {
		if res != nil && (cfg.KeepWorkspace || cfg.Workspace != "") {
			logger.Info("workspace kept", "dir", res.Workspace)
		}
		return fmt.Errorf("failed to build %s: %w", r.Identity.ID(), err)
	}

	if isZip(dest) {
		if err := zipDir(out, dest); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s -> %s\n", r.Identity.ID(), dest)
	fmt.Fprintf(w, "libs: %s\n", strings.Join(res.Metadata.Libs, " "))
	if !isZip(dest) {
		fmt.Fprintln(w, res.Metadata.Flags(dest))
	}
	return nil
}

func isZip(path string) bool {
	return strings.HasSuffix(path, ".zip")
}

// zipDir creates a zip archive at dest from the contents of srcDir.
func zipDir(srcDir, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	w := zip.NewWriter(f)
	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		writer, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(writer, file)
		return err
	})
	if err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return f.Close()
}
