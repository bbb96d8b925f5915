package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/llrecipe/internal/publish"
	"github.com/spf13/cobra"
)

var infoRemote bool

var infoCmd = &cobra.Command{
	Use:   "info [recipe[@version] | file.toml | package-dir]",
	Short: "Show a recipe or a built package",
	Long: `Info prints the identity of a recipe and the libraries consumers link
against. Given a package directory it prints the package manifest instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoRemote, "remote", false, "Query the latest upstream revision")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	if fi, err := os.Stat(args[0]); err == nil && fi.IsDir() {
		m, err := publish.Load(args[0])
		if err != nil {
			return fmt.Errorf("%s is not a package: %w", args[0], err)
		}
		fmt.Fprintf(w, "package:  %s\n", m.ID())
		fmt.Fprintf(w, "settings: %s\n", m.Settings)
		fmt.Fprintf(w, "libs:     %s\n", strings.Join(m.Libs, " "))
		for _, f := range m.Files {
			fmt.Fprintf(w, "  %s\n", f)
		}
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		meta := publish.Metadata{Name: m.Name, Libs: m.Libs}
		fmt.Fprintln(w, meta.Flags(abs))
		return nil
	}

	r, err := loadRecipe(args[0])
	if err != nil {
		return err
	}
	id := r.Identity
	fmt.Fprintf(w, "recipe:   %s\n", id.ID())
	if id.Description != "" {
		fmt.Fprintf(w, "          %s\n", id.Description)
	}
	if id.License != "" {
		fmt.Fprintf(w, "license:  %s\n", id.License)
	}
	if id.Author != "" {
		fmt.Fprintf(w, "author:   %s\n", id.Author)
	}
	fmt.Fprintf(w, "source:   %s\n", r.Source.URL)
	if len(id.Topics) > 0 {
		fmt.Fprintf(w, "topics:   %s\n", strings.Join(id.Topics, ", "))
	}
	fmt.Fprintf(w, "libs:     %s\n", strings.Join(r.Info.Libs, " "))

	if infoRemote {
		runner := newRunner(cmd)
		rev, err := newVCS(cmd, runner).Latest(cmd.Context(), r.Source.URL)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "upstream: %s\n", rev)
	}
	return nil
}
