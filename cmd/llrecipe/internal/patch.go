package internal

import (
	"fmt"

	"github.com/goplus/llrecipe/internal/patch"
	"github.com/spf13/cobra"
)

var (
	patchRecipe     string
	patchAnchor     string
	patchDirectives []string
)

var patchCmd = &cobra.Command{
	Use:   "patch [file]",
	Short: "Insert a recipe's build directives into a CMake file",
	Long: `Patch inserts the directive lines of a recipe after its anchor in file,
in place. The anchor must occur exactly once.`,
	Args: cobra.ExactArgs(1),
	RunE: runPatch,
}

func init() {
	flags := patchCmd.Flags()
	flags.StringVarP(&patchRecipe, "recipe", "r", "bitreader-cpp", "Recipe providing the anchor and directives")
	flags.StringVar(&patchAnchor, "anchor", "", "Anchor line, overrides the recipe")
	flags.StringArrayVarP(&patchDirectives, "directive", "d", nil, "Directive line, repeatable; overrides the recipe")
	rootCmd.AddCommand(patchCmd)
}

func runPatch(cmd *cobra.Command, args []string) error {
	anchor, directives := patchAnchor, patchDirectives
	if anchor == "" || len(directives) == 0 {
		r, err := loadRecipe(patchRecipe)
		if err != nil {
			return err
		}
		if anchor == "" {
			anchor = r.Patch.Anchor
		}
		if len(directives) == 0 {
			directives = r.Patch.Directives
		}
	}
	if anchor == "" {
		return fmt.Errorf("recipe %s has no patch anchor", patchRecipe)
	}
	if err := patch.File(args[0], anchor, directives); err != nil {
		return err
	}
	logger.Info("patched", "file", args[0], "anchor", anchor)
	return nil
}
