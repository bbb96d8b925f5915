package internal

import (
	"fmt"
	"text/tabwriter"

	"github.com/goplus/llrecipe/internal/recipes"
	"github.com/spf13/cobra"
)

var recipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "List the built-in recipes",
	Args:  cobra.NoArgs,
	RunE:  runRecipes,
}

func init() {
	rootCmd.AddCommand(recipesCmd)
}

func runRecipes(cmd *cobra.Command, args []string) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, name := range recipes.Names() {
		r, err := recipes.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, r.Identity.Version, r.Identity.Description)
	}
	return tw.Flush()
}
