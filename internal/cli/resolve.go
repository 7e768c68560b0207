package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"dirmover/internal/reparse"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <path>",
	Short: "Print the target of a link or junction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := absArg(args[0])
		if err != nil {
			return err
		}
		target, err := reparse.NewResolver().Resolve(path)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), target)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
