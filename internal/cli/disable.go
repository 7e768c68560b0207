package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var disableCmd = &cobra.Command{
	Use:   "disable <path>",
	Short: "Exclude a directory from automatic sizing and totals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDisabled(cmd, args[0], true)
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable <path>",
	Short: "Include a disabled directory again and size it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDisabled(cmd, args[0], false)
	},
}

func setDisabled(cmd *cobra.Command, arg string, disabled bool) error {
	path, err := absArg(arg)
	if err != nil {
		return err
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	en := a.engine.Load(path)
	if err := a.engine.SetDisabled(ctx, en, disabled); err != nil {
		return err
	}
	a.engine.WaitSize(en)

	state := "enabled"
	if disabled {
		state = "disabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", path, state)
	return nil
}

func init() {
	rootCmd.AddCommand(disableCmd, enableCmd)
}
