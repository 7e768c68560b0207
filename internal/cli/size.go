package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"dirmover/internal/entry"
	"dirmover/internal/sizer"
)

var sizeCmd = &cobra.Command{
	Use:   "size <path>",
	Short: "Calculate the size of one directory",
	Long: `Walks the directory in parallel and stores the result in the state
database. An explicit request runs even when calculate_sizes is off, but a
disabled entry is skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := absArg(args[0])
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
		a.policy.SetCalculateSizes(true)
		if !a.engine.CalculateSize(ctx, en) {
			return fmt.Errorf("%s is disabled; run 'dirmover enable' first", path)
		}

		done := make(chan struct{})
		go func() {
			a.engine.WaitSize(en)
			close(done)
		}()
		watch(done, func() {
			if s, ok := a.engine.SizeProgress(en); ok {
				logSnapshot("sizing", path, s)
			}
		})

		size := en.Size()
		switch size.State {
		case entry.Failed:
			return size.Err
		case entry.NotCalculated:
			return fmt.Errorf("size calculation of %s was cancelled", path)
		}

		t := size.Totals
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n", path)
		fmt.Fprintf(out, "  size:         %s (%d bytes)\n", sizer.HumanSize(t.Bytes), t.Bytes)
		fmt.Fprintf(out, "  files:        %d\n", t.Files)
		fmt.Fprintf(out, "  directories:  %d\n", t.Directories)
		fmt.Fprintf(out, "  average file: %s\n", sizer.HumanSize(int64(t.AverageFileSize())))
		if err := en.SpaceError(); err != nil {
			fmt.Fprintf(out, "  warning:      %v\n", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sizeCmd)
}
