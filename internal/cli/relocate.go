package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"dirmover/internal/relocate"
	"dirmover/internal/sizer"
)

var (
	relocateTarget string
	relocateYes    bool
)

var relocateCmd = &cobra.Command{
	Use:   "relocate <path>",
	Short: "Move a directory to its target and link it, or move a link back",
	Long: `A plain directory is copied to <target>/<name>, the original is removed
and a link takes its place. A link is reverted: its target is copied back,
the link replaced by the copy and the old target removed.

SIGINT or SIGTERM cancel the copy; the source is never touched before the
copy completes.`,
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

		en := a.engine.Load(path)
		if relocateTarget != "" {
			target, err := absArg(relocateTarget)
			if err != nil {
				return err
			}
			if err := en.SetTarget(target); err != nil {
				return err
			}
		}
		if err := en.Err(); err != nil {
			return err
		}

		question := fmt.Sprintf("Move %s to %s and link it?", path, en.Target())
		if en.IsLink() {
			question = fmt.Sprintf("Move %s back to %s and remove the link?", en.Target(), path)
		}
		if !relocateYes && !confirm(cmd, question) {
			return errors.New("aborted")
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		done := make(chan struct{})
		var (
			res    relocate.Result
			runErr error
		)
		go func() {
			defer close(done)
			res, runErr = a.engine.Relocate(ctx, en)
		}()
		watch(done, func() {
			if p, ok := a.engine.Progress(path); ok {
				logSnapshot(p.Phase.String(), path, p.Snapshot)
			}
		})

		out := cmd.OutOrStdout()
		for _, s := range res.Steps {
			state := "ok"
			if s.Err != nil {
				state = s.Err.Error()
			}
			fmt.Fprintf(out, "  %-22s %s\n", s.Name, state)
		}
		if runErr != nil {
			if res.Phase == relocate.Failed && res.Operation.Destination != "" && len(res.Steps) == 0 {
				slog.Warn("partial copy left in place", "path", res.Operation.Destination)
			}
			return fmt.Errorf("%s %s: %w", res.Operation.Mode, res.Phase, runErr)
		}

		fmt.Fprintf(out, "%s: %s %s (%d files)\n", res.Phase, res.Operation.Mode, path, res.Totals.Files)
		fmt.Fprintf(out, "  moved %s from %s to %s\n", sizer.HumanSize(res.Totals.Bytes), res.Operation.Source, res.Operation.Destination)
		if res.Warning != nil {
			fmt.Fprintf(out, "  warning: %v\n", res.Warning)
		}
		return nil
	},
}

func init() {
	relocateCmd.Flags().StringVar(&relocateTarget, "target", "", "target root instead of the directory set's")
	relocateCmd.Flags().BoolVarP(&relocateYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(relocateCmd)
}
