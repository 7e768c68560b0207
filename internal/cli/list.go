package cli

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dirmover/internal/entry"
	"dirmover/internal/sizer"
)

var listSizes bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the directories under every configured source root",
	Long: `Lists each subdirectory of every configured source root with its kind
(plain directory or link), target, cached size and status. With --sizes the
sizes are recalculated first, honouring calculate_sizes and disabled entries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		entries := a.engine.Enumerate(ctx)
		if _, err := a.engine.PruneSizes(ctx); err != nil {
			slog.Warn("pruning cached sizes failed", "err", err)
		}
		if listSizes {
			for _, en := range entries {
				a.engine.CalculateSize(ctx, en)
			}
			for _, en := range entries {
				a.engine.WaitSize(en)
			}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tKIND\tTARGET\tSIZE\tSTATUS")
		for _, en := range entries {
			v := en.Snapshot()
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.Path, kind(v), v.Target, sizeColumn(en), status(v))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		total, ready := entry.Sum(entries)
		suffix := ""
		if !ready {
			suffix = " (incomplete)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d entries, total %s%s\n", len(entries), sizer.HumanSize(total), suffix)
		return ctx.Err()
	},
}

func kind(v entry.View) string {
	if v.IsLink {
		return "link"
	}
	return "dir"
}

func status(v entry.View) string {
	switch {
	case v.Err != nil:
		return "error: " + v.Err.Error()
	case v.Disabled:
		return "disabled"
	case v.Warning != nil:
		return "warning: " + v.Warning.Error()
	case v.IsLink:
		return "relocated"
	}
	return "ok"
}

func init() {
	listCmd.Flags().BoolVar(&listSizes, "sizes", false, "recalculate sizes before listing")
	rootCmd.AddCommand(listCmd)
}
