package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"pvz/internal/di"
	"pvz/internal/services"
	"pvz/internal/structures"
	"pvz/internal/zombie"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	flags := &structures.CliFlags{}

	root := &cobra.Command{
		Use:           "pvz",
		Short:         "Find inactive accounts in a Nostr follow list",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&flags.DebugMode, "debug", "d", false, "mirror logs to stderr")

	root.AddCommand(newServeCmd(flags), newScanCmd(flags))
	return root
}

func newServeCmd(flags *structures.CliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := di.InitApp(flags)
			return err
		},
	}
}

func newScanCmd(flags *structures.CliFlags) *cobra.Command {
	var (
		pubkeys []string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "scan [owner]",
		Short: "Scan the follow list of owner, or the accounts given with --pubkeys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := services.Request{Pubkeys: pubkeys}
			if len(args) == 1 {
				req.Owner = args[0]
			}

			rt, err := di.InitRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			progress := zombie.ProgressFunc(func(p zombie.Progress) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\r%-18s %d/%d (empty %d)   ", p.Stage, p.Processed, p.Total, p.ZombiesFound)
			})
			report, err := rt.Service.Scan(ctx, req, progress)
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			queueSize := rt.Config.Scan.QueueBatchSize
			queue, err := rt.Service.GetQueue(report.Owner, queueSize)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), report, queue)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&pubkeys, "pubkeys", nil, "explicit hex pubkeys to scan instead of a follow list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	return cmd
}

func printSummary(w io.Writer, report *services.Report, queue [][]zombie.Result) {
	counts := report.Classification.Counts()
	fmt.Fprintf(w, "scanned %d accounts in %s\n", report.Total, report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	for _, cat := range zombie.Categories {
		fmt.Fprintf(w, "  %-8s %d\n", cat, counts[cat])
	}
	for _, p := range report.Passes {
		fmt.Fprintf(w, "  pass %-17s queried=%d resolved=%d timeouts=%d\n", p.Name, p.Queried, p.Resolved, p.Timeouts)
	}
	fmt.Fprintf(w, "unfollow queue: %d zombies in %d batches\n", report.Classification.Zombies(), len(queue))
}
