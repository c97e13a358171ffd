package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/autopost/autopost/internal/trigger"
)

// runCommands runs a single cycle in the foreground and prints its outcomes.
func runCommands(b *autopostInstance) *cobra.Command {
	var dryRun bool
	var maxPosts int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run one publish cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := trigger.Options{Reason: "cli", MaxPosts: maxPosts}
			if cmd.Flags().Changed("dry-run") {
				opts.DryRun = &dryRun
			}
			report, err := b.runner.Run(ctx, opts)
			if report != nil {
				printOutcomes(report)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate publishing regardless of the configuration")
	cmd.Flags().IntVar(&maxPosts, "max-posts", 0, "override max_posts_per_cycle for this run")
	return cmd
}

func printOutcomes(report *trigger.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ASSET\tSTATUS\tEXTERNAL ID\tCAPTION / ERROR")
	for _, o := range report.Outcomes {
		detail := o.Caption
		if o.Error != "" {
			detail = o.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.AssetID, o.Status, o.ExternalID, detail)
	}
	_ = w.Flush()
	if len(report.Outcomes) == 0 {
		fmt.Println("nothing left to publish")
	}
	logrus.WithField("took", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond)).Debug("run finished")
}

// historyCommands prints the most recent posts and errors from the ledger.
func historyCommands(b *autopostInstance) *cobra.Command {
	var limit int
	var showErrors bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "show recent posts (or errors with --errors)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer w.Flush()

			if showErrors {
				records, err := b.autopost.Ledger().ListErrors(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "TIME\tCONTEXT\tCYCLE\tMESSAGE")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.CreatedAt.Format(time.RFC3339), r.Context, r.CycleID, r.Message)
				}
				return nil
			}

			posts, err := b.autopost.Ledger().ListPosts(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "TIME\tASSET\tSTATUS\tSOURCE\tEXTERNAL ID")
			for _, p := range posts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.CreatedAt.Format(time.RFC3339), p.AssetID, p.Status, p.CaptionSource, p.ExternalID)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of rows to show")
	cmd.Flags().BoolVar(&showErrors, "errors", false, "show recorded errors instead of posts")
	return cmd
}
