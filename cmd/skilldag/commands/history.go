package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/skilldag/skilldag/pkg/engine"
	"github.com/skilldag/skilldag/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
		Long: `Inspect the run history database.

Every "skilldag run" records its result, per-skill outcomes and audit trails
unless --no-history is given.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryDeleteCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var (
		workflow string
		status   string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Example: `  # Last failed runs of one workflow
  skilldag history list --workflow nightly --status failed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, stores.RunFilter{
				Workflow: workflow,
				Status:   engine.ExecutionStatus(status),
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(os.Stdout, runs)
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tWORKFLOW\tSTATUS\tSTARTED\tDURATION\tNODES\tFAILED\tSKIPPED\tRETRIES")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					run.ID,
					run.Workflow,
					statusColor(run.Status).Sprint(run.Status),
					run.StartedAt.Local().Format(time.DateTime),
					run.Duration.Round(time.Millisecond),
					run.Summary.Total,
					run.Summary.Failed,
					run.Summary.Skipped,
					run.Summary.Retries,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&workflow, "workflow", "", "only runs of this workflow")
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs; 0 lists all")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	var audit bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the per-skill results of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			results, err := store.ListSkillResults(ctx, run.ID)
			if err != nil {
				return err
			}
			var events []*stores.AuditEventRecord
			if audit {
				if events, err = store.ListAuditEvents(ctx, run.ID, ""); err != nil {
					return err
				}
			}

			if jsonOutput {
				return printJSON(os.Stdout, struct {
					Run     *stores.Run                  `json:"run"`
					Results []*stores.SkillResultRecord `json:"results"`
					Audit   []*stores.AuditEventRecord  `json:"audit,omitempty"`
				}{run, results, events})
			}

			bold.Printf("%s", run.Workflow)
			fmt.Printf("  run %s  ", run.ID)
			statusColor(run.Status).Printf("%s", run.Status)
			fmt.Printf(" in %s\n", run.Duration.Round(time.Millisecond))
			if run.Source != "" {
				faint.Printf("source %s\n", run.Source)
			}
			fmt.Println()

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, res := range results {
				detail := ""
				if res.Error != nil {
					detail = *res.Error
				}
				fmt.Fprintf(tw, "  %s\t%s\t%s\tretries=%d\t%s\n",
					res.Node,
					statusColor(res.Status).Sprint(res.Status),
					res.Duration.Round(time.Millisecond),
					res.RetryCount,
					detail,
				)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if audit && len(events) > 0 {
				fmt.Println()
				tw = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				for _, ev := range events {
					msg := ev.Message
					if ev.Key != "" {
						msg = ev.Key
					}
					fmt.Fprintf(tw, "  %s\t%s\t#%d\t%s\t%s\n",
						ev.Timestamp.Local().Format("15:04:05.000"),
						ev.Node,
						ev.Attempt,
						ev.Type,
						msg,
					)
				}
				return tw.Flush()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&audit, "audit", false, "include the audit trail of every skill")

	return cmd
}

func newHistoryDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteRun(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted run %s\n", args[0])
			return nil
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	var (
		workflow string
		keep     int
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the most recent runs of a workflow",
		Example: `  # Keep the last 50 runs of the nightly workflow
  skilldag history prune --workflow nightly --keep 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if keep < 0 {
				return fmt.Errorf("--keep must not be negative")
			}

			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.PruneRuns(ctx, workflow, keep)
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d run(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflow, "workflow", "", "workflow whose runs are pruned")
	cmd.Flags().IntVar(&keep, "keep", 100, "number of most recent runs to keep")
	_ = cmd.MarkFlagRequired("workflow")

	return cmd
}
