package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dalscooter/concern-service/internal/persistence"
	"github.com/dalscooter/concern-service/internal/queue"
	"github.com/dalscooter/concern-service/internal/worker"
)

func deadLettersCmd() *cobra.Command {
	var count int64
	var showBody bool
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "List dead-lettered intake messages, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap("dead-letters")
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			redis := persistence.NewRedis(ctx, rt.cfg.Redis, rt.logger)
			defer redis.Close()

			q := queue.NewRedisStreamQueue(redis.Client, rt.cfg.Queue, rt.logger)
			letters, err := q.DeadLetters(ctx, count)
			if err != nil {
				return err
			}
			pending, err := q.Pending(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pending leases: %d\n\n", pending)
			if len(letters) == 0 {
				fmt.Fprintln(out, color.New(color.FgGreen).Sprint("no dead letters"))
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE ID\tDELIVERIES\tFAILED AT\tREASON")
			for _, dl := range letters {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", dl.SourceID, dl.Deliveries, dl.FailedAt.Format(time.RFC3339), reasonLabel(dl.Reason))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if showBody {
				for _, dl := range letters {
					fmt.Fprintf(out, "\n%s:\n%s\n", dl.SourceID, dl.Body)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int64VarP(&count, "count", "n", 20, "number of entries to show")
	cmd.Flags().BoolVar(&showBody, "body", false, "print message bodies")
	return cmd
}

// reasonLabel highlights entries that exhausted their redelivery budget.
func reasonLabel(reason string) string {
	if strings.HasPrefix(reason, worker.ReasonMaxDeliveries) {
		return color.New(color.FgYellow).Sprint(reason)
	}
	return color.New(color.FgRed).Sprint(reason)
}
