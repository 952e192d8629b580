package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newTasksCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List pending scheduled tasks of every processor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			// Processors are not set up, so no scheduler is polling.
			defer a.store.Close()

			schedulers := a.pipeline.Schedulers()
			ids := make([]string, 0, len(schedulers))
			for id := range schedulers {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROCESSOR\tTASK\tDUE\tPAYLOAD")
			for _, id := range ids {
				tasks, err := schedulers[id].Pending(ctx)
				if err != nil {
					return fmt.Errorf("list tasks of %s: %w", id, err)
				}
				for _, task := range tasks {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, task.ID, task.Due.UTC().Format(time.RFC3339), task.Payload)
				}
			}
			return w.Flush()
		},
	}
}
