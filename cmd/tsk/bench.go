package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/loadtest"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bench",
		GroupID: "maint",
		Short:   "Measure local store latency under concurrent load",
		Long: `Seed a scratch database with synthetic users, then run concurrent list
queries and a mixed read/write phase. Your own database and remote are
never touched.

Examples:
  tsk bench
  tsk bench --users 20 --tasks 500 --readers 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			users, _ := flags.GetInt("users")
			perUser, _ := flags.GetInt("tasks")
			readers, _ := flags.GetInt("readers")
			queries, _ := flags.GetInt("queries")
			mixed, _ := flags.GetDuration("mixed")

			dir, err := os.MkdirTemp("", "tsk-bench-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			start := time.Now()
			f, err := loadtest.NewFixture(ctx, filepath.Join(dir, "bench.db"), users, perUser)
			if err != nil {
				return err
			}
			defer f.Close()
			fmt.Fprintf(out, "Seeded %d tasks for %d users in %v\n\n",
				users*perUser, users, time.Since(start).Round(timeRounding))

			stats, err := f.RunConcurrentQueries(ctx, readers, queries)
			if stats != nil {
				stats.Fprint(out)
			}
			if err != nil {
				return err
			}

			if mixed > 0 {
				fmt.Fprintf(out, "\nMixed read/write for %v...\n", mixed)
				if err := f.RunMixed(ctx, readers, mixed); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "\n%s No foreign tasks seen by any reader\n", ui.RenderPass("✓"))
			return nil
		},
	}
	cmd.Flags().Int("users", 10, "Synthetic users")
	cmd.Flags().Int("tasks", 200, "Tasks per user")
	cmd.Flags().Int("readers", 50, "Concurrent readers")
	cmd.Flags().Int("queries", 20, "Queries per reader")
	cmd.Flags().Duration("mixed", 2*time.Second, "Length of the mixed phase (0 skips it)")
	return cmd
}
