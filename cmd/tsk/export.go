package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/db"
	"github.com/mschirtzinger/tasksync/internal/export"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "export",
		GroupID: "sync",
		Short:   "Write all your tasks as JSON, JSON Lines or YAML",
		Long: `Write every task of the signed-in user, completed ones included, to stdout
or to --output. The remote is pulled first unless --no-sync is given.

Examples:
  tsk export > tasks.json
  tsk export --format yaml -o tasks.yaml
  tsk export --format jsonl | jq .title`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			formatArg, _ := flags.GetString("format")
			output, _ := flags.GetString("output")
			noSync, _ := flags.GetBool("no-sync")

			format, err := export.ParseFormat(formatArg)
			if err != nil {
				return err
			}

			return opts.withApp(cmd, func(a *app) error {
				userID, err := a.svc.User()
				if err != nil {
					return err
				}
				a.pull(cmd, noSync)

				list, err := a.svc.List(cmd.Context(), db.ListOptions{})
				if err != nil {
					return err
				}
				snap := export.NewSnapshot(userID, list, time.Now())

				if output == "" || output == "-" {
					return export.Write(cmd.OutOrStdout(), format, snap)
				}

				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				if err := export.Write(f, format, snap); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("failed to write %s: %w", output, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s Exported %d task(s) to %s\n",
					ui.RenderPass("✓"), len(list), output)
				return nil
			})
		},
	}
	cmd.Flags().StringP("format", "f", string(export.FormatJSON), "Output format: json, jsonl or yaml")
	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	cmd.Flags().Bool("no-sync", false, "Do not pull first")
	return cmd
}
