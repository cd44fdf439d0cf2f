package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/db"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

// interactive reports whether forms and prompts can be shown.
func interactive(cmd *cobra.Command) bool {
	in, ok := cmd.InOrStdin().(*os.File)
	return ok && ui.IsTerminal(in) && ui.IsTerminal(os.Stdout)
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "add [title...]",
		GroupID: "tasks",
		Short:   "Create a task",
		Long: `Create a task for the signed-in user. The task is saved locally at once
and pushed to the remote in the background.

With no title on a terminal, a form asks for title and description.

Examples:
  tsk add Buy milk
  tsk add "Call the plumber" -d "before Friday"
  tsk add`,
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args, " ")
			description, _ := cmd.Flags().GetString("description")

			if len(args) == 0 && interactive(cmd) {
				if err := ui.EditTask(&title, &description); err != nil {
					return err
				}
			}

			return opts.withApp(cmd, func(a *app) error {
				id, err := a.svc.Create(cmd.Context(), title, description)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Created %s %s\n",
					ui.RenderPass("✓"), ui.RenderMuted(ui.ShortID(id)), strings.TrimSpace(title))
				return nil
			})
		},
	}
	cmd.Flags().StringP("description", "d", "", "Task description")
	return cmd
}

func newEditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "edit <id>",
		GroupID: "tasks",
		Short:   "Change a task's title or description",
		Long: `Change the title or description of a task. The id may be the full id or
the short suffix shown by 'tsk list'.

Without --title or --description on a terminal, a form opens with the
current values.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(a *app) error {
				ctx := cmd.Context()
				id, err := a.svc.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				task, err := a.svc.Get(ctx, id)
				if err != nil {
					return err
				}

				title, description := task.Title, task.Description
				flags := cmd.Flags()
				switch {
				case flags.Changed("title") || flags.Changed("description"):
					if flags.Changed("title") {
						title, _ = flags.GetString("title")
					}
					if flags.Changed("description") {
						description, _ = flags.GetString("description")
					}
				case interactive(cmd):
					if err := ui.EditTask(&title, &description); err != nil {
						return err
					}
				default:
					return errors.New("nothing to change: pass --title or --description")
				}

				if err := a.svc.Update(ctx, id, title, description); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Updated %s\n", ui.RenderPass("✓"), ui.RenderMuted(ui.ShortID(id)))
				return nil
			})
		},
	}
	cmd.Flags().StringP("title", "t", "", "New title")
	cmd.Flags().StringP("description", "d", "", "New description")
	return cmd
}

func newDoneCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "done <id>",
		Aliases: []string{"toggle"},
		GroupID: "tasks",
		Short:   "Toggle a task between open and completed",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(a *app) error {
				ctx := cmd.Context()
				id, err := a.svc.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				if err := a.svc.ToggleComplete(ctx, id); err != nil {
					return err
				}
				task, err := a.svc.Get(ctx, id)
				if err != nil {
					return err
				}

				state := "reopened"
				if task.IsCompleted {
					state = "completed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
					ui.RenderPass("✓"), strings.ToUpper(state[:1])+state[1:], task.Title)
				return nil
			})
		},
	}
}

func newRmCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		GroupID: "tasks",
		Short:   "Delete a task",
		Long: `Delete a task locally and from the remote. The task disappears from this
device immediately, even if the remote delete fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			return opts.withApp(cmd, func(a *app) error {
				ctx := cmd.Context()
				id, err := a.svc.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				task, err := a.svc.Get(ctx, id)
				if err != nil {
					return err
				}

				if !yes && interactive(cmd) {
					ok, err := ui.Confirm(fmt.Sprintf("Delete %q?", task.Title))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
						return nil
					}
				}

				if err := a.svc.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted %s\n", ui.RenderPass("✓"), task.Title)
				return nil
			})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		GroupID: "tasks",
		Short:   "List your tasks, newest first",
		Long: `List the signed-in user's tasks, newest first. The remote is pulled first
unless --no-sync is given. Tasks marked ↑ have not reached the remote yet.

--since accepts a duration (36h), a date (2026-03-01) or plain English
("yesterday", "last monday", "2 weeks ago").

Examples:
  tsk list
  tsk list --all --since yesterday
  tsk list --unsynced`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			all, _ := flags.GetBool("all")
			unsynced, _ := flags.GetBool("unsynced")
			limit, _ := flags.GetInt("limit")
			noSync, _ := flags.GetBool("no-sync")
			sinceArg, _ := flags.GetString("since")

			since, err := parseSince(sinceArg, time.Now())
			if err != nil {
				return err
			}

			return opts.withApp(cmd, func(a *app) error {
				if _, err := a.svc.User(); err != nil {
					return err
				}
				a.pull(cmd, noSync)

				list, err := a.svc.List(cmd.Context(), db.ListOptions{
					HideCompleted: !all,
					UnsyncedOnly:  unsynced,
					Since:         since,
					Limit:         limit,
				})
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), ui.RenderTaskList(list, ui.Width()))
				return nil
			})
		},
	}
	cmd.Flags().BoolP("all", "a", false, "Include completed tasks")
	cmd.Flags().Bool("unsynced", false, "Only tasks that have not reached the remote")
	cmd.Flags().IntP("limit", "n", 0, "Show at most n tasks")
	cmd.Flags().String("since", "", "Only tasks created since this time")
	cmd.Flags().Bool("no-sync", false, "Do not pull before listing")
	return cmd
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show <id>",
		GroupID: "tasks",
		Short:   "Show one task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			noSync, _ := cmd.Flags().GetBool("no-sync")

			return opts.withApp(cmd, func(a *app) error {
				if _, err := a.svc.User(); err != nil {
					return err
				}
				a.pull(cmd, noSync)

				ctx := cmd.Context()
				id, err := a.svc.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				task, err := a.svc.Get(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), ui.RenderTask(task))
				return nil
			})
		},
	}
	cmd.Flags().Bool("no-sync", false, "Do not pull first")
	return cmd
}
