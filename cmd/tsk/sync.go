package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/config"
	tsync "github.com/mschirtzinger/tasksync/internal/sync"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		GroupID: "sync",
		Short:   "Pull the remote state into this device",
		Long: `Pull every remote task owned by the signed-in user and merge it into the
local store. The remote version wins for every task it has; tasks that
exist only on this device are left alone.

Pushes are not retried here: a task that failed to push stays marked ↑
until it is edited again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(a *app) error {
				if _, err := a.svc.User(); err != nil {
					return err
				}
				res := a.svc.Pull(cmd.Context())
				if res.Status == tsync.PullFailed {
					return fmt.Errorf("pull failed: %w", res.Err)
				}
				printPull(cmd, res)
				return nil
			})
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: "sync",
		Short:   "Show counts and sync state",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(a *app) error {
				ctx := cmd.Context()
				st, err := a.svc.Status(ctx)
				if err != nil {
					return err
				}
				version, err := a.store.SchemaVersion(ctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "User:      %s\n", ui.RenderAccent(st.UserID))
				fmt.Fprintf(out, "Tasks:     %d (%d completed)\n", st.Counts.Total, st.Counts.Completed)
				if st.Counts.Unsynced > 0 {
					fmt.Fprintf(out, "Unsynced:  %s\n", ui.RenderWarn(fmt.Sprintf("%d", st.Counts.Unsynced)))
				} else {
					fmt.Fprintf(out, "Unsynced:  %s\n", ui.RenderPass("0"))
				}
				fmt.Fprintf(out, "Remote:    %s\n", describeRemote(a.cfg))
				fmt.Fprintf(out, "Network:   %s\n", describeNetwork(ctx, a))
				fmt.Fprintf(out, "Store:     %s (schema v%d)\n", a.store.Path(), version)
				if a.cfg.Device.ID != "" {
					fmt.Fprintf(out, "Device:    %s\n", a.cfg.Device.ID)
				}
				return nil
			})
		},
	}
}

func describeRemote(cfg *config.Config) string {
	if cfg.Remote.Kind == config.RemoteMemory {
		return "memory (this process only)"
	}
	return fmt.Sprintf("redis %s db=%d prefix=%q", cfg.Remote.Addr, cfg.Remote.DB, cfg.Remote.Prefix)
}

func describeNetwork(ctx context.Context, a *app) string {
	if a.checker.IsConnected(ctx) {
		return ui.RenderPass("online")
	}
	return ui.RenderWarn("offline")
}
