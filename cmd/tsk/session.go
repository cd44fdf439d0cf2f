package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/config"
	tsync "github.com/mschirtzinger/tasksync/internal/sync"
	"github.com/mschirtzinger/tasksync/internal/tasks"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "init",
		GroupID: "setup",
		Short:   "Write a default config file",
		Long: `Write config.toml with default settings and a fresh device id.

The file goes next to --config when given, otherwise into $TSK_HOME,
$XDG_CONFIG_HOME/tsk or ~/.config/tsk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			dir := filepath.Dir(opts.configPath)
			if opts.configPath == "" {
				home, err := config.HomeDir()
				if err != nil {
					return err
				}
				dir = home
			}

			cfg, err := config.WriteDefault(dir, force)
			if errors.Is(err, config.ErrExists) {
				return fmt.Errorf("%w (use --force to overwrite)", err)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Wrote %s\n", ui.RenderPass("✓"), filepath.Join(dir, config.FileName))
			fmt.Fprintf(out, "  Device: %s\n", cfg.Device.ID)
			fmt.Fprintf(out, "  Remote: %s %s\n", cfg.Remote.Kind, cfg.Remote.Addr)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing config file")
	return cmd
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "login <user-id>",
		GroupID: "setup",
		Short:   "Sign in and pull your tasks",
		Long: `Sign in as user-id on this device, then pull that user's tasks from the
remote. Tasks stored locally for other users stay on disk but are never
shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(a *app) error {
				userID := strings.TrimSpace(args[0])
				if userID == "" {
					return fmt.Errorf("%w: user id is empty", tasks.ErrAuth)
				}
				if _, err := a.sessions.Login(userID); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s Signed in as %s\n", ui.RenderPass("✓"), ui.RenderAccent(userID))

				noSync, _ := cmd.Flags().GetBool("no-sync")
				if noSync {
					return nil
				}
				res := a.svc.Pull(cmd.Context())
				printPull(cmd, res)
				return nil
			})
		},
	}
	cmd.Flags().Bool("no-sync", false, "Do not pull after signing in")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "logout",
		GroupID: "setup",
		Short:   "Sign out of this device",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			sessions := newSessionStore(cfg)
			if err := sessions.Logout(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Signed out\n", ui.RenderPass("✓"))
			return nil
		},
	}
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "whoami",
		GroupID: "setup",
		Short:   "Show the signed-in user",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			session, err := newSessionStore(cfg).Load()
			if err != nil {
				return fmt.Errorf("%w: %w", tasks.ErrAuth, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (since %s)\n",
				ui.RenderAccent(session.UserID), session.SignedInAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
}

// printPull reports a pull outcome in one line.
func printPull(cmd *cobra.Command, res tsync.PullResult) {
	out := cmd.OutOrStdout()
	switch res.Status {
	case tsync.PullOK:
		fmt.Fprintf(out, "%s Pulled %d task(s): %d applied, %d unchanged, %d skipped (%v)\n",
			ui.RenderPass("✓"), res.Fetched, res.Applied, res.Unchanged, res.Skipped, res.Duration.Round(timeRounding))
	case tsync.PullOffline:
		fmt.Fprintf(out, "%s Offline, nothing pulled\n", ui.RenderWarn("⚠"))
	case tsync.PullNoUser:
		fmt.Fprintf(out, "%s Not signed in, nothing pulled\n", ui.RenderWarn("⚠"))
	case tsync.PullFailed:
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Pull failed: %v\n", ui.RenderFail("✗"), res.Err)
	}
}
