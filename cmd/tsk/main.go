// Command tsk is a local-first task list that syncs with a remote store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/remote"
)

// rootOptions carries persistent flags to every command.
type rootOptions struct {
	configPath string
	verbose    bool
	offline    bool
	remoteKind string

	// remote replaces the configured remote store; used by tests.
	remote remote.Store
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tsk",
		Short: "Local-first task list with remote sync",
		Long: `tsk keeps your tasks in a local database and syncs them with a remote
document store so every device you sign in on sees the same list.

Writes always land locally first. Pushes to the remote happen in the
background and never block or fail a command; tasks that have not reached
the remote yet are marked with ↑ in listings. Reading commands pull the
remote state first (remote wins), unless --no-sync is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Tasks:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default: $TSK_HOME/config.toml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log sync activity")
	flags.BoolVar(&opts.offline, "offline", false, "Skip all remote calls for this command")
	flags.StringVar(&opts.remoteKind, "remote", "", "Override remote.kind (redis or memory)")

	rootCmd.AddCommand(
		newInitCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newAddCmd(opts),
		newEditCmd(opts),
		newDoneCmd(opts),
		newRmCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newSyncCmd(opts),
		newStatusCmd(opts),
		newExportCmd(opts),
		newServeCmd(opts),
		newBenchCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd(&rootOptions{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
