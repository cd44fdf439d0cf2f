package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/dashboard"
	"github.com/mschirtzinger/tasksync/internal/db"
	"github.com/mschirtzinger/tasksync/internal/schedule"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		GroupID: "sync",
		Short:   "Run a live change feed and scheduled pulls",
		Long: `Serve a small dashboard for the signed-in user:

  GET /health          liveness
  GET /api/tasks       the task list as JSON
  GET /api/tasks/{id}  one task
  /ws                  websocket feed of task_update, sync_complete and stats

The remote is pulled at start and then on serve.pull_schedule (a cron spec,
default "@every 1m"). Writes from other tsk processes on this device are
picked up by watching the database file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return opts.withApp(cmd, func(a *app) error {
				userID, err := a.svc.User()
				if err != nil {
					return err
				}

				flags := cmd.Flags()
				port := a.cfg.Serve.Port
				if flags.Changed("port") {
					port, _ = flags.GetInt("port")
				}
				spec := a.cfg.Serve.PullSchedule
				if flags.Changed("schedule") {
					spec, _ = flags.GetString("schedule")
				}
				host, _ := flags.GetString("host")
				if spec != "" {
					if err := schedule.Validate(spec); err != nil {
						return err
					}
				}

				logger := a.logger("dashboard")
				server := dashboard.NewServer(&dashboard.Config{
					Port:   port,
					Host:   host,
					Source: a.svc,
					Logger: logger,
				})
				handler := dashboard.NewHandler(server, userID, logger)
				unsubscribe := handler.Attach(a.store)
				defer unsubscribe()

				if err := server.Start(); err != nil {
					return err
				}
				defer func() {
					if err := server.Stop(); err != nil {
						logger.Printf("WARNING: %v", err)
					}
				}()
				go handler.Run(ctx)

				watcher, err := db.NewWatcher(a.store.Path(), db.DefaultDebounce)
				if err != nil {
					return err
				}
				if err := watcher.Start(); err != nil {
					return err
				}
				defer watcher.Stop()
				go handler.Follow(ctx, watcher)

				pull := func() { handler.OnPull(a.svc.Pull(ctx)) }
				pull()

				if spec != "" {
					sched := schedule.New(nil, a.logger("schedule"))
					if _, err := sched.Add(spec, pull); err != nil {
						return err
					}
					sched.Start()
					defer func() {
						stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
						defer cancel()
						_ = sched.Stop(stopCtx)
					}()
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s Serving %s on http://%s (Ctrl+C to stop)\n",
					ui.RenderPass("✓"), ui.RenderAccent(userID), server.GetAddr())

				<-ctx.Done()
				return nil
			})
		},
	}
	cmd.Flags().IntP("port", "p", 0, "Port to listen on (default: serve.port)")
	cmd.Flags().String("host", "127.0.0.1", "Address to bind")
	cmd.Flags().String("schedule", "", "Pull schedule cron spec, empty disables (default: serve.pull_schedule)")
	return cmd
}
