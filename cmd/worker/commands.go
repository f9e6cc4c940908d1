package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/uml-studio-backend/config"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/bootstrap"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/sweeper"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "worker",
		Short:         "Background jobs for the UML studio backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newScheduleCmd(), newSweepCmd(), newMigrateCmd())
	return root
}

// withApp loads config, wires the application and hands it to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := bootstrap.NewLogger(cfg.App).With().Str("cmd", cmd.Name()).Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the stale-generation sweeper on its cron schedule until signalled",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				s := sweeper.NewScheduler(app.Projects, app.Config.Sweeper.Schedule, app.Config.Sweeper.StaleAfter, app.Log)
				if err := s.Start(); err != nil {
					return err
				}
				<-ctx.Done()

				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				s.Stop(stopCtx)
				return nil
			})
		},
	}
}

func newSweepCmd() *cobra.Command {
	var staleAfter time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fail projects stuck in PENDING once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				after := app.Config.Sweeper.StaleAfter
				if staleAfter > 0 {
					after = staleAfter
				}
				n, err := sweeper.NewScheduler(app.Projects, app.Config.Sweeper.Schedule, after, app.Log).RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "failed %d stale project(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "override SWEEPER_STALE_AFTER")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if err := app.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
				return nil
			})
		},
	}
}
