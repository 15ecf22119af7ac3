package main

import (
	"context"
	"errors"
	"sync"

	"github.com/sakashimaa/vani-inventory/internal/gate"
	"github.com/sakashimaa/vani-inventory/internal/terminal"
	"github.com/sakashimaa/vani-inventory/internal/workflow"
	"github.com/sakashimaa/vani-inventory/migrations"
	"github.com/sakashimaa/vani-inventory/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Open the interactive inventory screen",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			st, err := newStack(ctx, "inventory-shell")
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				st.close(closeCtx)
			}()

			if err := db.Migrate(st.cfg.Postgres.URL, migrations.FS); err != nil {
				return err
			}

			runCtx, cancelRun := context.WithCancel(ctx)
			defer cancelRun()

			// With the kafka feed the screen only sees its own writes once
			// they are relayed, so the shell relays as well.
			stopOutbox := func() {}
			if st.cfg.Projection.Feed == feedKafka {
				stopOutbox, err = st.startOutbox(runCtx)
				if err != nil {
					return err
				}
			}

			var wg sync.WaitGroup
			wg.Go(func() {
				if err := st.live.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					st.logger.Error("Live projection stopped", zap.Error(err))
				}
			})

			console := terminal.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout())
			console.Start(runCtx)

			g := gate.New(st.authenticator(console.Passcode), st.flag, st.cfg.Auth.SessionTTL, st.logger)
			wf := workflow.New(st.service, console, st.cfg.Currency, st.logger)

			err = terminal.NewScreen(console, wf, g, st.live, st.cfg.Currency, st.logger).Run(runCtx)

			cancelRun()
			wg.Wait()
			stopOutbox()

			return err
		},
	}
}
