package cli

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/sebastianrcnt/learnus-bot/updater"
)

func newUpdateCmd(app *App) *cobra.Command {
	var checkOnly bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Replace this binary with the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u := app.updater(cmd)

			release, newer, err := u.CheckForUpdate(cmd.Context())
			if errors.Is(err, updater.ErrDevelopmentBuild) {
				return fmt.Errorf("version %q: %w", app.Version, err)
			}
			if err != nil {
				return err
			}
			if !newer {
				fmt.Fprintf(cmd.OutOrStdout(), "learnus-bot %s is up to date\n", app.Version)
				return nil
			}
			if checkOnly {
				fmt.Fprintf(cmd.OutOrStdout(), "learnus-bot %s is available (current %s)\n", release.Version(), app.Version)
				return nil
			}
			if err := u.Update(cmd.Context(), release); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated to %s\n", release.Version())
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether a newer release exists")

	return cmd
}

func (a *App) updater(cmd *cobra.Command) Updater {
	if a.NewUpdater != nil {
		return a.NewUpdater()
	}
	logger := log.New(cmd.ErrOrStderr(), "[UPDATER] ", log.LstdFlags)
	return updater.New(updater.DefaultConfig(a.Version), logger)
}
