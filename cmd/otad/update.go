package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/otakitio/otakit/updater"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check for an available update without installing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		u, _, err := buildUpdater(&processRestarter{})
		if err != nil {
			return err
		}

		if !u.HasUpdate(cmd.Context()) {
			cmd.Println("up to date")
			return nil
		}

		c := u.Candidate()
		cmd.Printf("update available: %s (%s)\n", c.Version, c.Filename)
		if c.Force {
			cmd.Println("forced update")
		}
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Install the available update, checking first if needed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstall(cmd, func(ctx context.Context, u *updater.Updater) (updater.Outcome, error) {
			return u.Update(ctx)
		})
	},
}

var forceUpdateCmd = &cobra.Command{
	Use:   "force-update",
	Short: "Discard cached state and re-check before installing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstall(cmd, func(ctx context.Context, u *updater.Updater) (updater.Outcome, error) {
			return u.ForceUpdate(ctx)
		})
	},
}

func runInstall(cmd *cobra.Command, install func(context.Context, *updater.Updater) (updater.Outcome, error)) error {
	u, _, err := buildUpdater(&processRestarter{})
	if err != nil {
		return err
	}

	outcome, err := install(cmd.Context(), u)
	if err != nil {
		return err
	}
	cmd.Println(outcome.String())
	return nil
}
