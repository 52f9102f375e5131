package main

import (
	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Boot the previous firmware bank",
	RunE: func(cmd *cobra.Command, args []string) error {
		u, _, err := buildUpdater(&processRestarter{})
		if err != nil {
			return err
		}
		return u.Partitions().Rollback()
	},
}

var markValidCmd = &cobra.Command{
	Use:   "mark-valid",
	Short: "Confirm the running image and cancel a pending rollback",
	RunE: func(cmd *cobra.Command, args []string) error {
		u, _, err := buildUpdater(&processRestarter{})
		if err != nil {
			return err
		}

		if u.Partitions().MarkAsValid() {
			cmd.Println("firmware marked as valid")
		} else {
			cmd.Println("nothing to confirm")
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show partition and update state",
	RunE: func(cmd *cobra.Command, args []string) error {
		u, cfg, err := buildUpdater(&processRestarter{})
		if err != nil {
			return err
		}

		parts := u.Partitions()
		cmd.Printf("version:         %s\n", cfg.CurrentVersion)
		cmd.Printf("manifest url:    %s\n", cfg.ManifestURL)
		cmd.Printf("boot partition:  %s\n", parts.BootPartitionLabel())
		cmd.Printf("next partition:  %s\n", parts.NextUpdatePartitionLabel())
		cmd.Printf("can rollback:    %v\n", parts.CanRollback())
		if filename := u.LastInstalledFilename(); filename != "" {
			cmd.Printf("last installed:  %s\n", filename)
		}
		return nil
	},
}

var clearRecordCmd = &cobra.Command{
	Use:   "clear-record",
	Short: "Forget the last installed forced image",
	Long:  "Clears the persisted install record so a forced image with the same filename can install again.",
	RunE: func(cmd *cobra.Command, args []string) error {
		u, _, err := buildUpdater(&processRestarter{})
		if err != nil {
			return err
		}
		return u.ClearRecord()
	},
}
