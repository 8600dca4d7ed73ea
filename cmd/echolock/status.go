package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/echolock/echolock/internal/common"
	"github.com/echolock/echolock/internal/config"
)

func newStatusCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a switch's lifecycle state and next-heartbeat deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return common.NewError(common.KindParameterError, "loading configuration", err)
			}
			switchID, err := resolveID(cfg.DataDir, id)
			if err != nil {
				return err
			}
			coord := newCoordinator(cfg)
			if _, err := coord.RefreshLifecycle(context.Background(), switchID); err != nil {
				return err
			}
			view, err := coord.Status(switchID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:                %s\n", view.ID)
			fmt.Fprintf(out, "state:             %s\n", view.State)
			fmt.Fprintf(out, "created:           %s\n", view.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
			fmt.Fprintf(out, "last heartbeat:    %s\n", view.LastHeartbeat.Format("2006-01-02T15:04:05Z07:00"))
			fmt.Fprintf(out, "next heartbeat by: %s\n", view.NextHeartbeatDue.Format("2006-01-02T15:04:05Z07:00"))
			fmt.Fprintf(out, "time remaining:    %s\n", view.TimeRemaining)
			fmt.Fprintf(out, "check-ins so far:  %d\n", view.CheckInCount)
			fmt.Fprintf(out, "guardians acked:   %d/%d\n", view.AcknowledgedCount, view.GuardianCount)
			if view.TimelockAddress != "" {
				fmt.Fprintf(out, "timelock address:  %s\n", view.TimelockAddress)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "switch id (defaults to the currently selected switch)")
	return cmd
}
