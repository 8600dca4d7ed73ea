package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/echolock/echolock/internal/common"
	"github.com/echolock/echolock/internal/config"
)

func newCheckInCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "check-in",
		Short: "Issue a heartbeat for a switch, extending its deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return common.NewError(common.KindParameterError, "loading configuration", err)
			}
			switchID, err := resolveID(cfg.DataDir, id)
			if err != nil {
				return err
			}
			ownerSK, err := loadOrCreateIdentity(cfg.DataDir, identityPassword)
			if err != nil {
				return err
			}
			coord := newCoordinator(cfg)
			if err := coord.CheckIn(context.Background(), ownerSK, switchID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked in %s\n", switchID)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "switch id (defaults to the currently selected switch)")
	return cmd
}
