package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/echolock/echolock/internal/common"
	"github.com/echolock/echolock/internal/config"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every persisted switch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return common.NewError(common.KindParameterError, "loading configuration", err)
			}
			coord := newCoordinator(cfg)
			switches, err := coord.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(switches) == 0 {
				fmt.Fprintln(out, "no switches")
				return nil
			}
			for _, sw := range switches {
				fmt.Fprintf(out, "%s\t%-10s\t%s\n", sw.ID, sw.State, sw.Title)
			}
			return nil
		},
	}
}

func newSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Mark a switch as the default target for other commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return common.NewError(common.KindParameterError, "loading configuration", err)
			}
			coord := newCoordinator(cfg)
			if _, err := coord.Status(args[0]); err != nil {
				return err
			}
			if err := writeSelectedID(cfg.DataDir, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "selected %s\n", args[0])
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Permanently remove a switch's persisted record",
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
			if err := coord.Delete(switchID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", switchID)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "switch id (defaults to the currently selected switch)")
	return cmd
}
