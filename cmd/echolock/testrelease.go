package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/echolock/echolock/crypto"
	"github.com/echolock/echolock/internal/common"
	"github.com/echolock/echolock/internal/config"
)

func newTestReleaseCmd() *cobra.Command {
	var id string
	var shareHex []string
	cmd := &cobra.Command{
		Use:   "test-release",
		Short: "Rebuild the plaintext from locally supplied shares, without touching the network or mutating state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return common.NewError(common.KindParameterError, "loading configuration", err)
			}
			switchID, err := resolveID(cfg.DataDir, id)
			if err != nil {
				return err
			}
			if len(shareHex) == 0 {
				return common.NewError(common.KindParameterError, "test-release requires at least one --share", nil)
			}

			shares := make([]crypto.Share, len(shareHex))
			for i, h := range shareHex {
				raw, err := hex.DecodeString(h)
				if err != nil {
					return common.NewError(common.KindParameterError, "invalid hex share", err)
				}
				s, err := crypto.UnmarshalShare(raw)
				if err != nil {
					return err
				}
				shares[i] = s
			}

			coord := newCoordinator(cfg)
			plaintext, err := coord.TestRelease(switchID, shares)
			if err != nil {
				return err
			}
			cmd.OutOrStdout().Write(plaintext)
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "switch id (defaults to the currently selected switch)")
	cmd.Flags().StringArrayVar(&shareHex, "share", nil, "hex-encoded marshaled share; repeat at least k times")
	return cmd
}
