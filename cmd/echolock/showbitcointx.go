package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/cobra"

	"github.com/echolock/echolock/internal/common"
	"github.com/echolock/echolock/internal/config"
	"github.com/echolock/echolock/switchcoord"
	"github.com/echolock/echolock/timelock"
)

var networkParams = map[string]*chaincfg.Params{
	"mainnet": &chaincfg.MainNetParams,
	"testnet": &chaincfg.TestNet3Params,
	"regtest": &chaincfg.RegressionNetParams,
}

func newShowBitcoinTxCmd() *cobra.Command {
	var (
		id          string
		network     string
		spend       bool
		destination string
		feeRate     int64
		timelockPw  string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "show-bitcoin-tx",
		Short: "Show a switch's timelock commitment, and optionally build its spend transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return common.NewError(common.KindParameterError, "loading configuration", err)
			}
			switchID, err := resolveID(cfg.DataDir, id)
			if err != nil {
				return err
			}
			if cfg.ChainAPIURL == "" {
				return common.NewError(common.KindParameterError, "show-bitcoin-tx requires CHAIN_API_URL", nil)
			}

			coord := newCoordinator(cfg)
			switches, err := coord.List()
			if err != nil {
				return err
			}
			sw := findSwitch(switches, switchID)
			if sw == nil {
				return common.NewError(common.KindParameterError, "no such switch: "+switchID, nil)
			}
			if sw.TimelockAddress == "" {
				return common.NewError(common.KindParameterError, "switch has no timelock commitment", nil)
			}

			params, ok := networkParams[network]
			if !ok {
				return common.NewError(common.KindParameterError, "unknown network: "+network, nil)
			}

			chain := timelock.NewHTTPChain(cfg.ChainAPIURL)
			commitment := &timelock.Commitment{
				Script:            sw.TimelockScript,
				Address:           sw.TimelockAddress,
				LocktimeHeight:    sw.TimelockLocktime,
				WrappedSigningKey: sw.SigningKey,
				Params:            params,
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "address:  %s\n", commitment.Address)
			fmt.Fprintf(out, "script:   %s\n", hex.EncodeToString(commitment.Script))
			fmt.Fprintf(out, "locktime: %d\n", commitment.LocktimeHeight)

			status, err := timelock.GetStatus(context.Background(), chain, commitment)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "height:   %d\n", status.CurrentHeight)
			fmt.Fprintf(out, "valid:    %v (%d blocks remaining)\n", status.IsValid, status.BlocksRemaining)

			if !spend {
				return nil
			}
			if destination == "" || timelockPw == "" {
				return common.NewError(common.KindParameterError, "--spend requires --destination and --timelock-password", nil)
			}
			result, err := timelock.Spend(context.Background(), chain, commitment, timelock.SpendParams{
				Destination: destination,
				FeeRateSat:  feeRate,
				Password:    timelockPw,
				DryRun:      dryRun,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "tx:       %s\n", result.TxHex)
			fmt.Fprintf(out, "fee:      %d sat\n", result.FeePaid)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "switch id (defaults to the currently selected switch)")
	cmd.Flags().StringVar(&network, "network", "mainnet", "bitcoin network: mainnet, testnet, or regtest")
	cmd.Flags().BoolVar(&spend, "spend", false, "also build and sign the spending transaction")
	cmd.Flags().StringVar(&destination, "destination", "", "destination address for --spend")
	cmd.Flags().Int64Var(&feeRate, "fee-rate", 1, "fee rate in satoshis per vbyte for --spend")
	cmd.Flags().StringVar(&timelockPw, "timelock-password", "", "password wrapping the timelock signing key")
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "skip the broadcast-time safety checks")

	return cmd
}

func findSwitch(switches []*switchcoord.Switch, id string) *switchcoord.Switch {
	for _, sw := range switches {
		if sw.ID == id {
			return sw
		}
	}
	return nil
}
