// Copyright (c) 2023, Circle Internet Financial, LTD. All rights reserved.
//
//  SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/echolock/echolock/envelope"
	"github.com/echolock/echolock/internal/common"
	"github.com/echolock/echolock/internal/config"
	"github.com/echolock/echolock/timelock"
)

func newCreateCmd() *cobra.Command {
	var (
		title          string
		plaintextFile  string
		k, n           int
		guardianHex    []string
		recipientHex   []string
		checkInSeconds int64
		withTimelock   bool
		timelockPass   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new switch from a plaintext payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return common.NewError(common.KindParameterError, "loading configuration", err)
			}

			plaintext, err := os.ReadFile(plaintextFile)
			if err != nil {
				return common.NewError(common.KindIo, "reading plaintext file", err)
			}

			guardians, err := decodeHexList(guardianHex)
			if err != nil {
				return err
			}
			recipients, err := decodeHexList(recipientHex)
			if err != nil {
				return err
			}

			ownerSK, err := loadOrCreateIdentity(cfg.DataDir, identityPassword)
			if err != nil {
				return err
			}

			coord := newCoordinator(cfg)
			params := envelope.Params{
				K:              k,
				N:              n,
				Recipients:     recipients,
				Guardians:      guardians,
				CheckInSeconds: checkInSeconds,
			}
			sw, err := coord.Create(context.Background(), ownerSK, title, plaintext, params)
			if err != nil {
				return err
			}

			if withTimelock {
				if timelockPass == "" {
					return common.NewError(common.KindParameterError, "--timelock requires --timelock-password", nil)
				}
				if cfg.ChainAPIURL == "" {
					return common.NewError(common.KindParameterError, "--timelock requires CHAIN_API_URL", nil)
				}
				chain := timelock.NewHTTPChain(cfg.ChainAPIURL)
				c, err := timelock.Build(context.Background(), chain, rand.Reader, timelock.BuildParams{
					CheckInSeconds: checkInSeconds,
					Password:       timelockPass,
				})
				if err != nil {
					return err
				}
				if err := coord.AttachTimelock(sw.ID, c.Address, c.LocktimeHeight, c.Script, c.WrappedSigningKey); err != nil {
					return err
				}
				sw.TimelockAddress = c.Address
				sw.TimelockLocktime = c.LocktimeHeight
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created switch %s\n", sw.ID)
			if sw.TimelockAddress != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "timelock address: %s (matures at height %d)\n", sw.TimelockAddress, sw.TimelockLocktime)
			}
			return writeSelectedID(cfg.DataDir, sw.ID)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "human-readable title for the switch")
	cmd.Flags().StringVar(&plaintextFile, "plaintext-file", "", "path to the file whose contents is protected")
	cmd.Flags().IntVar(&k, "k", envelope.DefaultK, "reconstruction threshold")
	cmd.Flags().IntVar(&n, "n", envelope.DefaultN, "number of guardians")
	cmd.Flags().StringArrayVar(&guardianHex, "guardian", nil, "guardian x-only public key (hex); repeat once per guardian")
	cmd.Flags().StringArrayVar(&recipientHex, "recipient", nil, "release recipient x-only public key (hex); repeat once per recipient")
	cmd.Flags().Int64Var(&checkInSeconds, "check-in-seconds", 86400, "seconds a heartbeat remains valid for")
	cmd.Flags().BoolVar(&withTimelock, "timelock", false, "also build an on-chain timelock commitment")
	cmd.Flags().StringVar(&timelockPass, "timelock-password", "", "password wrapping the timelock signing key")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("plaintext-file")

	return cmd
}

func decodeHexList(in []string) ([][]byte, error) {
	out := make([][]byte, len(in))
	for i, s := range in {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, common.NewError(common.KindParameterError, "invalid hex public key: "+s, err)
		}
		out[i] = b
	}
	return out, nil
}
