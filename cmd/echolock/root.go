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

// Command echolock is the owner-facing CLI for creating and managing
// dead-man's-switches: create, check-in, status, list, select,
// test-release, show-bitcoin-tx, delete.
package main

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/echolock/echolock/internal/common"
	"github.com/echolock/echolock/internal/config"
	"github.com/echolock/echolock/relay"
	"github.com/echolock/echolock/switchcoord"
)

var identityPassword string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "echolock",
		Short:         "Manage censorship-resistant dead-man's-switches",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&identityPassword, "identity-password", "", "password protecting the local owner signing key")

	root.AddCommand(
		newCreateCmd(),
		newCheckInCmd(),
		newStatusCmd(),
		newListCmd(),
		newSelectCmd(),
		newTestReleaseCmd(),
		newShowBitcoinTxCmd(),
		newDeleteCmd(),
	)
	return root
}

// newCoordinator wires a Coordinator from the process environment:
// the persisted switch store, a relay pool sized to MIN_RELAY_SUCCESS,
// the system clock, and crypto/rand.
func newCoordinator(cfg *config.Config) *switchcoord.Coordinator {
	store := switchcoord.NewStore(cfg.DataDir)
	var pool *relay.Pool
	if len(cfg.RelayURLs) > 0 {
		pool = relay.NewPool(cfg.RelayURLs, common.SystemClock{})
		pool.SetMinQuorum(cfg.MinRelaySuccess)
	}
	return switchcoord.NewCoordinator(store, pool, common.SystemClock{}, rand.Reader)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}
