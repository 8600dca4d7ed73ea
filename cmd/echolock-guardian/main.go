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

// Command echolock-guardian runs the guardian daemon described in
// spec.md §4.5 as a standalone, long-lived process independent of the
// owner-facing CLI: it enrolls shares, tracks heartbeats, and releases
// a switch's share to its recipients once a switch's deadline plus
// grace period has passed with no check-in.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/echolock/echolock/crypto"
	"github.com/echolock/echolock/envelope"
	"github.com/echolock/echolock/guardian"
	"github.com/echolock/echolock/internal/common"
	"github.com/echolock/echolock/internal/config"
	"github.com/echolock/echolock/relay"
)

const (
	pollInterval  = 30 * time.Second
	checkInterval = time.Duration(guardian.DefaultCheckIntervalMinutes) * time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "echolock-guardian:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if len(cfg.RelayURLs) == 0 {
		return common.NewError(common.KindParameterError, "echolock-guardian requires RELAY_URLS", nil)
	}

	password := os.Getenv("GUARDIAN_IDENTITY_PASSWORD")
	if password == "" {
		return common.NewError(common.KindParameterError, "echolock-guardian requires GUARDIAN_IDENTITY_PASSWORD", nil)
	}
	sk, err := loadOrCreateGuardianIdentity(cfg.DataDir, password)
	if err != nil {
		return err
	}

	store := guardian.NewStore(cfg.DataDir)
	pool := relay.NewPool(cfg.RelayURLs, common.SystemClock{})
	pool.SetMinQuorum(cfg.MinRelaySuccess)
	d := guardian.NewDaemon(sk, store, pool, common.SystemClock{})

	common.Logger.Warnw("guardian started", "pubkey", hex.EncodeToString(d.PubKey()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return d.Run(ctx, rand.Reader, pollInterval, checkInterval)
}

const guardianIdentityFileName = "guardian-identity.json"

func loadOrCreateGuardianIdentity(dataDir, password string) (*btcec.PrivateKey, error) {
	path := filepath.Join(dataDir, guardianIdentityFileName)

	if raw, err := os.ReadFile(path); err == nil {
		var wrapped envelope.WrappedSigningKey
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, common.NewError(common.KindIo, "parsing guardian identity file", err)
		}
		skBytes, err := envelope.UnwrapSigningKey(&wrapped, password)
		if err != nil {
			return nil, err
		}
		defer common.Zeroize(skBytes)
		sk, _ := btcec.PrivKeyFromBytes(skBytes)
		return sk, nil
	} else if !os.IsNotExist(err) {
		return nil, common.NewError(common.KindIo, "reading guardian identity file", err)
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, common.NewError(common.KindIo, "creating data directory", err)
	}
	sk, err := crypto.GenerateSecretKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	wrapped, err := envelope.WrapSigningKey(rand.Reader, sk, password)
	if err != nil {
		return nil, err
	}
	raw, err := json.MarshalIndent(wrapped, "", "  ")
	if err != nil {
		return nil, common.NewError(common.KindIo, "marshaling guardian identity file", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return nil, common.NewError(common.KindIo, "writing guardian identity file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, common.NewError(common.KindIo, "renaming guardian identity file into place", err)
	}
	return sk, nil
}
