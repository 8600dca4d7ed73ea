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
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/echolock/echolock/crypto"
	"github.com/echolock/echolock/envelope"
	"github.com/echolock/echolock/internal/common"
)

const identityFileName = "identity.json"

// loadOrCreateIdentity returns the CLI's owner signing key, generating
// and password-wrapping a fresh one on first use. The wrap reuses
// envelope's AEAD+KDF format rather than inventing a parallel one for
// a second kind of private key.
func loadOrCreateIdentity(dataDir, password string) (*btcec.PrivateKey, error) {
	path := filepath.Join(dataDir, identityFileName)

	if raw, err := os.ReadFile(path); err == nil {
		var wrapped envelope.WrappedSigningKey
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, common.NewError(common.KindIo, "parsing identity file", err)
		}
		skBytes, err := envelope.UnwrapSigningKey(&wrapped, password)
		if err != nil {
			return nil, err
		}
		defer common.Zeroize(skBytes)
		sk, _ := btcec.PrivKeyFromBytes(skBytes)
		return sk, nil
	} else if !os.IsNotExist(err) {
		return nil, common.NewError(common.KindIo, "reading identity file", err)
	}

	return createIdentity(dataDir, password)
}

func createIdentity(dataDir, password string) (*btcec.PrivateKey, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, common.NewError(common.KindIo, "creating data directory", err)
	}

	wrapped, sk, err := newWrappedIdentity(password)
	if err != nil {
		return nil, err
	}

	raw, err := json.MarshalIndent(wrapped, "", "  ")
	if err != nil {
		return nil, common.NewError(common.KindIo, "marshaling identity file", err)
	}
	path := filepath.Join(dataDir, identityFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return nil, common.NewError(common.KindIo, "writing identity file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, common.NewError(common.KindIo, "renaming identity file into place", err)
	}
	return sk, nil
}

func newWrappedIdentity(password string) (*envelope.WrappedSigningKey, *btcec.PrivateKey, error) {
	sk, err := crypto.GenerateSecretKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	wrapped, err := envelope.WrapSigningKey(rand.Reader, sk, password)
	if err != nil {
		return nil, nil, err
	}
	return wrapped, sk, nil
}
