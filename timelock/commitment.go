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

package timelock

import (
	"context"
	"io"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/echolock/echolock/crypto"
	"github.com/echolock/echolock/envelope"
	"github.com/echolock/echolock/internal/common"
)

// Commitment is the persisted on-chain commitment record from
// spec.md §3: script, address, locktime height, and the
// password-wrapped signing key. The cleartext signing key never
// appears here.
type Commitment struct {
	Script            []byte                      `json:"script"`
	Address           string                      `json:"address"`
	PubKeyCompressed  []byte                      `json:"pub_key_compressed"`
	LocktimeHeight    uint32                      `json:"locktime_height"`
	WrappedSigningKey *envelope.WrappedSigningKey `json:"wrapped_signing_key"`
	Params            *chaincfg.Params            `json:"-"`
}

// BuildParams configures Build.
type BuildParams struct {
	CheckInSeconds int64
	Password       string
	Params         *chaincfg.Params
}

// Build fetches the current chain height, generates a fresh signing
// key, constructs the locktime script and its script-hash address,
// and wraps the signing key under password. Fails with
// ChainUnreachable if height cannot be fetched, WeakPassword if the
// password is empty, and ScriptConstructionError if the derived
// public key cannot build a valid script.
func Build(ctx context.Context, chain Chain, rng io.Reader, params BuildParams) (*Commitment, error) {
	if params.Password == "" {
		return nil, common.NewError(common.KindWeakPassword, "a timelock signing key requires a non-empty password", nil)
	}
	chainParams := params.Params
	if chainParams == nil {
		chainParams = &chaincfg.MainNetParams
	}

	height, err := chain.GetTipHeight(ctx)
	if err != nil {
		return nil, err
	}
	locktime := LocktimeFor(height, params.CheckInSeconds)

	sk, err := crypto.GenerateSecretKey(rng)
	if err != nil {
		return nil, err
	}
	defer sk.Zero()

	script, err := BuildScript(sk.PubKey(), locktime)
	if err != nil {
		return nil, err
	}
	address, err := DeriveAddress(script, chainParams)
	if err != nil {
		return nil, err
	}

	wrapped, err := envelope.WrapSigningKey(rng, sk, params.Password)
	if err != nil {
		return nil, err
	}

	return &Commitment{
		Script:            script,
		Address:           address.EncodeAddress(),
		PubKeyCompressed:  sk.PubKey().SerializeCompressed(),
		LocktimeHeight:    locktime,
		WrappedSigningKey: wrapped,
		Params:            chainParams,
	}, nil
}

// Status is the read model from spec.md §4.6.
type Status struct {
	Locktime        uint32
	CurrentHeight   uint64
	BlocksRemaining int64
	IsValid         bool
}

// GetStatus reads the current height and reports the commitment's
// maturity relative to its locktime.
func GetStatus(ctx context.Context, chain Chain, c *Commitment) (*Status, error) {
	height, err := chain.GetTipHeight(ctx)
	if err != nil {
		return nil, err
	}
	remaining := int64(c.LocktimeHeight) - int64(height)
	return &Status{
		Locktime:        c.LocktimeHeight,
		CurrentHeight:   height,
		BlocksRemaining: remaining,
		IsValid:         height >= uint64(c.LocktimeHeight),
	}, nil
}
