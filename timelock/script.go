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

// Package timelock implements the on-chain commitment from spec.md
// §4.6: a height-locked script whose signing key is generated by this
// package's Build and persisted only in password-wrapped form.
package timelock

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcutil"

	"github.com/echolock/echolock/internal/common"
)

// MinimumMaturity is the number of blocks past locktime a commitment
// must wait before spend() considers it valid, absorbing chain
// re-orgs (spec.md §4.6 failure semantics).
const MinimumMaturity = 10

// BuildScript returns the redeem script
// `<locktime> OP_CHECKLOCKTIMEVERIFY OP_DROP <pubkey> OP_CHECKSIG`.
func BuildScript(pubKey *btcec.PublicKey, locktimeHeight uint32) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(locktimeHeight))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(pubKey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)

	script, err := builder.Script()
	if err != nil {
		return nil, common.NewError(common.KindScriptConstructionError, "building locktime script", err)
	}
	return script, nil
}

// DeriveAddress hashes script into a pay-to-script-hash address on
// params.
func DeriveAddress(script []byte, params *chaincfg.Params) (btcutil.Address, error) {
	addr, err := btcutil.NewAddressScriptHash(script, params)
	if err != nil {
		return nil, common.NewError(common.KindScriptConstructionError, "deriving script-hash address", err)
	}
	return addr, nil
}

// LocktimeFor computes the absolute block height a switch's timelock
// commitment matures at, per spec.md §4.6:
// currentHeight + ceil(checkInSeconds / 600).
func LocktimeFor(currentHeight uint64, checkInSeconds int64) uint32 {
	const secondsPerBlock = 600
	blocks := (checkInSeconds + secondsPerBlock - 1) / secondsPerBlock
	return uint32(currentHeight) + uint32(blocks)
}
