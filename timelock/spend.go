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
	"bytes"
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"

	"github.com/echolock/echolock/envelope"
	"github.com/echolock/echolock/internal/common"
)

// dustLimit is the smallest output value spend() will ever create,
// matching Bitcoin Core's default relay policy for a P2SH output.
const dustLimit = 540

// SpendParams configures Spend.
type SpendParams struct {
	Destination string
	FeeRateSat  int64 // satoshis per vbyte
	Password    string
	DryRun      bool
}

// SpendResult is the outcome of Spend: the fully signed transaction,
// hex-encoded, ready for the caller to broadcast through whatever
// chain-submission path they use. Chain's two-call contract (spec.md
// §6) has no broadcast method, so Spend never transmits anything
// itself.
type SpendResult struct {
	TxHex       string
	TotalInput  int64
	FeePaid     int64
	OutputValue int64
}

// Spend builds, signs, and returns a transaction moving every UTXO at
// c's address to destination, nLockTime pinned to c.LocktimeHeight.
// It fails with TimelockNotValid if the chain tip hasn't reached
// LocktimeHeight+MinimumMaturity, NoUtxos if the address is empty, and
// InsufficientValue if the inputs can't cover the fee. When
// dryRun is false, Spend additionally rejects a fee rate of zero and
// an output below dustLimit — checks skipped for dryRun inspection of
// an otherwise-unfunded commitment.
func Spend(ctx context.Context, chain Chain, c *Commitment, params SpendParams) (*SpendResult, error) {
	height, err := chain.GetTipHeight(ctx)
	if err != nil {
		return nil, err
	}
	if height < uint64(c.LocktimeHeight)+MinimumMaturity {
		return nil, common.NewError(common.KindTimelockNotValid, "chain tip has not reached locktime plus minimum maturity", nil)
	}

	utxos, err := chain.GetAddressUTXOs(ctx, c.Address)
	if err != nil {
		return nil, err
	}
	if len(utxos) == 0 {
		return nil, common.NewError(common.KindNoUtxos, "commitment address has no unspent outputs", nil)
	}

	skBytes, err := envelope.UnwrapSigningKey(c.WrappedSigningKey, params.Password)
	if err != nil {
		return nil, err
	}
	defer common.Zeroize(skBytes)
	sk, _ := btcec.PrivKeyFromBytes(skBytes)

	destAddr, err := btcutil.DecodeAddress(params.Destination, c.Params)
	if err != nil {
		return nil, common.NewError(common.KindParameterError, "invalid destination address", err)
	}
	destScript, err := txscript.PayToAddrScript(destAddr)
	if err != nil {
		return nil, common.NewError(common.KindParameterError, "building destination script", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.LockTime = c.LocktimeHeight

	var totalInput int64
	for _, u := range utxos {
		txidHash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, common.NewError(common.KindParameterError, "invalid utxo txid", err)
		}
		in := wire.NewTxIn(wire.NewOutPoint(txidHash, u.Vout), nil, nil)
		// A sequence of max-1 keeps nLockTime active without opting
		// into RBF (BIP-65/BIP-68 interaction).
		in.Sequence = wire.MaxTxInSequenceNum - 1
		tx.AddTxIn(in)
		totalInput += u.Amount
	}

	estimatedVBytes := int64(10 + len(tx.TxIn)*180 + 40)
	fee := params.FeeRateSat * estimatedVBytes
	outputValue := totalInput - fee
	if outputValue <= 0 {
		return nil, common.NewError(common.KindInsufficientValue, "inputs do not cover the estimated fee", nil)
	}
	if !params.DryRun {
		if params.FeeRateSat <= 0 {
			return nil, common.NewError(common.KindParameterError, "fee rate must be positive to broadcast", nil)
		}
		if outputValue < dustLimit {
			return nil, common.NewError(common.KindInsufficientValue, "output value is below the dust limit", nil)
		}
	}
	tx.AddTxOut(wire.NewTxOut(outputValue, destScript))

	for i := range tx.TxIn {
		sig, err := txscript.RawTxInSignature(tx, i, c.Script, txscript.SigHashAll, sk)
		if err != nil {
			return nil, common.NewError(common.KindScriptConstructionError, "signing timelock input", err)
		}
		sigScript, err := txscript.NewScriptBuilder().
			AddData(sig).
			AddData(c.Script).
			Script()
		if err != nil {
			return nil, common.NewError(common.KindScriptConstructionError, "building scriptSig", err)
		}
		tx.TxIn[i].SignatureScript = sigScript
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, common.NewError(common.KindScriptConstructionError, "serializing signed transaction", err)
	}

	return &SpendResult{
		TxHex:       hex.EncodeToString(buf.Bytes()),
		TotalInput:  totalInput,
		FeePaid:     fee,
		OutputValue: outputValue,
	}, nil
}
