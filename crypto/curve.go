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

package crypto

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/echolock/echolock/internal/common"
)

// GenerateSecretKey draws a fresh secp256k1 scalar from rng, rejecting
// out-of-range draws so the result is uniform over [1, N-1].
func GenerateSecretKey(rng io.Reader) (*btcec.PrivateKey, error) {
	buf := make([]byte, 32)
	defer common.Zeroize(buf)
	for attempt := 0; attempt < 16; attempt++ {
		if _, err := io.ReadFull(rng, buf); err != nil {
			return nil, common.NewError(common.KindRngFailure, "generating secret key", err)
		}
		var sc btcec.ModNScalar
		overflow := sc.SetByteSlice(buf)
		if overflow || sc.IsZero() {
			continue
		}
		priv, _ := btcec.PrivKeyFromBytes(buf)
		return priv, nil
	}
	return nil, common.NewError(common.KindRngFailure, "exhausted retries drawing a valid secret key", nil)
}

// DerivePublic returns the 32-byte x-only public key for sk, the
// even-y lift of sk's curve point per BIP-340.
func DerivePublic(sk *btcec.PrivateKey) []byte {
	xonly := schnorr.SerializePubKey(sk.PubKey())
	out := make([]byte, len(xonly))
	copy(out, xonly)
	return out
}

// ParseXOnlyPubKey decodes a 32-byte x-only public key, implicitly
// denoting the even-y lift. The odd-y lift is never produced; an
// input that cannot lift at all is CurveError.
func ParseXOnlyPubKey(pub []byte) (*btcec.PublicKey, error) {
	pk, err := schnorr.ParsePubKey(pub)
	if err != nil {
		return nil, common.NewError(common.KindCurveError, "public key does not lift to a curve point", err)
	}
	return pk, nil
}

// EcdhSharedX returns the 32-byte x-coordinate of sk*pk, the shared
// secret used to derive per-recipient wrapping keys (spec.md §4.2).
func EcdhSharedX(sk *btcec.PrivateKey, pub []byte) ([]byte, error) {
	pk, err := ParseXOnlyPubKey(pub)
	if err != nil {
		return nil, err
	}
	var point btcec.JacobianPoint
	pk.AsJacobian(&point)

	var result btcec.JacobianPoint
	btcec.ScalarMultNonConst(&sk.Key, &point, &result)
	result.ToAffine()

	x := result.X.Bytes()
	out := make([]byte, len(x))
	copy(out, x[:])
	return out, nil
}

// SchnorrSign signs a 32-byte message digest with sk, per BIP-340. The
// library draws its own auxiliary randomness from crypto/rand
// internally; this layer's job is classifying failures, not sourcing
// entropy for an algorithm that already requires a specific source.
func SchnorrSign(sk *btcec.PrivateKey, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, common.NewError(common.KindParameterError, "schnorr digest must be 32 bytes", nil)
	}
	sig, err := schnorr.Sign(sk, digest)
	if err != nil {
		return nil, common.NewError(common.KindRngFailure, "signing failed", err)
	}
	return sig.Serialize(), nil
}

// SchnorrVerify verifies a 64-byte BIP-340 signature over digest under
// the x-only public key pub.
func SchnorrVerify(pub, digest, sig []byte) bool {
	pk, err := ParseXOnlyPubKey(pub)
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(digest, pk)
}
