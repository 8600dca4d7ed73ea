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

package envelope

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/echolock/echolock/crypto"
	"github.com/echolock/echolock/internal/common"
)

// Build turns plaintext, an owner public key, and params into an
// AEAD-protected envelope and a MAC-protected encrypted share set, per
// spec.md §4.2. Build itself produces no signature. Build is not
// deterministic: it draws a fresh symmetric key,
// iv, and per-share wrap nonces every call. Every secret buffer
// (symmetric key, clear shares, ephemeral private keys) is wiped
// before Build returns on any exit path.
func Build(rng io.Reader, ownerPubKey []byte, creationTime time.Time, plaintext []byte, params Params) (*Result, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if len(plaintext) == 0 {
		return nil, common.NewError(common.KindSizeLimit, "plaintext must not be empty", nil)
	}
	if len(plaintext) > crypto.MaxPlaintextSize {
		return nil, common.NewError(common.KindSizeLimit, "plaintext exceeds the AEAD cap", nil)
	}

	key, err := crypto.GenerateKey(rng)
	if err != nil {
		return nil, err
	}
	defer common.Zeroize(key)

	iv, err := crypto.GenerateNonce(rng)
	if err != nil {
		return nil, err
	}

	sealed, err := crypto.Encrypt(key, iv, plaintext, params.AAD)
	if err != nil {
		return nil, err
	}
	ciphertext := sealed[:len(sealed)-crypto.TagSize]
	tag := sealed[len(sealed)-crypto.TagSize:]

	shares, err := crypto.Split(rng, key, params.K, params.N)
	if err != nil {
		return nil, err
	}
	defer zeroizeShares(shares)

	guardianShares := make([]GuardianShare, len(params.Guardians))
	for i, guardianPub := range params.Guardians {
		if _, err := crypto.ParseXOnlyPubKey(guardianPub); err != nil {
			return nil, err
		}
		ephemeralPub, nonce, ct, mac, err := crypto.WrapShare(rng, shares[i], guardianPub)
		if err != nil {
			return nil, err
		}
		guardianShares[i] = GuardianShare{
			GuardianPubKey: append([]byte(nil), guardianPub...),
			Index:          shares[i].Index,
			EphemeralPub:   ephemeralPub,
			Nonce:          nonce,
			Ciphertext:     ct,
			Mac:            mac,
		}
	}

	result := &Result{
		Envelope: Envelope{
			Version:    Version,
			Algorithm:  AlgorithmChaCha20Poly1305,
			IV:         iv,
			Tag:        tag,
			Ciphertext: ciphertext,
		},
		Shares:       guardianShares,
		SwitchIDSeed: switchIDSeed(ownerPubKey, creationTime, iv),
	}

	if params.Password != "" {
		signingKey, err := buildWrappedSigningKey(rng, params.Password)
		if err != nil {
			return nil, err
		}
		result.SigningKey = signingKey
	}

	return result, nil
}

func validateParams(p Params) error {
	if p.K < 2 || p.K > p.N || p.N < 2 || p.N > 255 {
		return common.NewError(common.KindParameterError, "invalid threshold parameters", nil)
	}
	if len(p.Guardians) != p.N {
		return common.NewError(common.KindParameterError, "guardian count must equal n", nil)
	}
	return nil
}

func zeroizeShares(shares []crypto.Share) {
	for i := range shares {
		common.Zeroize(shares[i].Y)
	}
}

// switchIDSeed hashes (owner-pubkey, creation-time, envelope.iv) into
// the 128-bit-opaque switch identifier seed, per spec.md §3/§4.2.
func switchIDSeed(ownerPubKey []byte, creationTime time.Time, iv []byte) [32]byte {
	h := sha256.New()
	h.Write(ownerPubKey)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(creationTime.Unix()))
	h.Write(tsBuf[:])
	h.Write(iv)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func buildWrappedSigningKey(rng io.Reader, password string) (*WrappedSigningKey, error) {
	sk, err := crypto.GenerateSecretKey(rng)
	if err != nil {
		return nil, err
	}
	defer sk.Zero()
	return WrapSigningKey(rng, sk, password)
}

// WrapSigningKey AEAD-wraps sk under a fresh password-derived key, so
// callers outside the envelope builder (the timelock commitment path)
// can reuse the exact same wrap format rather than inventing a
// second one. sk is never mutated or retained; zeroise it yourself
// once you no longer need the cleartext key.
func WrapSigningKey(rng io.Reader, sk *btcec.PrivateKey, password string) (*WrappedSigningKey, error) {
	salt := make([]byte, crypto.MinSaltSize*2)
	if _, err := io.ReadFull(rng, salt); err != nil {
		return nil, common.NewError(common.KindRngFailure, "generating KDF salt", err)
	}

	wrapKey, err := crypto.DeriveKey(password, salt, crypto.MinIterationsCurrent, crypto.MinIterationsCurrent)
	if err != nil {
		return nil, err
	}
	defer common.Zeroize(wrapKey)

	nonce, err := crypto.GenerateNonce(rng)
	if err != nil {
		return nil, err
	}

	skBytes := sk.Serialize()
	defer common.Zeroize(skBytes)

	sealed, err := crypto.Encrypt(wrapKey, nonce, skBytes, nil)
	if err != nil {
		return nil, err
	}

	return &WrappedSigningKey{
		PublicKey:  crypto.DerivePublic(sk),
		Salt:       salt,
		Iterations: crypto.MinIterationsCurrent,
		Nonce:      nonce,
		Tag:        sealed[len(sealed)-crypto.TagSize:],
		Ciphertext: sealed[:len(sealed)-crypto.TagSize],
	}, nil
}

// UnwrapSigningKey recovers the timelock signing private key from a
// WrappedSigningKey and password. A wrong password and a tampered
// ciphertext are indistinguishable: both return AeadAuthFailure.
func UnwrapSigningKey(w *WrappedSigningKey, password string) ([]byte, error) {
	wrapKey, err := crypto.DeriveKey(password, w.Salt, w.Iterations, crypto.MinIterationsLegacy)
	if err != nil {
		return nil, err
	}
	defer common.Zeroize(wrapKey)

	sealed := append(append([]byte(nil), w.Ciphertext...), w.Tag...)
	return crypto.Decrypt(wrapKey, w.Nonce, sealed, nil)
}
