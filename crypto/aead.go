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

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/echolock/echolock/internal/common"
)

const (
	// KeySize is the symmetric key length in bytes (256 bit).
	KeySize = chacha20poly1305.KeySize
	// NonceSize is the AEAD nonce length in bytes (96 bit).
	NonceSize = chacha20poly1305.NonceSize
	// TagSize is the AEAD authentication tag length in bytes (128 bit).
	TagSize = chacha20poly1305.Overhead

	// MaxPlaintextSize is the AEAD cap from spec.md §4.2: 2 GiB.
	MaxPlaintextSize = 2 << 30
)

// GenerateKey draws a fresh random 256-bit symmetric key.
func GenerateKey(rng io.Reader) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rng, key); err != nil {
		return nil, common.NewError(common.KindRngFailure, "generating symmetric key", err)
	}
	return key, nil
}

// GenerateNonce draws a fresh random 96-bit AEAD nonce.
func GenerateNonce(rng io.Reader) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rng, nonce); err != nil {
		return nil, common.NewError(common.KindRngFailure, "generating nonce", err)
	}
	return nonce, nil
}

// Encrypt authenticates and encrypts plaintext under key and nonce,
// binding aad. The returned ciphertext carries the tag appended, per
// the chacha20poly1305 convention.
func Encrypt(key, nonce, plaintext, aad []byte) ([]byte, error) {
	if len(plaintext) > MaxPlaintextSize {
		return nil, common.NewError(common.KindSizeLimit, "plaintext exceeds the AEAD cap", nil)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, common.NewError(common.KindParameterError, "constructing AEAD cipher", err)
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Decrypt verifies and decrypts ciphertext under key and nonce,
// requiring aad to be byte-identical to the value used at encryption.
// On any tag mismatch it returns AeadAuthFailure and no plaintext
// bytes, never a partial result.
func Decrypt(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, common.NewError(common.KindParameterError, "constructing AEAD cipher", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, common.NewError(common.KindAeadAuthFailure, "AEAD tag verification failed", nil)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}
