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

// Package envelope builds the ciphertext bundle, threshold share set,
// and (optionally) the wrapped timelock signing key described in
// spec.md §3-§4.2. It is the only component that ever holds the
// plaintext symmetric key; everything downstream sees only the
// envelope and the per-guardian encrypted shares.
package envelope

const (
	// Version is the current envelope/wire format version. Readers
	// reject any other value (spec.md §6).
	Version byte = 2

	// AlgorithmChaCha20Poly1305 is the sole supported AEAD algorithm id.
	AlgorithmChaCha20Poly1305 = "chacha20poly1305"

	// DefaultK and DefaultN are the threshold defaults from spec.md §4.2.
	DefaultK = 3
	DefaultN = 5
)

// Envelope is the immutable ciphertext bundle from spec.md §3.
type Envelope struct {
	Version    byte
	Algorithm  string
	IV         []byte // 96 bit
	Tag        []byte // 128 bit
	Ciphertext []byte
}

// GuardianShare is one EncryptedShare from spec.md §3, addressed to a
// single guardian public key.
type GuardianShare struct {
	GuardianPubKey []byte
	Index          byte
	EphemeralPub   []byte
	Nonce          []byte
	Ciphertext     []byte
	Mac            []byte
}

// WrappedSigningKey is the password-protected timelock signing key
// from spec.md §3. The plaintext private key never touches this
// struct once Build returns.
type WrappedSigningKey struct {
	PublicKey  []byte // 32-byte x-only secp256k1 public key
	Salt       []byte
	Iterations int
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte
}

// Params configures Build, per spec.md §4.2.
type Params struct {
	K, N           int
	Recipients     [][]byte // x-only pubkeys, ordered
	Guardians      [][]byte // x-only pubkeys, len must equal N
	Password       string   // optional; empty means no timelock key is wrapped
	CheckInSeconds int64
	AAD            []byte
}

// Result is the builder transcript: the envelope, one encrypted share
// per guardian, the switch-id seed, and (if a password was supplied)
// the wrapped timelock signing key.
type Result struct {
	Envelope     Envelope
	Shares       []GuardianShare
	SwitchIDSeed [32]byte
	SigningKey   *WrappedSigningKey
}
