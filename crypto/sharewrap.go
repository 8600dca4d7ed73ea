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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/echolock/echolock/internal/common"
)

// shareWrapInfo is the HKDF info string from spec.md §4.2.
const shareWrapInfo = "nip44-v2"

// wrapKeyMaterialLen is enc-key(32) + stream-nonce(12) + mac-key(32).
const wrapKeyMaterialLen = 32 + 12 + 32

// Marshal encodes a Share to its canonical wire form:
// index(1) | k(1) | n(1) | len(y) uint16-BE | y | tag(16).
func (s *Share) Marshal() []byte {
	out := make([]byte, 0, 3+2+len(s.Y)+tagSize)
	out = append(out, s.Index, s.K, s.N)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s.Y)))
	out = append(out, lenBuf[:]...)
	out = append(out, s.Y...)
	out = append(out, s.Tag[:]...)
	return out
}

// UnmarshalShare decodes the form produced by Share.Marshal.
func UnmarshalShare(b []byte) (Share, error) {
	if len(b) < 5+tagSize {
		return Share{}, common.NewError(common.KindParameterError, "share encoding too short", nil)
	}
	index, k, n := b[0], b[1], b[2]
	ylen := int(binary.BigEndian.Uint16(b[3:5]))
	if len(b) != 5+ylen+tagSize {
		return Share{}, common.NewError(common.KindParameterError, "share encoding length mismatch", nil)
	}
	s := Share{Index: index, K: k, N: n, Y: append([]byte(nil), b[5:5+ylen]...)}
	copy(s.Tag[:], b[5+ylen:])
	return s, nil
}

// deriveWrapKeys expands the ECDH shared x-coordinate into the enc
// key, stream nonce, and mac key used to wrap one share for one
// recipient, per spec.md §4.2's HKDF-Extract-then-Expand recipe: salt
// is 32 zero bytes, info is the fixed string, and the 32-byte
// per-message nonce is folded into the expand step's info so every
// wrap of the same (ephemeral, recipient) pair still derives a fresh
// key.
func deriveWrapKeys(sharedX, msgNonce []byte) (encKey, streamNonce, macKey []byte, err error) {
	salt := make([]byte, 32)
	info := append([]byte(shareWrapInfo), msgNonce...)
	r := hkdf.New(sha256.New, sharedX, salt, info)
	material := make([]byte, wrapKeyMaterialLen)
	if _, err := io.ReadFull(r, material); err != nil {
		return nil, nil, nil, common.NewError(common.KindIo, "expanding share-wrap key material", err)
	}
	return material[0:32], material[32:44], material[44:76], nil
}

// WrapShare encrypts share for recipientPub using a fresh ephemeral
// keypair and ECDH, returning the ephemeral public key, the 32-byte
// message nonce, the stream ciphertext, and a MAC over (nonce ‖
// ciphertext). The ephemeral private key is zeroised before return.
func WrapShare(rng io.Reader, share Share, recipientPub []byte) (ephemeralPub, nonce, ciphertext, mac []byte, err error) {
	ephemeral, err := GenerateSecretKey(rng)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	defer ephemeral.Zero()

	sharedX, err := EcdhSharedX(ephemeral, recipientPub)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	defer common.Zeroize(sharedX)

	msgNonce := make([]byte, 32)
	if _, err := io.ReadFull(rng, msgNonce); err != nil {
		return nil, nil, nil, nil, common.NewError(common.KindRngFailure, "generating share-wrap nonce", err)
	}

	encKey, streamNonce, macKey, err := deriveWrapKeys(sharedX, msgNonce)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	defer func() {
		common.Zeroize(encKey)
		common.Zeroize(macKey)
	}()

	plaintext := share.Marshal()
	ct, err := streamXOR(encKey, streamNonce, plaintext)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	h := hmac.New(sha256.New, macKey)
	h.Write(msgNonce)
	h.Write(ct)
	tag := h.Sum(nil)

	return DerivePublic(ephemeral), msgNonce, ct, tag, nil
}

// UnwrapShare reverses WrapShare given the recipient's own private
// key. It verifies the MAC before ever decrypting, so a wrong
// recipient key (or tampered ciphertext) fails with AeadAuthFailure
// and never produces a decryption oracle.
func UnwrapShare(sk *btcec.PrivateKey, ephemeralPub, nonce, ciphertext, mac []byte) (Share, error) {
	sharedX, err := EcdhSharedX(sk, ephemeralPub)
	if err != nil {
		return Share{}, err
	}
	defer common.Zeroize(sharedX)

	encKey, streamNonce, macKey, err := deriveWrapKeys(sharedX, nonce)
	if err != nil {
		return Share{}, err
	}
	defer func() {
		common.Zeroize(encKey)
		common.Zeroize(macKey)
	}()

	h := hmac.New(sha256.New, macKey)
	h.Write(nonce)
	h.Write(ciphertext)
	expected := h.Sum(nil)
	if !common.ConstantTimeEqual(expected, mac) {
		return Share{}, common.NewError(common.KindAeadAuthFailure, "share MAC verification failed", nil)
	}

	plaintext, err := streamXOR(encKey, streamNonce, ciphertext)
	if err != nil {
		return Share{}, err
	}
	return UnmarshalShare(plaintext)
}

// streamXOR runs ChaCha20 (not the AEAD construction — this layer
// supplies its own explicit MAC per spec.md §3) over data. The cipher
// is an involution given the same key/nonce, so this same helper
// serves both directions.
func streamXOR(key, nonce, data []byte) ([]byte, error) {
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, common.NewError(common.KindParameterError, "constructing stream cipher", err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}
