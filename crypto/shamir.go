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
	"crypto/sha256"
	"io"

	"github.com/echolock/echolock/internal/common"
)

// tagSize is the length, in bytes, of a Share's integrity tag.
const tagSize = 16

// Share is one piece of a threshold split, per spec.md §3: any K of N
// shares with identical (K, N) reconstruct the secret, any K-1 reveal
// nothing about it.
type Share struct {
	Index byte // 1..N, doubles as the GF(2^8) x-coordinate
	K     byte
	N     byte
	Y     []byte // y-value, one field element per secret byte
	Tag   [tagSize]byte
}

func (s *Share) computeTag() [tagSize]byte {
	h := sha256.New()
	h.Write([]byte{s.Index, s.K, s.N})
	h.Write(s.Y)
	var tag [tagSize]byte
	copy(tag[:], h.Sum(nil))
	return tag
}

// Split divides secret into n shares such that any k reconstruct it
// and any k-1 reveal nothing. 2 <= k <= n <= 255.
func Split(rng io.Reader, secret []byte, k, n int) ([]Share, error) {
	if k < 2 || k > n || n < 2 || n > 255 {
		return nil, common.NewError(common.KindParameterError, "invalid threshold parameters", nil)
	}
	if len(secret) == 0 {
		return nil, common.NewError(common.KindParameterError, "secret must not be empty", nil)
	}

	// One random polynomial per secret byte: coeffs[0] is the secret
	// byte, coeffs[1:k] are random.
	coeffsPerByte := make([][]gfElem, len(secret))
	randBuf := make([]byte, (k-1)*len(secret))
	if _, err := io.ReadFull(rng, randBuf); err != nil {
		return nil, common.NewError(common.KindRngFailure, "reading randomness for split", err)
	}
	defer common.Zeroize(randBuf)

	for bi, sb := range secret {
		coeffs := make([]gfElem, k)
		coeffs[0] = sb
		copy(coeffs[1:], randBuf[bi*(k-1):(bi+1)*(k-1)])
		coeffsPerByte[bi] = coeffs
	}

	shares := make([]Share, n)
	for i := 0; i < n; i++ {
		x := gfElem(i + 1)
		y := make([]byte, len(secret))
		for bi, coeffs := range coeffsPerByte {
			y[bi] = gfEvalPoly(coeffs, x)
		}
		s := Share{Index: x, K: byte(k), N: byte(n), Y: y}
		s.Tag = s.computeTag()
		shares[i] = s
	}
	for _, coeffs := range coeffsPerByte {
		common.Zeroize(coeffs)
	}
	return shares, nil
}

// Combine reconstructs the secret from shares. It requires at least k
// distinct shares of identical (k,n) parameters, fails with
// InsufficientShares on fewer, InconsistentShares on mismatched
// parameters, and IntegrityFailure if any supplied share's tag does
// not match its own content.
func Combine(shares []Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, common.NewError(common.KindInsufficientShares, "no shares supplied", nil)
	}

	k, n := shares[0].K, shares[0].N
	seen := make(map[byte]bool, len(shares))
	var distinct []Share
	for _, s := range shares {
		if s.K != k || s.N != n {
			return nil, common.NewError(common.KindInconsistentShares, "shares carry mismatched (k,n) parameters", nil)
		}
		if len(s.Y) != len(shares[0].Y) {
			return nil, common.NewError(common.KindInconsistentShares, "shares carry mismatched secret length", nil)
		}
		tag := s.computeTag()
		if !common.ConstantTimeEqual(tag[:], s.Tag[:]) {
			return nil, common.NewError(common.KindIntegrityFailure, "share integrity tag mismatch", nil)
		}
		if seen[s.Index] {
			continue
		}
		seen[s.Index] = true
		distinct = append(distinct, s)
	}

	if len(distinct) < int(k) {
		return nil, common.NewError(common.KindInsufficientShares, "fewer than k distinct shares supplied", nil)
	}
	distinct = distinct[:k]

	secretLen := len(distinct[0].Y)
	secret := make([]byte, secretLen)
	for bi := 0; bi < secretLen; bi++ {
		secret[bi] = lagrangeInterpolateAtZero(distinct, bi)
	}
	return secret, nil
}

// lagrangeInterpolateAtZero evaluates the unique degree-(k-1)
// polynomial through the given shares' (x, y[byteIdx]) points at
// x=0, which recovers the constant term (the secret byte) per
// standard Shamir reconstruction.
func lagrangeInterpolateAtZero(shares []Share, byteIdx int) gfElem {
	result := gfElem(0)
	for i, si := range shares {
		xi := si.Index
		num := gfElem(1)
		den := gfElem(1)
		for j, sj := range shares {
			if i == j {
				continue
			}
			xj := sj.Index
			num = gfMul(num, xj)
			den = gfMul(den, gfAdd(xi, xj))
		}
		term := gfMul(si.Y[byteIdx], gfDiv(num, den))
		result = gfAdd(result, term)
	}
	return result
}
