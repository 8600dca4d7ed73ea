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

	"golang.org/x/crypto/pbkdf2"

	"github.com/echolock/echolock/internal/common"
)

const (
	// MinIterationsLegacy is the documented floor for payloads wrapped
	// before the iteration count was raised.
	MinIterationsLegacy = 100_000
	// MinIterationsCurrent is the documented floor for new payloads.
	MinIterationsCurrent = 600_000
	// MinSaltSize is the minimum KDF salt length in bytes (128 bit).
	MinSaltSize = 16
)

// DeriveKey runs PBKDF2-HMAC-SHA256 over password with the given salt
// and iteration count, producing a 256-bit key. It is deterministic:
// identical inputs always produce the identical key. iterations must
// be at least minIterations, and salt at least MinSaltSize bytes, or
// the call fails fast with ParameterError.
func DeriveKey(password string, salt []byte, iterations, minIterations int) ([]byte, error) {
	if len(salt) < MinSaltSize {
		return nil, common.NewError(common.KindParameterError, "KDF salt shorter than 128 bits", nil)
	}
	if iterations < minIterations {
		return nil, common.NewError(common.KindParameterError, "KDF iteration count below the documented floor", nil)
	}
	return pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New), nil
}
