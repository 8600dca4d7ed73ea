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

// Package guardian implements the long-running daemon process from

// spec.md §4.5: it owns one curve keypair, enrolls encrypted shares
// addressed to it, tracks owner heartbeats, and performs the release
// test that re-encrypts a share to its recipients once an owner has
// gone dark for longer than the declared threshold plus grace.
package guardian

import "strconv"

// Record is one guardian's view of a single switch's share, held
// exclusively by this daemon and persisted across restarts.
// spec.md §3.
type Record struct {
	SwitchID         string   `json:"switch_id"`
	ShareIndex       byte     `json:"share_index"`
	OwnerPubKey      []byte   `json:"owner_pub_key"`
	ThresholdSeconds int64    `json:"threshold_seconds"`
	EphemeralPub     []byte   `json:"ephemeral_pub"`
	Nonce            []byte   `json:"nonce"`
	Ciphertext       []byte   `json:"ciphertext"`
	Mac              []byte   `json:"mac"`
	Recipients       [][]byte `json:"recipients"`
	LastHeartbeatSeen int64   `json:"last_heartbeat_seen"`
	EnrolledAt       int64    `json:"enrolled_at"`
	Released         bool     `json:"released"`
	ReleasedAt       int64    `json:"released_at,omitempty"`
}

// key is the record's composite identity, used both as the in-memory
// map key and, stringified, as the on-disk JSON object key.
func (r Record) key() string {
	return r.SwitchID + ":" + strconv.Itoa(int(r.ShareIndex))
}

// GraceSeconds is the minimum grace period added to a switch's
// declared threshold before a release test fires (spec.md §4.5:
// "grace ≥ 1h").
const GraceSeconds = 3600

// DefaultCheckIntervalMinutes is how often the daemon's release-check
// timer fires when the embedding process does not override it.
const DefaultCheckIntervalMinutes = 5
