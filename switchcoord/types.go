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

// Package switchcoord owns the lifecycle state machine of a switch:
// heartbeat scheduling, check-in ingestion, and the
// create/check-in/pause/resume/cancel/status/test-release operations
// from spec.md §4.4.
package switchcoord

import (
	"time"

	"github.com/echolock/echolock/envelope"
)

// State is one of the five lifecycle states from spec.md §4.4.
type State string

const (
	StateArmed     State = "ARMED"
	StatePaused    State = "PAUSED"
	StateTriggered State = "TRIGGERED"
	StateReleased  State = "RELEASED"
	StateCancelled State = "CANCELLED"
)

// GuardianShareRef is the persisted, ciphertext-only reference to one
// guardian's encrypted share. No cleartext key material ever lives
// here (spec.md §3).
type GuardianShareRef struct {
	GuardianPubKey []byte `json:"guardian_pub_key"`
	Index          byte   `json:"index"`
	EphemeralPub   []byte `json:"ephemeral_pub"`
	Nonce          []byte `json:"nonce"`
	Ciphertext     []byte `json:"ciphertext"`
	Mac            []byte `json:"mac"`
	Acknowledged   bool   `json:"acknowledged"`
	AcknowledgedAt int64  `json:"acknowledged_at,omitempty"`
}

// Switch is the persistent aggregate from spec.md §3.
type Switch struct {
	ID               string             `json:"id"`
	OwnerPubKey      []byte             `json:"owner_pub_key"`
	Title            string             `json:"title"`
	CreatedAt        int64              `json:"created_at"`
	CheckInSeconds   int64              `json:"check_in_seconds"`
	LastHeartbeat    int64              `json:"last_heartbeat"`
	CheckInCount     int                `json:"check_in_count"`
	State            State              `json:"state"`
	Envelope         envelope.Envelope  `json:"envelope"`
	Shares           []GuardianShareRef `json:"shares"`
	K                int                `json:"k"`
	N                int                `json:"n"`
	Recipients       [][]byte           `json:"recipients"`
	SigningKey       *envelope.WrappedSigningKey `json:"signing_key,omitempty"`
	TimelockAddress  string             `json:"timelock_address,omitempty"`
	TimelockLocktime uint32             `json:"timelock_locktime,omitempty"`
	TimelockScript   []byte             `json:"timelock_script,omitempty"`
}

// DebounceWindow is the minimum interval between consecutive
// check-in heartbeats, preventing signature spam (spec.md §4.4).
const DebounceWindow = time.Minute

// GraceHours is informational surface area only; the authoritative
// grace period lives in the guardian daemon (spec.md §4.5's
// `grace ≥ 1h`). Neither Status nor the CLI reads or reports it.
const GraceHours = 1

// StatusView is the read model returned by Status.
type StatusView struct {
	ID                string
	State             State
	CreatedAt         time.Time
	LastHeartbeat     time.Time
	NextHeartbeatDue  time.Time
	TimeRemaining     time.Duration
	CheckInCount      int
	AcknowledgedCount int
	GuardianCount     int
	TimelockAddress   string
}
