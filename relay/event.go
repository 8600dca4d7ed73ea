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

// Package relay implements the EchoLock relay wire protocol: signed
// event encode/decode, fan-out publish with quorum, subscription, and
// integrity-verifying retrieval, per spec.md §4.3 and §6.
package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/echolock/echolock/crypto"
	"github.com/echolock/echolock/internal/common"
)

// Event kinds, exact wire values required for interop (spec.md §4.3).
const (
	KindHeartbeat     = 30078
	KindShareStorage  = 30079
	KindShareRelease  = 30080
	KindGuardianAck   = 30083
)

// HeartbeatDTagPrefix is the canonical, written form of a heartbeat's
// "d" tag. Readers also accept the unprefixed switch id, per spec.md
// §9's Open Question 1.
const HeartbeatDTagPrefix = "echolock-heartbeat-"

// Event is the signed relay event from spec.md §4.3.
type Event struct {
	ID        [32]byte   `json:"-"`
	PubKey    []byte     `json:"-"` // 32-byte x-only
	CreatedAt int64      `json:"-"`
	Kind      int        `json:"-"`
	Tags      [][]string `json:"-"`
	Content   string     `json:"-"`
	Sig       []byte     `json:"-"`
}

// canonicalArray is the exact [0, pubkey, created_at, kind, tags,
// content] structure hashed to produce an event id.
type canonicalArray struct {
	tag       int
	pubkey    string
	createdAt int64
	kind      int
	tags      [][]string
	content   string
}

func (c canonicalArray) MarshalJSON() ([]byte, error) {
	tags := c.tags
	if tags == nil {
		tags = [][]string{}
	}
	return json.Marshal([]interface{}{c.tag, c.pubkey, c.createdAt, c.kind, tags, c.content})
}

// ComputeID returns the sha256 of the canonical serialisation of e's
// pubkey/created_at/kind/tags/content.
func (e *Event) ComputeID() [32]byte {
	ca := canonicalArray{
		tag:       0,
		pubkey:    hex.EncodeToString(e.PubKey),
		createdAt: e.CreatedAt,
		kind:      e.Kind,
		tags:      e.Tags,
		content:   e.Content,
	}
	b, _ := json.Marshal(ca)
	return sha256.Sum256(b)
}

// Sign finalises e: it recomputes the id, signs it with sk, and sets
// PubKey/ID/Sig.
func (e *Event) Sign(sk *btcec.PrivateKey) error {
	e.PubKey = crypto.DerivePublic(sk)
	e.ID = e.ComputeID()
	sig, err := crypto.SchnorrSign(sk, e.ID[:])
	if err != nil {
		return err
	}
	e.Sig = sig
	return nil
}

// Verify reports whether e's id matches its content and its signature
// verifies under its own claimed pubkey. A single-bit flip anywhere in
// content, any tag, created_at, or pubkey causes this to fail
// (spec.md §8).
func (e *Event) Verify() bool {
	if e.ComputeID() != e.ID {
		return false
	}
	return crypto.SchnorrVerify(e.PubKey, e.ID[:], e.Sig)
}

// Tag returns the first value of tag key name, if present.
func (e *Event) Tag(name string) (string, bool) {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}

// TagValues returns every value recorded under tag key name, in
// order, e.g. every "p" tag on a share-release event.
func (e *Event) TagValues(name string) []string {
	var out []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			out = append(out, t[1])
		}
	}
	return out
}

// wireEvent is the JSON-over-the-wire shape (spec.md §6: UTF-8 JSON).
type wireEvent struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// MarshalJSON encodes e in the wire form.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		ID:        hex.EncodeToString(e.ID[:]),
		PubKey:    hex.EncodeToString(e.PubKey),
		CreatedAt: e.CreatedAt,
		Kind:      e.Kind,
		Tags:      e.Tags,
		Content:   e.Content,
		Sig:       hex.EncodeToString(e.Sig),
	})
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return common.NewError(common.KindIo, "decoding event JSON", err)
	}
	idBytes, err := hex.DecodeString(w.ID)
	if err != nil || len(idBytes) != 32 {
		return common.NewError(common.KindIo, "decoding event id", err)
	}
	pub, err := hex.DecodeString(w.PubKey)
	if err != nil {
		return common.NewError(common.KindIo, "decoding event pubkey", err)
	}
	sig, err := hex.DecodeString(w.Sig)
	if err != nil {
		return common.NewError(common.KindIo, "decoding event sig", err)
	}
	copy(e.ID[:], idBytes)
	e.PubKey = pub
	e.CreatedAt = w.CreatedAt
	e.Kind = w.Kind
	e.Tags = w.Tags
	e.Content = w.Content
	e.Sig = sig
	return nil
}

// HeartbeatDTag returns the canonical d tag for switchID.
func HeartbeatDTag(switchID string) string {
	return HeartbeatDTagPrefix + switchID
}

// MatchesHeartbeatSwitch reports whether a heartbeat event's d tag
// names switchID, accepting both the prefixed and legacy raw forms.
func MatchesHeartbeatSwitch(e *Event, switchID string) bool {
	d, ok := e.Tag("d")
	if !ok {
		return false
	}
	return d == HeartbeatDTag(switchID) || d == switchID
}

// ShareDTag is the "d" tag for a share-storage/release event.
func ShareDTag(switchID string, index byte) string {
	return switchID + ":" + strconv.Itoa(int(index))
}

// GuardianAckDTag is the "d" tag for a kind-30083 acknowledgement.
func GuardianAckDTag(switchID string, guardianPubKey []byte) string {
	return switchID + ":" + hex.EncodeToString(guardianPubKey)
}
