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

package switchcoord

import (
	"context"
	"encoding/hex"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/echolock/echolock/crypto"
	"github.com/echolock/echolock/envelope"
	"github.com/echolock/echolock/internal/common"
	"github.com/echolock/echolock/relay"
)

// Coordinator implements the switch lifecycle operations from
// spec.md §4.4. It never holds a switch's secret-bearing fields
// longer than one call's stack frame: owner private keys and
// reconstructed plaintexts are parameters and return values only.
type Coordinator struct {
	store *Store
	pool  *relay.Pool
	clock common.Clock
	rng   io.Reader
}

func NewCoordinator(store *Store, pool *relay.Pool, clock common.Clock, rng io.Reader) *Coordinator {
	return &Coordinator{store: store, pool: pool, clock: clock, rng: rng}
}

// Create builds an envelope and share set, publishes the shares and
// an initial heartbeat, and persists the switch in ARMED.
func (c *Coordinator) Create(ctx context.Context, ownerSK *btcec.PrivateKey, title string, plaintext []byte, params envelope.Params) (*Switch, error) {
	ownerPub := crypto.DerivePublic(ownerSK)
	now := c.clock.Now()

	result, err := envelope.Build(c.rng, ownerPub, now, plaintext, params)
	if err != nil {
		return nil, err
	}

	switchID := hex.EncodeToString(result.SwitchIDSeed[:16])

	shareRefs := make([]GuardianShareRef, len(result.Shares))
	for i, gs := range result.Shares {
		shareRefs[i] = GuardianShareRef{
			GuardianPubKey: gs.GuardianPubKey,
			Index:          gs.Index,
			EphemeralPub:   gs.EphemeralPub,
			Nonce:          gs.Nonce,
			Ciphertext:     gs.Ciphertext,
			Mac:            gs.Mac,
		}
	}

	sw := &Switch{
		ID:             switchID,
		OwnerPubKey:    ownerPub,
		Title:          title,
		CreatedAt:      now.Unix(),
		CheckInSeconds: params.CheckInSeconds,
		LastHeartbeat:  now.Unix(),
		State:          StateArmed,
		Envelope:       result.Envelope,
		Shares:         shareRefs,
		K:              params.K,
		N:              params.N,
		Recipients:     params.Recipients,
		SigningKey:     result.SigningKey,
	}

	if c.pool != nil {
		for _, gs := range result.Shares {
			ev, err := buildShareStorageEvent(ownerSK, switchID, gs, params.CheckInSeconds, params.Recipients, now)
			if err != nil {
				return nil, err
			}
			if err := c.pool.Publish(ctx, ev); err != nil {
				return nil, err
			}
		}
		hb, err := buildHeartbeatEvent(ownerSK, switchID, params.CheckInSeconds, now)
		if err != nil {
			return nil, err
		}
		if err := c.pool.Publish(ctx, hb); err != nil {
			return nil, err
		}
	}

	if err := c.store.Put(sw); err != nil {
		return nil, err
	}
	return sw, nil
}

// CheckIn issues a new heartbeat at the current wall time, refusing
// to do so unless the switch is ARMED and the debounce window has
// elapsed since the last heartbeat.
func (c *Coordinator) CheckIn(ctx context.Context, ownerSK *btcec.PrivateKey, id string) error {
	now := c.clock.Now()
	_, err := c.store.Update(id, func(sw *Switch) error {
		if sw.State != StateArmed {
			return common.NewError(common.KindInvalidStateTransition, "check_in requires state ARMED", nil)
		}
		if now.Sub(time.Unix(sw.LastHeartbeat, 0)) < DebounceWindow {
			return nil
		}
		if c.pool != nil {
			hb, err := buildHeartbeatEvent(ownerSK, sw.ID, sw.CheckInSeconds, now)
			if err != nil {
				return err
			}
			if err := c.pool.Publish(ctx, hb); err != nil {
				return err
			}
		}
		sw.LastHeartbeat = now.Unix()
		sw.CheckInCount++
		return nil
	})
	return err
}

// Pause transitions ARMED -> PAUSED.
func (c *Coordinator) Pause(id string) error {
	_, err := c.store.Update(id, func(sw *Switch) error {
		if sw.State != StateArmed {
			return common.NewError(common.KindInvalidStateTransition, "pause requires state ARMED", nil)
		}
		sw.State = StatePaused
		return nil
	})
	return err
}

// Resume transitions PAUSED -> ARMED.
func (c *Coordinator) Resume(id string) error {
	_, err := c.store.Update(id, func(sw *Switch) error {
		if sw.State != StatePaused {
			return common.NewError(common.KindInvalidStateTransition, "resume requires state PAUSED", nil)
		}
		sw.State = StateArmed
		return nil
	})
	return err
}

// AttachTimelock records a timelock commitment built separately
// (package `timelock` needs a chain height and a password, neither of
// which the coordinator owns) against an existing switch. The
// commitment's script and locktime are public; only the wrapped
// signing key stays opaque.
func (c *Coordinator) AttachTimelock(id, address string, locktime uint32, script []byte, wrapped *envelope.WrappedSigningKey) error {
	_, err := c.store.Update(id, func(sw *Switch) error {
		sw.TimelockAddress = address
		sw.TimelockLocktime = locktime
		sw.TimelockScript = script
		sw.SigningKey = wrapped
		return nil
	})
	return err
}

// Cancel transitions any state except RELEASED into CANCELLED and
// publishes a signed cancellation heartbeat with a sentinel
// threshold of 0 so guardians unenroll.
func (c *Coordinator) Cancel(ctx context.Context, ownerSK *btcec.PrivateKey, id string) error {
	now := c.clock.Now()
	_, err := c.store.Update(id, func(sw *Switch) error {
		if sw.State == StateReleased {
			return common.NewError(common.KindInvalidStateTransition, "cannot cancel a released switch", nil)
		}
		if c.pool != nil {
			hb, err := buildHeartbeatEvent(ownerSK, sw.ID, 0, now)
			if err != nil {
				return err
			}
			if err := c.pool.Publish(ctx, hb); err != nil {
				return err
			}
		}
		sw.State = StateCancelled
		return nil
	})
	return err
}

// RefreshLifecycle owns the two transitions the coordinator never
// learns about passively (spec.md §4.4's state diagram): ARMED ->
// TRIGGERED once the heartbeat deadline has passed with no check-in,
// and ARMED/TRIGGERED -> RELEASED once a quorum of this switch's
// guardians have published kind-30080 release events for their
// shares. It never moves a switch backwards and is a no-op once the
// switch has left ARMED/TRIGGERED (PAUSED, CANCELLED, or already
// RELEASED).
func (c *Coordinator) RefreshLifecycle(ctx context.Context, id string) (*Switch, error) {
	sw, ok, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.NewError(common.KindParameterError, "no such switch: "+id, nil)
	}
	if sw.State != StateArmed && sw.State != StateTriggered {
		return sw, nil
	}

	now := c.clock.Now()
	deadline := time.Unix(sw.LastHeartbeat, 0).Add(time.Duration(sw.CheckInSeconds) * time.Second)
	triggered := sw.State == StateTriggered || now.After(deadline) || now.Equal(deadline)

	released := false
	if c.pool != nil && triggered {
		count, err := c.countReleasedShares(ctx, sw)
		if err != nil {
			return nil, err
		}
		released = count >= sw.K
	}

	if !triggered {
		return sw, nil
	}

	return c.store.Update(id, func(sw *Switch) error {
		if sw.State != StateArmed && sw.State != StateTriggered {
			return nil
		}
		if sw.State == StateArmed {
			sw.State = StateTriggered
		}
		if released {
			sw.State = StateReleased
		}
		return nil
	})
}

// countReleasedShares retrieves every kind-30080 release event tagged
// against sw and counts the distinct share indices whose release was
// signed by the exact guardian pubkey enrolled for that index, so a
// forged event from an unrelated key cannot count toward quorum.
func (c *Coordinator) countReleasedShares(ctx context.Context, sw *Switch) (int, error) {
	events, err := c.pool.Retrieve(ctx, relay.Filter{
		Kinds: []int{relay.KindShareRelease},
		Tags:  map[string][]string{"e": {"switch:" + sw.ID}},
	})
	if err != nil {
		return 0, err
	}

	guardianByIndex := make(map[byte]string, len(sw.Shares))
	for _, s := range sw.Shares {
		guardianByIndex[s.Index] = hex.EncodeToString(s.GuardianPubKey)
	}

	seen := make(map[byte]bool)
	for _, e := range events {
		idx, ok := shareIndexFromDTag(e)
		if !ok {
			continue
		}
		guardianPub, known := guardianByIndex[idx]
		if !known || guardianPub != hex.EncodeToString(e.PubKey) {
			continue
		}
		seen[idx] = true
	}
	return len(seen), nil
}

// shareIndexFromDTag extracts the share index from a "<switchID>:<index>"
// d tag, the format relay.ShareDTag produces.
func shareIndexFromDTag(e *relay.Event) (byte, bool) {
	d, ok := e.Tag("d")
	if !ok {
		return 0, false
	}
	i := strings.LastIndexByte(d, ':')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(d[i+1:])
	if err != nil || n < 0 || n > 255 {
		return 0, false
	}
	return byte(n), true
}

// Status returns a read model of the switch's current lifecycle
// position and guardian acknowledgement progress. It reads the
// persisted record as-is; call RefreshLifecycle first to fold in any
// TRIGGERED/RELEASED transition observed on the relay pool.
func (c *Coordinator) Status(id string) (*StatusView, error) {
	sw, ok, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.NewError(common.KindParameterError, "no such switch: "+id, nil)
	}

	lastHeartbeat := time.Unix(sw.LastHeartbeat, 0)
	period := time.Duration(sw.CheckInSeconds) * time.Second
	deadline := lastHeartbeat.Add(period)
	now := c.clock.Now()

	acked := 0
	for _, s := range sw.Shares {
		if s.Acknowledged {
			acked++
		}
	}

	return &StatusView{
		ID:                sw.ID,
		State:             sw.State,
		CreatedAt:         time.Unix(sw.CreatedAt, 0),
		LastHeartbeat:     lastHeartbeat,
		NextHeartbeatDue:  deadline,
		TimeRemaining:     deadline.Sub(now),
		CheckInCount:      sw.CheckInCount,
		AcknowledgedCount: acked,
		GuardianCount:     len(sw.Shares),
		TimelockAddress:   sw.TimelockAddress,
	}, nil
}

// List returns every persisted switch.
func (c *Coordinator) List() ([]*Switch, error) {
	return c.store.List()
}

// Delete removes a switch's persisted record entirely.
func (c *Coordinator) Delete(id string) error {
	return c.store.Delete(id)
}

// TestRelease rebuilds the key from caller-supplied shares only (no
// network) and returns the plaintext. It is read-only: it never
// touches the persisted switch state. See SPEC_FULL.md's resolution
// of the "locally stored shares" open question.
func (c *Coordinator) TestRelease(id string, shares []crypto.Share) ([]byte, error) {
	sw, ok, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.NewError(common.KindParameterError, "no such switch: "+id, nil)
	}

	key, err := crypto.Combine(shares)
	if err != nil {
		return nil, err
	}
	defer common.Zeroize(key)

	sealed := append(append([]byte(nil), sw.Envelope.Ciphertext...), sw.Envelope.Tag...)
	return crypto.Decrypt(key, sw.Envelope.IV, sealed, nil)
}

func buildHeartbeatEvent(ownerSK *btcec.PrivateKey, switchID string, checkInSeconds int64, now time.Time) (*relay.Event, error) {
	e := &relay.Event{
		CreatedAt: now.Unix(),
		Kind:      relay.KindHeartbeat,
		Tags: [][]string{
			{"d", relay.HeartbeatDTag(switchID)},
			{"expiry", strconv.FormatInt(now.Unix()+checkInSeconds, 10)},
			{"check-in-hours", strconv.FormatFloat(float64(checkInSeconds)/3600, 'f', -1, 64)},
		},
	}
	if err := e.Sign(ownerSK); err != nil {
		return nil, err
	}
	return e, nil
}

func buildShareStorageEvent(ownerSK *btcec.PrivateKey, switchID string, gs envelope.GuardianShare, checkInSeconds int64, recipients [][]byte, now time.Time) (*relay.Event, error) {
	content := relay.EncodeShareContent(gs.Nonce, gs.Ciphertext, gs.Mac)
	tags := [][]string{
		{"p", hex.EncodeToString(gs.GuardianPubKey)},
		{"d", relay.ShareDTag(switchID, gs.Index)},
		{"threshold_hours", strconv.FormatFloat(float64(checkInSeconds)/3600, 'f', -1, 64)},
		{"ephemeral", hex.EncodeToString(gs.EphemeralPub)},
	}
	for _, r := range recipients {
		tags = append(tags, []string{"recipient", hex.EncodeToString(r)})
	}
	e := &relay.Event{
		CreatedAt: now.Unix(),
		Kind:      relay.KindShareStorage,
		Tags:      tags,
		Content:   content,
	}
	if err := e.Sign(ownerSK); err != nil {
		return nil, err
	}
	return e, nil
}
