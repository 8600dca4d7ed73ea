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

package guardian

import (
	"context"
	"encoding/hex"
	"io"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/echolock/echolock/crypto"
	"github.com/echolock/echolock/internal/common"
	"github.com/echolock/echolock/relay"
)

// Daemon is a single-threaded-cooperative guardian process. All
// methods other than Run are safe to call directly in tests: they do
// the real decrypt/verify/persist work with no goroutines of their
// own, matching spec.md §5's "no task runs in parallel with any other
// that touches guardian records".
type Daemon struct {
	sk    *btcec.PrivateKey
	pub   []byte
	store *Store
	pool  *relay.Pool
	clock common.Clock
}

func NewDaemon(sk *btcec.PrivateKey, store *Store, pool *relay.Pool, clock common.Clock) *Daemon {
	return &Daemon{sk: sk, pub: crypto.DerivePublic(sk), store: store, pool: pool, clock: clock}
}

// PubKey returns this daemon's own x-only public key.
func (d *Daemon) PubKey() []byte { return d.pub }

// HandleShareStorage processes one kind-30079 event. A corrupted
// ciphertext or a tag pointed at a different guardian is ignored, not
// propagated: a hostile or buggy relay must not be able to crash the
// daemon (spec.md §4.5 step 2, §4.5 failure semantics).
func (d *Daemon) HandleShareStorage(e *relay.Event) error {
	if e.Kind != relay.KindShareStorage {
		return nil
	}
	if !e.Verify() {
		return nil
	}
	guardianHex, ok := e.Tag("p")
	if !ok || guardianHex != hex.EncodeToString(d.pub) {
		return nil
	}
	dTag, ok := e.Tag("d")
	if !ok {
		return nil
	}
	switchID, _, err := parseShareDTag(dTag)
	if err != nil {
		return nil
	}
	ephemeralHex, ok := e.Tag("ephemeral")
	if !ok {
		return nil
	}
	ephemeralPub, err := hex.DecodeString(ephemeralHex)
	if err != nil {
		return nil
	}
	nonce, ciphertext, mac, err := relay.DecodeShareContent(e.Content)
	if err != nil {
		return nil
	}

	share, err := crypto.UnwrapShare(d.sk, ephemeralPub, nonce, ciphertext, mac)
	if err != nil {
		return nil
	}

	var recipients [][]byte
	for _, r := range e.TagValues("recipient") {
		rb, err := hex.DecodeString(r)
		if err != nil {
			continue
		}
		recipients = append(recipients, rb)
	}
	thresholdSeconds := int64(0)
	if thStr, ok := e.Tag("threshold_hours"); ok {
		if hours, err := strconv.ParseFloat(thStr, 64); err == nil {
			thresholdSeconds = int64(hours * 3600)
		}
	}

	existing, hadExisting, err := d.store.Get(switchID, share.Index)
	if err != nil {
		return err
	}
	enrolledAt := d.clock.Now().Unix()
	if hadExisting {
		enrolledAt = existing.EnrolledAt
	}

	record := Record{
		SwitchID:          switchID,
		ShareIndex:        share.Index,
		OwnerPubKey:       e.PubKey,
		ThresholdSeconds:  thresholdSeconds,
		EphemeralPub:      ephemeralPub,
		Nonce:             nonce,
		Ciphertext:        ciphertext,
		Mac:               mac,
		Recipients:        recipients,
		LastHeartbeatSeen: existing.LastHeartbeatSeen,
		EnrolledAt:        enrolledAt,
	}
	if err := d.store.Upsert(record); err != nil {
		return err
	}

	if hadExisting {
		return nil
	}
	if d.pool == nil {
		return nil
	}
	ack := &relay.Event{
		CreatedAt: d.clock.Now().Unix(),
		Kind:      relay.KindGuardianAck,
		Tags:      [][]string{{"d", relay.GuardianAckDTag(switchID, d.pub)}},
	}
	if err := ack.Sign(d.sk); err != nil {
		return err
	}
	return d.pool.Publish(context.Background(), ack)
}

// HandleHeartbeat processes one kind-30078 event. A heartbeat with a
// bad signature never regresses last-heartbeat-seen: it is dropped
// with nothing else happening (spec.md §4.5 failure semantics).
func (d *Daemon) HandleHeartbeat(e *relay.Event) error {
	if e.Kind != relay.KindHeartbeat {
		return nil
	}
	if !e.Verify() {
		return nil
	}
	ownerHex := hex.EncodeToString(e.PubKey)

	all, err := d.store.All()
	if err != nil {
		return err
	}
	for _, r := range all {
		if hex.EncodeToString(r.OwnerPubKey) != ownerHex {
			continue
		}
		if !relay.MatchesHeartbeatSwitch(e, r.SwitchID) {
			continue
		}
		if e.CreatedAt <= r.LastHeartbeatSeen {
			continue
		}
		r.LastHeartbeatSeen = e.CreatedAt
		if err := d.store.Upsert(r); err != nil {
			return err
		}
	}
	return nil
}

// CheckReleases runs the release test from spec.md §4.5 step 4 over
// every held record: when the owner has gone dark for longer than
// threshold+grace and the record is not yet released, the share is
// re-encrypted to every recipient and a kind-30080 release event is
// published. Silence is counted from the later of the last heartbeat
// seen and the record's enrollment time.
func (d *Daemon) CheckReleases(ctx context.Context, now time.Time, rng io.Reader) error {
	all, err := d.store.All()
	if err != nil {
		return err
	}
	for _, r := range all {
		if r.Released {
			continue
		}
		lastSeen := r.LastHeartbeatSeen
		if r.EnrolledAt > lastSeen {
			lastSeen = r.EnrolledAt
		}
		deadline := time.Unix(lastSeen, 0).Add(time.Duration(r.ThresholdSeconds)*time.Second + GraceSeconds*time.Second)
		if !now.After(deadline) {
			continue
		}
		if err := d.release(ctx, r, now, rng); err != nil {
			common.Logger.Warnw("release attempt failed, will retry next tick", "switch_id", r.SwitchID, "error_kind", errKind(err))
			continue
		}
	}
	return nil
}

func (d *Daemon) release(ctx context.Context, r Record, now time.Time, rng io.Reader) error {
	share, err := crypto.UnwrapShare(d.sk, r.EphemeralPub, r.Nonce, r.Ciphertext, r.Mac)
	if err != nil {
		return err
	}

	if d.pool != nil {
		for _, recipientPub := range r.Recipients {
			ephemeralPub, nonce, ciphertext, mac, err := crypto.WrapShare(rng, share, recipientPub)
			if err != nil {
				return err
			}
			content := relay.EncodeShareContent(nonce, ciphertext, mac)
			ev := &relay.Event{
				CreatedAt: now.Unix(),
				Kind:      relay.KindShareRelease,
				Tags: [][]string{
					{"p", hex.EncodeToString(recipientPub)},
					{"d", relay.ShareDTag(r.SwitchID, r.ShareIndex)},
					{"e", "switch:" + r.SwitchID},
					{"ephemeral", hex.EncodeToString(ephemeralPub)},
				},
				Content: content,
			}
			if err := ev.Sign(d.sk); err != nil {
				return err
			}
			if err := d.pool.Publish(ctx, ev); err != nil {
				return err
			}
		}
	}

	r.Released = true
	r.ReleasedAt = now.Unix()
	return d.store.Upsert(r)
}

// Run is the daemon's single-threaded cooperative message loop: one
// goroutine, one select statement. It multiplexes relay retrieval
// polls for share-storage and heartbeat events with a release-check
// timer, never touching a Record from two goroutines at once.
func (d *Daemon) Run(ctx context.Context, rng io.Reader, pollInterval, checkInterval time.Duration) error {
	if d.pool == nil {
		return common.NewError(common.KindParameterError, "daemon has no relay pool to run against", nil)
	}
	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()
	checkTicker := time.NewTicker(checkInterval)
	defer checkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pollTicker.C:
			if err := d.pollOnce(ctx); err != nil {
				common.Logger.Warnw("poll failed", "error_kind", errKind(err))
			}
		case <-checkTicker.C:
			if err := d.CheckReleases(ctx, d.clock.Now(), rng); err != nil {
				common.Logger.Warnw("release check failed", "error_kind", errKind(err))
			}
		}
	}
}

func (d *Daemon) pollOnce(ctx context.Context) error {
	shareEvents, err := d.pool.Retrieve(ctx, relay.Filter{
		Kinds: []int{relay.KindShareStorage},
		Tags:  map[string][]string{"p": {hex.EncodeToString(d.pub)}},
	})
	if err != nil {
		return err
	}
	for _, e := range shareEvents {
		if err := d.HandleShareStorage(e); err != nil {
			return err
		}
	}

	heartbeats, err := d.pool.Retrieve(ctx, relay.Filter{Kinds: []int{relay.KindHeartbeat}})
	if err != nil {
		return err
	}
	for _, e := range heartbeats {
		if err := d.HandleHeartbeat(e); err != nil {
			return err
		}
	}
	return nil
}

func parseShareDTag(d string) (switchID string, index byte, err error) {
	for i := len(d) - 1; i >= 0; i-- {
		if d[i] == ':' {
			n, parseErr := strconv.Atoi(d[i+1:])
			if parseErr != nil || n < 0 || n > 255 {
				return "", 0, common.NewError(common.KindParameterError, "invalid share d tag", parseErr)
			}
			return d[:i], byte(n), nil
		}
	}
	return "", 0, common.NewError(common.KindParameterError, "missing index in share d tag", nil)
}

func errKind(err error) string {
	if k, ok := common.KindOf(err); ok {
		return string(k)
	}
	return "unknown"
}
