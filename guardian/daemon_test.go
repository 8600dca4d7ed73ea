package guardian_test

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echolock/echolock/crypto"
	"github.com/echolock/echolock/guardian"
	"github.com/echolock/echolock/relay"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func freshKey(t *testing.T) (*btcec.PrivateKey, []byte) {
	t.Helper()
	sk, err := crypto.GenerateSecretKey(rand.Reader)
	require.NoError(t, err)
	return sk, crypto.DerivePublic(sk)
}

func buildShareStorageEvent(t *testing.T, ownerSK *btcec.PrivateKey, guardianPub []byte, recipients [][]byte, switchID string, thresholdSeconds int64, createdAt int64) *relay.Event {
	t.Helper()
	shares, err := crypto.Split(rand.Reader, []byte("0123456789abcdef0123456789abcdef"), 2, 2)
	require.NoError(t, err)
	share := shares[0]

	ephemeralPub, nonce, ciphertext, mac, err := crypto.WrapShare(rand.Reader, share, guardianPub)
	require.NoError(t, err)

	tags := [][]string{
		{"p", hex.EncodeToString(guardianPub)},
		{"d", switchID + ":" + strconv.Itoa(int(share.Index))},
		{"threshold_hours", strconv.FormatFloat(float64(thresholdSeconds)/3600, 'f', -1, 64)},
		{"ephemeral", hex.EncodeToString(ephemeralPub)},
	}
	for _, r := range recipients {
		tags = append(tags, []string{"recipient", hex.EncodeToString(r)})
	}

	e := &relay.Event{
		CreatedAt: createdAt,
		Kind:      relay.KindShareStorage,
		Tags:      tags,
		Content:   relay.EncodeShareContent(nonce, ciphertext, mac),
	}
	require.NoError(t, e.Sign(ownerSK))
	return e
}

func TestHandleShareStorageEnrollsRecord(t *testing.T) {
	guardianSK, guardianPub := freshKey(t)
	ownerSK, _ := freshKey(t)
	_, recipientPub := freshKey(t)

	store := guardian.NewStore(t.TempDir())
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	d := guardian.NewDaemon(guardianSK, store, nil, clock)

	e := buildShareStorageEvent(t, ownerSK, guardianPub, [][]byte{recipientPub}, "switch-1", 86400, clock.now.Unix())
	require.NoError(t, d.HandleShareStorage(e))

	all, err := store.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "switch-1", all[0].SwitchID)
	assert.False(t, all[0].Released)
}

func TestHandleShareStorageIgnoresEventForOtherGuardian(t *testing.T) {
	guardianSK, _ := freshKey(t)
	ownerSK, _ := freshKey(t)
	_, otherGuardianPub := freshKey(t)
	_, recipientPub := freshKey(t)

	store := guardian.NewStore(t.TempDir())
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	d := guardian.NewDaemon(guardianSK, store, nil, clock)

	e := buildShareStorageEvent(t, ownerSK, otherGuardianPub, [][]byte{recipientPub}, "switch-1", 86400, clock.now.Unix())
	require.NoError(t, d.HandleShareStorage(e))

	all, err := store.All()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestHandleHeartbeatUpdatesLastSeenMonotonically(t *testing.T) {
	guardianSK, guardianPub := freshKey(t)
	ownerSK, _ := freshKey(t)
	_, recipientPub := freshKey(t)

	store := guardian.NewStore(t.TempDir())
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	d := guardian.NewDaemon(guardianSK, store, nil, clock)

	share := buildShareStorageEvent(t, ownerSK, guardianPub, [][]byte{recipientPub}, "switch-1", 86400, clock.now.Unix())
	require.NoError(t, d.HandleShareStorage(share))

	hb1 := &relay.Event{CreatedAt: clock.now.Unix() + 10, Kind: relay.KindHeartbeat, Tags: [][]string{{"d", relay.HeartbeatDTag("switch-1")}}}
	require.NoError(t, hb1.Sign(ownerSK))
	require.NoError(t, d.HandleHeartbeat(hb1))

	all, err := store.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, clock.now.Unix()+10, all[0].LastHeartbeatSeen)

	// An out-of-order heartbeat must not regress last-heartbeat-seen.
	hbOld := &relay.Event{CreatedAt: clock.now.Unix() + 1, Kind: relay.KindHeartbeat, Tags: [][]string{{"d", relay.HeartbeatDTag("switch-1")}}}
	require.NoError(t, hbOld.Sign(ownerSK))
	require.NoError(t, d.HandleHeartbeat(hbOld))

	all, err = store.All()
	require.NoError(t, err)
	assert.Equal(t, clock.now.Unix()+10, all[0].LastHeartbeatSeen)
}

func TestHandleHeartbeatIgnoresBadSignature(t *testing.T) {
	guardianSK, guardianPub := freshKey(t)
	ownerSK, _ := freshKey(t)
	_, recipientPub := freshKey(t)

	store := guardian.NewStore(t.TempDir())
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	d := guardian.NewDaemon(guardianSK, store, nil, clock)

	share := buildShareStorageEvent(t, ownerSK, guardianPub, [][]byte{recipientPub}, "switch-1", 86400, clock.now.Unix())
	require.NoError(t, d.HandleShareStorage(share))

	hb := &relay.Event{CreatedAt: clock.now.Unix() + 10, Kind: relay.KindHeartbeat, Tags: [][]string{{"d", relay.HeartbeatDTag("switch-1")}}}
	require.NoError(t, hb.Sign(ownerSK))
	hb.Content = "tampered"
	require.NoError(t, d.HandleHeartbeat(hb))

	all, err := store.All()
	require.NoError(t, err)
	assert.Equal(t, int64(0), all[0].LastHeartbeatSeen)
}

func TestCheckReleasesFiresAfterThresholdPlusGrace(t *testing.T) {
	guardianSK, guardianPub := freshKey(t)
	ownerSK, _ := freshKey(t)
	_, recipientPub := freshKey(t)

	store := guardian.NewStore(t.TempDir())
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	d := guardian.NewDaemon(guardianSK, store, nil, clock)

	share := buildShareStorageEvent(t, ownerSK, guardianPub, [][]byte{recipientPub}, "switch-1", 3600, clock.now.Unix())
	require.NoError(t, d.HandleShareStorage(share))

	require.NoError(t, d.CheckReleases(context.Background(), clock.now.Add(30*time.Minute), rand.Reader))
	all, err := store.All()
	require.NoError(t, err)
	assert.False(t, all[0].Released)

	require.NoError(t, d.CheckReleases(context.Background(), clock.now.Add(2*time.Hour+1*time.Minute), rand.Reader))
	all, err = store.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Released)
}
