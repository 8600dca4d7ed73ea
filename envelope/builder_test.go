package envelope_test

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/echolock/echolock/crypto"
	"github.com/echolock/echolock/envelope"
	"github.com/echolock/echolock/internal/common"
)

func freshXOnlyPubKey(t *testing.T) []byte {
	t.Helper()
	sk, err := crypto.GenerateSecretKey(rand.Reader)
	require.NoError(t, err)
	return crypto.DerivePublic(sk)
}

func freshSecretKey(t *testing.T) (*btcec.PrivateKey, []byte) {
	t.Helper()
	sk, err := crypto.GenerateSecretKey(rand.Reader)
	require.NoError(t, err)
	return sk, crypto.DerivePublic(sk)
}

// E2E-1: local round trip. Build with plaintext "hello", k=3, n=5,
// five fresh guardian keys, no chain commitment. Reconstruct using
// shares 1, 2, 3.
func TestBuildAndReconstructLocalRoundTrip(t *testing.T) {
	owner := freshXOnlyPubKey(t)

	var guardianSKs []*btcec.PrivateKey
	var guardianPubs [][]byte
	for i := 0; i < 5; i++ {
		sk, pub := freshSecretKey(t)
		guardianSKs = append(guardianSKs, sk)
		guardianPubs = append(guardianPubs, pub)
	}
	recipient := freshXOnlyPubKey(t)

	result, err := envelope.Build(rand.Reader, owner, time.Unix(1_700_000_000, 0), []byte("hello"), envelope.Params{
		K:          3,
		N:          5,
		Recipients: [][]byte{recipient},
		Guardians:  guardianPubs,
	})
	require.NoError(t, err)
	require.Len(t, result.Shares, 5)

	var recovered []crypto.Share
	for i := 0; i < 3; i++ {
		gs := result.Shares[i]
		share, err := crypto.UnwrapShare(guardianSKs[i], gs.EphemeralPub, gs.Nonce, gs.Ciphertext, gs.Mac)
		require.NoError(t, err)
		recovered = append(recovered, share)
	}

	key, err := crypto.Combine(recovered)
	require.NoError(t, err)

	plaintext, err := crypto.Decrypt(key, result.Envelope.IV, append(append([]byte(nil), result.Envelope.Ciphertext...), result.Envelope.Tag...), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plaintext))
}

func TestBuildRejectsGuardianCountMismatch(t *testing.T) {
	owner := freshXOnlyPubKey(t)
	_, err := envelope.Build(rand.Reader, owner, time.Now(), []byte("x"), envelope.Params{
		K:         2,
		N:         3,
		Guardians: [][]byte{freshXOnlyPubKey(t), freshXOnlyPubKey(t)},
	})
	require.Error(t, err)
	kind, ok := common.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, common.KindParameterError, kind)
}

func TestBuildRejectsEmptyPlaintext(t *testing.T) {
	owner := freshXOnlyPubKey(t)
	guardians := [][]byte{freshXOnlyPubKey(t), freshXOnlyPubKey(t)}
	_, err := envelope.Build(rand.Reader, owner, time.Now(), nil, envelope.Params{K: 2, N: 2, Guardians: guardians})
	require.Error(t, err)
	kind, ok := common.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, common.KindSizeLimit, kind)
}

func TestBuildAcceptsOneBytePlaintext(t *testing.T) {
	owner := freshXOnlyPubKey(t)
	guardians := [][]byte{freshXOnlyPubKey(t), freshXOnlyPubKey(t)}
	_, err := envelope.Build(rand.Reader, owner, time.Now(), []byte("x"), envelope.Params{K: 2, N: 2, Guardians: guardians})
	require.NoError(t, err)
}

func TestWrappedSigningKeyRoundTripAndWrongPassword(t *testing.T) {
	owner := freshXOnlyPubKey(t)
	guardians := [][]byte{freshXOnlyPubKey(t), freshXOnlyPubKey(t)}

	result, err := envelope.Build(rand.Reader, owner, time.Now(), []byte("secret"), envelope.Params{
		K: 2, N: 2, Guardians: guardians, Password: "good",
	})
	require.NoError(t, err)
	require.NotNil(t, result.SigningKey)

	skBytes, err := envelope.UnwrapSigningKey(result.SigningKey, "good")
	require.NoError(t, err)
	assert.Len(t, skBytes, 32)

	_, err = envelope.UnwrapSigningKey(result.SigningKey, "good ")
	require.Error(t, err)
	kind, ok := common.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, common.KindAeadAuthFailure, kind)
}
