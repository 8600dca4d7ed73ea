package crypto_test

import (
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echolock/echolock/crypto"
)

func TestEcdhSharedXAgreement(t *testing.T) {
	skA, err := crypto.GenerateSecretKey(rand.Reader)
	require.NoError(t, err)
	skB, err := crypto.GenerateSecretKey(rand.Reader)
	require.NoError(t, err)

	pubA := crypto.DerivePublic(skA)
	pubB := crypto.DerivePublic(skB)

	sharedAB, err := crypto.EcdhSharedX(skA, pubB)
	require.NoError(t, err)
	sharedBA, err := crypto.EcdhSharedX(skB, pubA)
	require.NoError(t, err)

	assert.Equal(t, sharedAB, sharedBA)
}

func TestSchnorrSignVerify(t *testing.T) {
	sk, err := crypto.GenerateSecretKey(rand.Reader)
	require.NoError(t, err)
	pub := crypto.DerivePublic(sk)

	digest := sha256.Sum256([]byte("echolock heartbeat payload"))
	sig, err := crypto.SchnorrSign(sk, digest[:])
	require.NoError(t, err)

	assert.True(t, crypto.SchnorrVerify(pub, digest[:], sig))

	flipped := sha256.Sum256([]byte("echolock heartbeat payloaD"))
	assert.False(t, crypto.SchnorrVerify(pub, flipped[:], sig))
}

func TestSchnorrVerifyRejectsTamperedSignature(t *testing.T) {
	sk, err := crypto.GenerateSecretKey(rand.Reader)
	require.NoError(t, err)
	pub := crypto.DerivePublic(sk)

	digest := sha256.Sum256([]byte("payload"))
	sig, err := crypto.SchnorrSign(sk, digest[:])
	require.NoError(t, err)

	tampered := append([]byte(nil), sig...)
	tampered[0] ^= 0xFF
	assert.False(t, crypto.SchnorrVerify(pub, digest[:], tampered))
}

func TestParseXOnlyPubKeyRejectsGarbage(t *testing.T) {
	_, err := crypto.ParseXOnlyPubKey(make([]byte, 32))
	assert.Error(t, err)
}
