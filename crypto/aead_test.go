package crypto_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echolock/echolock/crypto"
	"github.com/echolock/echolock/internal/common"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey(rand.Reader)
	require.NoError(t, err)
	nonce, err := crypto.GenerateNonce(rand.Reader)
	require.NoError(t, err)

	plaintexts := [][]byte{
		[]byte("hello"),
		{},
		[]byte("x"),
		make([]byte, 70000),
	}
	aad := []byte("echolock-envelope-v1")

	for _, pt := range plaintexts {
		ct, err := crypto.Encrypt(key, nonce, pt, aad)
		require.NoError(t, err)

		got, err := crypto.Decrypt(key, nonce, ct, aad)
		require.NoError(t, err)
		assert.Equal(t, pt, got)
	}
}

func TestDecryptFailsWithWrongKey(t *testing.T) {
	key, _ := crypto.GenerateKey(rand.Reader)
	other, _ := crypto.GenerateKey(rand.Reader)
	nonce, _ := crypto.GenerateNonce(rand.Reader)

	ct, err := crypto.Encrypt(key, nonce, []byte("hello"), nil)
	require.NoError(t, err)

	got, err := crypto.Decrypt(other, nonce, ct, nil)
	require.Error(t, err)
	assert.Nil(t, got)
	kind, ok := common.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, common.KindAeadAuthFailure, kind)
}

func TestDecryptFailsOnTamperedAAD(t *testing.T) {
	key, _ := crypto.GenerateKey(rand.Reader)
	nonce, _ := crypto.GenerateNonce(rand.Reader)

	ct, err := crypto.Encrypt(key, nonce, []byte("hello"), []byte("aad-a"))
	require.NoError(t, err)

	_, err = crypto.Decrypt(key, nonce, ct, []byte("aad-b"))
	require.Error(t, err)
}

func TestEncryptRejectsOversizePlaintext(t *testing.T) {
	key, _ := crypto.GenerateKey(rand.Reader)
	nonce, _ := crypto.GenerateNonce(rand.Reader)

	_, err := crypto.Encrypt(key, nonce, make([]byte, crypto.MaxPlaintextSize+1), nil)
	require.Error(t, err)
	kind, ok := common.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, common.KindSizeLimit, kind)
}
