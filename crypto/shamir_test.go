package crypto_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echolock/echolock/crypto"
	"github.com/echolock/echolock/internal/common"
)

func TestSplitCombineRoundTrip(t *testing.T) {
	for k := 2; k <= 10; k++ {
		for n := k; n <= 10; n++ {
			k, n := k, n
			t.Run("", func(t *testing.T) {
				secret := make([]byte, 32)
				_, err := rand.Read(secret)
				require.NoError(t, err)

				shares, err := crypto.Split(rand.Reader, secret, k, n)
				require.NoError(t, err)
				require.Len(t, shares, n)

				got, err := crypto.Combine(shares[:k])
				require.NoError(t, err)
				assert.Equal(t, secret, got)

				if k > 2 {
					_, err = crypto.Combine(shares[:k-1])
					assert.Error(t, err)
					kind, ok := common.KindOf(err)
					require.True(t, ok)
					assert.Equal(t, common.KindInsufficientShares, kind)
				}
			})
		}
	}
}

func TestCombineBoundaryKEqualsN(t *testing.T) {
	secret := []byte("hello")
	shares, err := crypto.Split(rand.Reader, secret, 2, 2)
	require.NoError(t, err)

	_, err = crypto.Combine(shares[:1])
	require.Error(t, err)

	got, err := crypto.Combine(shares)
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestSplitRejectsInvalidParameters(t *testing.T) {
	secret := []byte("x")
	cases := []struct {
		k, n int
	}{
		{1, 5}, {0, 5}, {3, 2}, {2, 0}, {2, 256},
	}
	for _, c := range cases {
		_, err := crypto.Split(rand.Reader, secret, c.k, c.n)
		require.Error(t, err)
		kind, ok := common.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, common.KindParameterError, kind)
	}
}

func TestSplitRejectsEmptySecret(t *testing.T) {
	_, err := crypto.Split(rand.Reader, nil, 2, 3)
	require.Error(t, err)
}

func TestCombineDetectsInconsistentShares(t *testing.T) {
	secret := []byte("the-secret-key!!")
	a, err := crypto.Split(rand.Reader, secret, 2, 3)
	require.NoError(t, err)
	b, err := crypto.Split(rand.Reader, secret, 3, 4)
	require.NoError(t, err)

	mixed := []crypto.Share{a[0], b[0], b[1]}
	_, err = crypto.Combine(mixed)
	require.Error(t, err)
	kind, ok := common.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, common.KindInconsistentShares, kind)
}

func TestCombineDetectsCorruptShare(t *testing.T) {
	secret := []byte("another-secret-value")
	shares, err := crypto.Split(rand.Reader, secret, 3, 5)
	require.NoError(t, err)

	corrupt := shares[0]
	corrupt.Tag[0] ^= 0xFF
	_, err = crypto.Combine([]crypto.Share{corrupt, shares[1], shares[2]})
	require.Error(t, err)
	kind, ok := common.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, common.KindIntegrityFailure, kind)

	// The remaining valid shares still combine successfully (E2E-6).
	got, err := crypto.Combine([]crypto.Share{shares[1], shares[2], shares[3]})
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}
