package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echolock/echolock/crypto"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := make([]byte, 16)
	for i := range salt {
		salt[i] = byte(i)
	}

	a, err := crypto.DeriveKey("correct horse battery staple", salt, crypto.MinIterationsCurrent, crypto.MinIterationsCurrent)
	require.NoError(t, err)
	b, err := crypto.DeriveKey("correct horse battery staple", salt, crypto.MinIterationsCurrent, crypto.MinIterationsCurrent)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := crypto.DeriveKey("correct horse battery staple ", salt, crypto.MinIterationsCurrent, crypto.MinIterationsCurrent)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestDeriveKeyRejectsWeakIterationsAndSalt(t *testing.T) {
	salt := make([]byte, 16)

	_, err := crypto.DeriveKey("p", salt, crypto.MinIterationsCurrent-1, crypto.MinIterationsCurrent)
	assert.Error(t, err)

	_, err = crypto.DeriveKey("p", make([]byte, 8), crypto.MinIterationsCurrent, crypto.MinIterationsCurrent)
	assert.Error(t, err)

	_, err = crypto.DeriveKey("p", salt, crypto.MinIterationsLegacy, crypto.MinIterationsLegacy)
	assert.NoError(t, err)
}
