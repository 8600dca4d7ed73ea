package timelock

import (
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echolock/echolock/crypto"
)

func TestBuildScriptContainsLocktimeAndPubKey(t *testing.T) {
	sk, err := crypto.GenerateSecretKey(rand.Reader)
	require.NoError(t, err)

	script, err := BuildScript(sk.PubKey(), 700000)
	require.NoError(t, err)
	assert.NotEmpty(t, script)

	pubBytes := sk.PubKey().SerializeCompressed()
	assert.Contains(t, string(script), string(pubBytes))
}

func TestDeriveAddressIsDeterministicForSameScript(t *testing.T) {
	sk, err := crypto.GenerateSecretKey(rand.Reader)
	require.NoError(t, err)
	script, err := BuildScript(sk.PubKey(), 700000)
	require.NoError(t, err)

	a1, err := DeriveAddress(script, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	a2, err := DeriveAddress(script, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	assert.Equal(t, a1.EncodeAddress(), a2.EncodeAddress())
}

func TestDeriveAddressDiffersAcrossNetworks(t *testing.T) {
	sk, err := crypto.GenerateSecretKey(rand.Reader)
	require.NoError(t, err)
	script, err := BuildScript(sk.PubKey(), 700000)
	require.NoError(t, err)

	mainnet, err := DeriveAddress(script, &chaincfg.MainNetParams)
	require.NoError(t, err)
	testnet, err := DeriveAddress(script, &chaincfg.TestNet3Params)
	require.NoError(t, err)

	assert.NotEqual(t, mainnet.EncodeAddress(), testnet.EncodeAddress())
}

func TestLocktimeForRoundsUpToWholeBlocks(t *testing.T) {
	// 24h check-in = 86400s / 600s-per-block = 144 blocks exactly.
	assert.Equal(t, uint32(800144), LocktimeFor(800000, 86400))
	// Any remainder rounds up to the next block.
	assert.Equal(t, uint32(800001), LocktimeFor(800000, 1))
}
