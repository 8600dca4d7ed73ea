package timelock

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echolock/echolock/internal/common"
)

type fakeChain struct {
	height uint64
	utxos  map[string][]Utxo
	err    error
}

func (f *fakeChain) GetTipHeight(ctx context.Context) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.height, nil
}

func (f *fakeChain) GetAddressUTXOs(ctx context.Context, address string) ([]Utxo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.utxos[address], nil
}

func TestBuildProducesAddressAndWrappedKey(t *testing.T) {
	chain := &fakeChain{height: 800000}
	c, err := Build(context.Background(), chain, rand.Reader, BuildParams{
		CheckInSeconds: 86400,
		Password:       "correct horse battery staple",
		Params:         &chaincfg.RegressionNetParams,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, c.Address)
	assert.NotEmpty(t, c.Script)
	assert.Equal(t, uint32(800144), c.LocktimeHeight)
	assert.NotNil(t, c.WrappedSigningKey)
	assert.Len(t, c.PubKeyCompressed, 33)
}

func TestBuildRejectsEmptyPassword(t *testing.T) {
	chain := &fakeChain{height: 800000}
	_, err := Build(context.Background(), chain, rand.Reader, BuildParams{
		CheckInSeconds: 86400,
		Password:       "",
	})
	require.Error(t, err)
	kind, ok := common.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, common.KindWeakPassword, kind)
}

func TestBuildPropagatesChainUnreachable(t *testing.T) {
	chain := &fakeChain{err: common.NewError(common.KindChainUnreachable, "boom", nil)}
	_, err := Build(context.Background(), chain, rand.Reader, BuildParams{
		CheckInSeconds: 86400,
		Password:       "correct horse battery staple",
	})
	require.Error(t, err)
	kind, ok := common.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, common.KindChainUnreachable, kind)
}

func TestGetStatusReportsMaturity(t *testing.T) {
	chain := &fakeChain{height: 800000}
	c, err := Build(context.Background(), chain, rand.Reader, BuildParams{
		CheckInSeconds: 600,
		Password:       "correct horse battery staple",
	})
	require.NoError(t, err)

	chain.height = 800000
	notYet, err := GetStatus(context.Background(), chain, c)
	require.NoError(t, err)
	assert.False(t, notYet.IsValid)
	assert.Equal(t, int64(1), notYet.BlocksRemaining)

	chain.height = 800001
	mature, err := GetStatus(context.Background(), chain, c)
	require.NoError(t, err)
	assert.True(t, mature.IsValid)
	assert.Equal(t, int64(0), mature.BlocksRemaining)
}
