package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "0x71C7656EC7ab88b098defB751B7401B5f6d8976e"
const testCreator = "0x8ba1f109551bD432803012645Ac136ddd64DBA7"

func TestInsertAndGetIdentity(t *testing.T) {
	s := newTestStore(t)

	err := s.InsertIdentity(Identity{
		WalletAddress:  testWallet,
		CreatorAddress: testCreator,
		GenesisPrompt:  "survive",
	})
	require.NoError(t, err)

	got, err := s.GetIdentity()
	require.NoError(t, err)
	assert.Equal(t, testWallet, got.WalletAddress)
	assert.Equal(t, testCreator, got.CreatorAddress)
	assert.Equal(t, "survive", got.GenesisPrompt)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestInsertIdentityTwiceFails(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.InsertIdentity(Identity{WalletAddress: testWallet, CreatorAddress: testCreator}))

	err := s.InsertIdentity(Identity{WalletAddress: testWallet, CreatorAddress: testCreator})
	assert.ErrorIs(t, err, ErrIdentityExists)
}

func TestInsertIdentityRejectsZeroAddress(t *testing.T) {
	s := newTestStore(t)

	err := s.InsertIdentity(Identity{
		WalletAddress:  "0x0000000000000000000000000000000000000000",
		CreatorAddress: testCreator,
	})
	assert.Error(t, err)
}

func TestInsertIdentityRejectsMalformedAddress(t *testing.T) {
	s := newTestStore(t)

	err := s.InsertIdentity(Identity{WalletAddress: "not-an-address", CreatorAddress: testCreator})
	assert.Error(t, err)
}

func TestGetIdentityBeforeInsert(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetIdentity()
	assert.ErrorIs(t, err, ErrNoIdentity)
}
