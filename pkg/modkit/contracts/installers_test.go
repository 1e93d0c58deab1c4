package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallerStoreHandOff(t *testing.T) {
	store := NewInstallerStore()
	assert.True(t, store.IsEmpty())

	installers := []GrpcInstaller{
		{ServiceName: "a.v1.A"},
		{ServiceName: "b.v1.B"},
	}
	require.NoError(t, store.Set(installers))
	assert.False(t, store.IsEmpty())

	got, err := store.Take()
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.True(t, store.IsEmpty())
}

func TestInstallerStoreSetTwiceFails(t *testing.T) {
	store := NewInstallerStore()
	require.NoError(t, store.Set([]GrpcInstaller{{ServiceName: "a"}}))

	err := store.Set([]GrpcInstaller{{ServiceName: "b"}})
	assert.ErrorIs(t, err, ErrInstallersAlreadySet)
}

func TestInstallerStoreTakeTwiceFails(t *testing.T) {
	store := NewInstallerStore()
	require.NoError(t, store.Set([]GrpcInstaller{{ServiceName: "a"}}))

	_, err := store.Take()
	require.NoError(t, err)

	_, err = store.Take()
	assert.ErrorIs(t, err, ErrInstallersConsumed)
}

func TestInstallerStoreTakeEmpty(t *testing.T) {
	store := NewInstallerStore()

	got, err := store.Take()
	require.NoError(t, err)
	assert.Empty(t, got)
}
