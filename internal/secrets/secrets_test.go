package secrets

import (
	"testing"

	apperr "jobagg-engine/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestGetAdzunaKey_Precedence(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvAdzunaKey, "")

	_, err := GetAdzunaKey("")
	assert.True(t, apperr.Is(err, apperr.ErrTypeNotFound))

	got, err := GetAdzunaKey("from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-config", got)

	require.NoError(t, SetAdzunaKey("  from-keyring "))
	got, err = GetAdzunaKey("from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", got)

	t.Setenv(EnvAdzunaKey, "from-env")
	got, err = AdzunaKey("from-config")()
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)
}

func TestSetAdzunaKey_RejectsEmpty(t *testing.T) {
	keyring.MockInit()
	err := SetAdzunaKey("   ")
	assert.True(t, apperr.Is(err, apperr.ErrTypeInvalidInput))
}

func TestDeleteAdzunaKey_MissingIsNotAnError(t *testing.T) {
	keyring.MockInit()
	assert.NoError(t, DeleteAdzunaKey())

	require.NoError(t, SetAdzunaKey("k"))
	require.NoError(t, DeleteAdzunaKey())
	_, err := keyring.Get(KeyringService, AdzunaAccount)
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}
