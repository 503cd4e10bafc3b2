package jwtware

import (
	"errors"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyfuncOptions(t *testing.T) {
	given := map[string]keyfunc.GivenKey{
		"local": keyfunc.NewGivenCustom([]byte("secret"), keyfunc.GivenKeyOptions{Algorithm: "HS256"}),
	}

	opts := keyfuncOptions(given)
	require.NotNil(t, opts.RefreshErrorHandler)
	require.NotPanics(t, func() {
		opts.RefreshErrorHandler(errors.New("refresh failed"))
	})

	assert.Len(t, opts.GivenKeys, 1)
	assert.Equal(t, time.Hour, opts.RefreshInterval)
	assert.Equal(t, 5*time.Minute, opts.RefreshRateLimit)
	assert.True(t, opts.RefreshUnknownKID)
}

func TestRolesFromClaim(t *testing.T) {
	assert.Equal(t, []string{"techadmin"}, rolesFromClaim("techadmin"))
	assert.Equal(t, []string{"a", "b"}, rolesFromClaim([]any{"a", 1, "b", ""}))
	assert.Nil(t, rolesFromClaim(""))
	assert.Nil(t, rolesFromClaim(42))
}
