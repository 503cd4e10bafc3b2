package provisioning_test

import (
	"testing"

	"github.com/goliatone/go-provisioning"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
			wantErr:  false,
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := provisioning.HashPasswordWithCost(tt.password, bcrypt.MinCost)

			if tt.wantErr {
				assert.ErrorIs(t, err, provisioning.ErrNoEmptyString)
				return
			}

			assert.NoError(t, err)
			assert.NotEmpty(t, hash)

			err = provisioning.ComparePasswordAndHash(tt.password, hash)
			assert.NoError(t, err)
		})
	}
}

func TestComparePasswordAndHashMismatch(t *testing.T) {
	hash, err := provisioning.HashPasswordWithCost("testPassword123!", bcrypt.MinCost)
	assert.NoError(t, err)

	err = provisioning.ComparePasswordAndHash("wrongPassword", hash)
	assert.ErrorIs(t, err, provisioning.ErrMismatchedHashAndPassword)
}
