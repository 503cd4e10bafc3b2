package provisioning_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-provisioning"
)

func TestGeneratePassword(t *testing.T) {
	policy := provisioning.DefaultPasswordPolicy()
	require.NoError(t, policy.Validate())

	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		password, err := provisioning.GeneratePassword(policy)
		require.NoError(t, err)
		assert.Len(t, password, policy.Length)
		assert.NoError(t, provisioning.CheckPassword(policy, password))
		seen[password] = struct{}{}
	}
	assert.Len(t, seen, 50)
}

func TestGeneratePasswordZeroPolicyUsesDefault(t *testing.T) {
	password, err := provisioning.GeneratePassword(provisioning.PasswordPolicy{})
	require.NoError(t, err)
	assert.NoError(t, provisioning.CheckPassword(provisioning.DefaultPasswordPolicy(), password))
}

func TestGeneratePasswordTooShortForClasses(t *testing.T) {
	_, err := provisioning.GeneratePassword(provisioning.PasswordPolicy{
		Length:                 3,
		RequireDigit:           true,
		RequireLowercase:       true,
		RequireUppercase:       true,
		RequireNonAlphanumeric: true,
	})
	assert.Error(t, err)
}

func TestCheckPassword(t *testing.T) {
	policy := provisioning.DefaultPasswordPolicy()

	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{name: "valid", password: "Str0ng!Passw0rd", valid: true},
		{name: "too short", password: "S0!a", valid: false},
		{name: "no digit", password: "Strong!Password", valid: false},
		{name: "no upper", password: "str0ng!passw0rd", valid: false},
		{name: "no lower", password: "STR0NG!PASSW0RD", valid: false},
		{name: "no symbol", password: "Str0ngPassw0rdX", valid: false},
		{name: "few unique", password: "aA1!aA1!aA1!", valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := provisioning.CheckPassword(policy, tt.password)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	strict := policy
	strict.RequiredUniqueChars = 6
	assert.Error(t, provisioning.CheckPassword(strict, "aA1!aA1!aA1!"))
}
