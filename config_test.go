package provisioning_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-provisioning"
)

func TestDefaultConfig(t *testing.T) {
	cfg := provisioning.DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, provisioning.DeliveryOutbox, cfg.Delivery)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "UA", cfg.PhoneRegion)

	for _, role := range []provisioning.AdminRole{provisioning.RoleProviderAdmin, provisioning.RoleEmployee} {
		settings := cfg.RoleSettings(role)
		for _, op := range provisioning.OperationKinds() {
			assert.True(t, settings.Audits(op), "%s %s", role, op)
		}
	}

	for _, role := range []provisioning.AdminRole{provisioning.RoleMinistryAdmin, provisioning.RoleRegionAdmin, provisioning.RoleAreaAdmin} {
		settings := cfg.RoleSettings(role)
		assert.False(t, settings.Audits(provisioning.OperationDelete), role)
		assert.True(t, settings.Audits(provisioning.OperationCreate), role)
		assert.Len(t, settings.TrackedProperties, 5)
	}
}

func TestDefaultConfigRolesAreIndependent(t *testing.T) {
	cfg := provisioning.DefaultConfig()
	cfg.Roles[provisioning.RoleEmployee].TrackedProperties[0] = "Changed"

	assert.Equal(t, provisioning.PropertyFirstName, cfg.RoleSettings(provisioning.RoleProviderAdmin).TrackedProperties[0])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*provisioning.Config)
	}{
		{
			name: "unknown role",
			mutate: func(c *provisioning.Config) {
				c.Roles["root"] = provisioning.RoleSettings{}
			},
		},
		{
			name: "missing role",
			mutate: func(c *provisioning.Config) {
				delete(c.Roles, provisioning.RoleAreaAdmin)
			},
		},
		{
			name: "no roles",
			mutate: func(c *provisioning.Config) {
				c.Roles = map[provisioning.AdminRole]provisioning.RoleSettings{}
			},
		},
		{
			name: "unknown property",
			mutate: func(c *provisioning.Config) {
				c.Roles[provisioning.RoleEmployee] = provisioning.RoleSettings{TrackedProperties: []string{"Salary"}}
			},
		},
		{
			name: "unknown operation",
			mutate: func(c *provisioning.Config) {
				c.Roles[provisioning.RoleEmployee] = provisioning.RoleSettings{
					AuditedOperations: []provisioning.OperationKind{"Archive"},
				}
			},
		},
		{
			name: "unknown phone region",
			mutate: func(c *provisioning.Config) {
				c.PhoneRegion = "XX"
			},
		},
		{
			name: "bad delivery",
			mutate: func(c *provisioning.Config) {
				c.Delivery = "fax"
			},
		},
		{
			name: "no retry attempts",
			mutate: func(c *provisioning.Config) {
				c.Retry.MaxAttempts = 0
			},
		},
		{
			name: "bad login url",
			mutate: func(c *provisioning.Config) {
				c.Invitation.LoginURL = "not a url"
			},
		},
		{
			name: "short password",
			mutate: func(c *provisioning.Config) {
				c.Password.Length = 4
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := provisioning.DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRoleSettingsMissingRole(t *testing.T) {
	var cfg provisioning.Config
	settings := cfg.RoleSettings(provisioning.RoleEmployee)
	assert.Empty(t, settings.TrackedProperties)
	assert.False(t, settings.Audits(provisioning.OperationCreate))
}

func TestConfigValidateMissingRoleMessage(t *testing.T) {
	cfg := provisioning.DefaultConfig()
	delete(cfg.Roles, provisioning.RoleEmployee)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing settings for admin role")

	_, err = provisioning.NewOrchestrator(nil, nil, nil, provisioning.WithConfig(cfg))
	assert.Error(t, err)
}
