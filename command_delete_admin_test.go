package provisioning_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-provisioning"
)

func TestDeleteEmployee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	msg := env.createMessage("employee@example.com", env.providerID, env.workshops[0])
	msg.PhoneNumber = "+380501234567"
	view := env.mustCreate(provisioning.RoleEmployee, msg)

	resp := env.orch.For(provisioning.RoleEmployee).Delete(ctx, view.ID, "actor-9")
	require.True(t, resp.IsSuccess, resp.Message)

	_, err := env.repo.Admins().GetByID(ctx, provisioning.RoleEmployee, view.ID)
	assert.True(t, provisioning.IsNotFound(err))

	_, err = env.identity.FindByID(ctx, view.ID)
	assert.True(t, provisioning.IsNotFound(err))

	rows := env.changes(provisioning.ChangeLogFilter{
		AdminUserID: &view.ID,
		Operation:   provisioning.OperationDelete,
	})
	require.Len(t, rows, 5)

	byProp := propertyRows(rows)
	assert.Equal(t, "Olena", byProp[provisioning.PropertyFirstName].OldValue)
	assert.Empty(t, byProp[provisioning.PropertyFirstName].NewValue)
	assert.Equal(t, "+380501234567", byProp[provisioning.PropertyPhoneNumber].OldValue)
	assert.Equal(t, "actor-9", byProp[provisioning.PropertyEmail].ActorID)

	evt := env.lastEvent()
	assert.Equal(t, provisioning.ActivityEventAdminDeleted, evt.EventType)
	assert.Equal(t, "employee@example.com", evt.Metadata["email"])

	resp = env.orch.For(provisioning.RoleEmployee).Delete(ctx, view.ID, "actor-9")
	assert.False(t, resp.IsSuccess)
	assert.Equal(t, http.StatusNotFound, resp.HTTPStatusCode)
}

func TestDeleteInstitutionAdminIsNotLogged(t *testing.T) {
	env := newTestEnv(t)

	view := env.mustCreate(provisioning.RoleRegionAdmin, env.createMessage("region@example.com", uuid.New()))

	resp := env.orch.For(provisioning.RoleRegionAdmin).Delete(context.Background(), view.ID, "actor-1")
	require.True(t, resp.IsSuccess, resp.Message)

	assert.Empty(t, env.changes(provisioning.ChangeLogFilter{
		AdminUserID: &view.ID,
		Operation:   provisioning.OperationDelete,
	}))
	assert.Zero(t, env.userCount())
}

func TestDeleteFreesEmail(t *testing.T) {
	env := newTestEnv(t)

	view := env.mustCreate(provisioning.RoleAreaAdmin, env.createMessage("area@example.com", uuid.New()))

	resp := env.orch.For(provisioning.RoleAreaAdmin).Delete(context.Background(), view.ID, "actor-1")
	require.True(t, resp.IsSuccess, resp.Message)

	again := env.mustCreate(provisioning.RoleAreaAdmin, env.createMessage("area@example.com", uuid.New()))
	assert.NotEqual(t, view.ID, again.ID)
}

func TestDeleteNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.orch.For(provisioning.RoleProviderAdmin).Delete(context.Background(), uuid.New(), "actor-1")
	assert.False(t, resp.IsSuccess)
	assert.Equal(t, http.StatusNotFound, resp.HTTPStatusCode)
	assert.Equal(t, "ProviderAdmin not found", resp.Message)
}
