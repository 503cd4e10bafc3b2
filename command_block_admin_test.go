package provisioning_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-provisioning"
)

func TestBlockAndUnblock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view := env.mustCreate(provisioning.RoleMinistryAdmin, env.createMessage("ministry@example.com", uuid.New()))
	stamp := env.user(view.ID).SecurityStamp

	resp := env.orch.For(provisioning.RoleMinistryAdmin).Block(ctx, view.ID, true, "actor-1")
	require.True(t, resp.IsSuccess, resp.Message)

	blocked := resp.Result.(*provisioning.AdminView)
	assert.True(t, blocked.IsBlocked)
	assert.Equal(t, provisioning.BlockingManual, blocked.BlockingType)

	user := env.user(view.ID)
	assert.True(t, user.IsBlocked)
	assert.NotEqual(t, stamp, user.SecurityStamp)
	assert.Equal(t, provisioning.ActivityEventAdminBlocked, env.lastEvent().EventType)

	resp = env.orch.For(provisioning.RoleMinistryAdmin).Block(ctx, view.ID, false, "actor-1")
	require.True(t, resp.IsSuccess, resp.Message)

	account, err := env.repo.Admins().GetByID(ctx, provisioning.RoleMinistryAdmin, view.ID)
	require.NoError(t, err)
	assert.Equal(t, provisioning.BlockingNone, account.BlockingType)
	assert.False(t, env.user(view.ID).IsBlocked)
	assert.Equal(t, provisioning.ActivityEventAdminUnblocked, env.lastEvent().EventType)

	rows := env.changes(provisioning.ChangeLogFilter{
		AdminUserID: &view.ID,
		Operation:   provisioning.OperationBlock,
	})
	require.Len(t, rows, 2)
	assert.Equal(t, provisioning.PropertyIsBlocked, rows[0].PropertyName)
	assert.Equal(t, "0", rows[0].OldValue)
	assert.Equal(t, "1", rows[0].NewValue)
	assert.Equal(t, "1", rows[1].OldValue)
	assert.Equal(t, "0", rows[1].NewValue)
}

func TestBlockNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.orch.For(provisioning.RoleAreaAdmin).Block(context.Background(), uuid.New(), true, "actor-1")
	assert.False(t, resp.IsSuccess)
	assert.Equal(t, http.StatusNotFound, resp.HTTPStatusCode)
	assert.Equal(t, "AreaAdmin not found", resp.Message)
}

func TestBlockByProvider(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.mustCreate(provisioning.RoleProviderAdmin,
		env.createMessage("admin@example.com", env.providerID, env.workshops[0]))
	employee := env.mustCreate(provisioning.RoleEmployee,
		env.createMessage("employee@example.com", env.providerID, env.workshops[1]))
	manual := env.mustCreate(provisioning.RoleEmployee,
		env.createMessage("manual@example.com", env.providerID, env.workshops[2]))
	other := env.mustCreate(provisioning.RoleEmployee,
		env.createMessage("other@example.com", env.otherID, env.foreign))

	resp := env.orch.For(provisioning.RoleEmployee).Block(ctx, manual.ID, true, "actor-1")
	require.True(t, resp.IsSuccess, resp.Message)

	resp = env.orch.BlockByProvider(ctx, env.providerID, true, "actor-2")
	require.True(t, resp.IsSuccess, resp.Message)
	assert.Equal(t, http.StatusOK, resp.HTTPStatusCode)
	assert.Empty(t, resp.Message)

	results, ok := resp.Result.([]provisioning.BulkBlockResult)
	require.True(t, ok)
	require.Len(t, results, 2)
	assert.ElementsMatch(t, []uuid.UUID{admin.ID, employee.ID}, []uuid.UUID{results[0].ID, results[1].ID})

	for _, id := range []uuid.UUID{admin.ID, employee.ID} {
		account, err := env.repo.Admins().GetByID(ctx, "", id)
		require.NoError(t, err)
		assert.Equal(t, provisioning.BlockingAutomatic, account.BlockingType)
		assert.True(t, env.user(id).IsBlocked)
	}
	assert.False(t, env.user(other.ID).IsBlocked)

	resp = env.orch.BlockByProvider(ctx, env.providerID, false, "actor-2")
	require.True(t, resp.IsSuccess, resp.Message)

	assert.False(t, env.user(admin.ID).IsBlocked)
	assert.False(t, env.user(employee.ID).IsBlocked)

	account, err := env.repo.Admins().GetByID(ctx, provisioning.RoleEmployee, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, provisioning.BlockingManual, account.BlockingType, "manual blocks survive provider unblock")
	assert.True(t, env.user(manual.ID).IsBlocked)
}

func TestBlockByProviderCollectsFailures(t *testing.T) {
	var failing *faultyIdentity
	var victim uuid.UUID

	env := newTestEnv(t, func(env *testEnv) {
		failing = &faultyIdentity{IdentityStore: env.identity}
		failing.updateErr = func(user *provisioning.User) error {
			if user.ID == victim && user.IsBlocked {
				return errors.New("identity backend rejected update")
			}
			return nil
		}
		env.identity = failing
	})
	ctx := context.Background()

	first := env.mustCreate(provisioning.RoleProviderAdmin,
		env.createMessage("first@example.com", env.providerID, env.workshops[0]))
	second := env.mustCreate(provisioning.RoleEmployee,
		env.createMessage("second@example.com", env.providerID, env.workshops[1]))
	victim = second.ID

	resp := env.orch.BlockByProvider(ctx, env.providerID, true, "actor-1")
	assert.False(t, resp.IsSuccess)
	assert.Equal(t, http.StatusOK, resp.HTTPStatusCode)
	assert.Equal(t, second.ID.String()+" InternalServerError ", resp.Message)

	results := resp.Result.([]provisioning.BulkBlockResult)
	require.Len(t, results, 2)
	for _, r := range results {
		if r.ID == second.ID {
			assert.False(t, r.IsSuccess)
			assert.Equal(t, http.StatusInternalServerError, r.HTTPStatusCode)
			continue
		}
		assert.True(t, r.IsSuccess)
	}

	assert.True(t, env.user(first.ID).IsBlocked)
	assert.False(t, env.user(second.ID).IsBlocked)
}

func TestBlockByProviderRequiresProvider(t *testing.T) {
	env := newTestEnv(t)

	resp := env.orch.BlockByProvider(context.Background(), uuid.Nil, true, "actor-1")
	assert.False(t, resp.IsSuccess)
	assert.Equal(t, http.StatusBadRequest, resp.HTTPStatusCode)
}

func TestBlockByProviderWithoutAdmins(t *testing.T) {
	env := newTestEnv(t)

	resp := env.orch.BlockByProvider(context.Background(), uuid.New(), true, "actor-1")
	require.True(t, resp.IsSuccess)
	assert.Empty(t, resp.Result)
}

func TestBlockTwiceLogsEachCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	view := env.mustCreate(provisioning.RoleEmployee, env.createMessage("employee@example.com", env.providerID, env.workshops[0]))

	for i := 0; i < 2; i++ {
		resp := env.orch.For(provisioning.RoleEmployee).Block(ctx, view.ID, true, "actor-2")
		require.True(t, resp.IsSuccess, resp.Message)
	}

	rows := env.changes(provisioning.ChangeLogFilter{
		AdminUserID: &view.ID,
		Operation:   provisioning.OperationBlock,
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "0", rows[0].OldValue)
	assert.Equal(t, "1", rows[0].NewValue)
	assert.Equal(t, "1", rows[1].OldValue)
	assert.Equal(t, "1", rows[1].NewValue)
}
