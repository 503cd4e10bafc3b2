package provisioning_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-provisioning"
)

func TestOutboxWorkerRejectsBadSchedule(t *testing.T) {
	env := newTestEnv(t)

	worker := provisioning.NewOutboxWorker(env.orch.Deliverer(), "every now and then")
	assert.Equal(t, "OutboxCronWorker", worker.Name())
	assert.Error(t, worker.Start())
}

func TestOutboxWorkerStartStop(t *testing.T) {
	env := newTestEnv(t)

	worker := provisioning.NewOutboxWorker(env.orch.Deliverer(), "").WithTimeout(time.Second)
	require.NoError(t, worker.Start())
	worker.Stop()
}

func TestOutboxWorkerRunOnceRetriesFailedSends(t *testing.T) {
	env := newTestEnv(t, func(env *testEnv) {
		env.mail.fail = func(call int) error {
			if call <= 2 {
				return errors.New("smtp: 451 temporary failure")
			}
			return nil
		}
	})
	ctx := context.Background()

	env.mustCreate(provisioning.RoleAreaAdmin, env.createMessage("area@example.com", uuid.New()))
	env.mustCreate(provisioning.RoleAreaAdmin, env.createMessage("other@example.com", uuid.New()))
	assert.Empty(t, env.mail.Sent())

	worker := provisioning.NewOutboxWorker(env.orch.Deliverer(), "@every 1h")

	sent, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Len(t, env.mail.Sent(), 2)

	sent, err = worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
}
