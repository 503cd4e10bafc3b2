package provisioning

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func (o *Orchestrator) delete(ctx context.Context, role AdminRole, id uuid.UUID, actorID string) Response {
	op := o.newOperation(role, OperationDelete, actorID, id.String())

	if !role.IsValid() {
		return o.reject(op, errUnknownRole(role))
	}

	op.precheck = func(ctx context.Context) error {
		_, err := o.loadAccount(ctx, o.repo.DB(), role, id)
		return err
	}

	return o.run(ctx, op, func(ctx context.Context, tx bun.Tx, st *attemptState) (any, error) {
		account, err := o.loadAccount(ctx, tx, role, id)
		if err != nil {
			return nil, err
		}

		user, err := o.loadIdentity(ctx, tx, account.UserID)
		if err != nil {
			return nil, err
		}

		before := snapshot(user, o.tracked(role))

		if err := o.repo.Admins().DeleteTx(ctx, tx, account); err != nil {
			return nil, storeError(err, "failed to delete admin")
		}

		if err := o.identity.DeleteTx(ctx, tx, user); err != nil {
			return nil, identityError(err, "failed to delete identity", goerrors.CodeInternal)
		}

		if o.audits(role, OperationDelete) {
			cs := newChangeSet(account, actorID, op.id, OperationDelete)
			for _, p := range before {
				cs.add(p.Name, p.Value, "")
			}
			st.record(cs)
		}

		st.emit(o.event(op, account, user.IsBlocked, map[string]any{
			"email": user.Email,
		}))

		return NewAdminView(account, user), nil
	})
}
