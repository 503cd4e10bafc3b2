package provisioning

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// reinvite replaces the password of an existing admin and sends a fresh
// invitation carrying it.
func (o *Orchestrator) reinvite(ctx context.Context, role AdminRole, id uuid.UUID, actorID string, urls URLBuilder) Response {
	op := o.newOperation(role, OperationReinvite, actorID, id.String())

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

		password, err := GeneratePassword(o.config.Password)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate password").
				WithTextCode(TextCodeUnexpected).
				WithCode(goerrors.CodeInternal)
		}

		if err := o.identity.RemovePasswordTx(ctx, tx, user); err != nil {
			return nil, identityError(err, "failed to remove password", goerrors.CodeInternal)
		}

		if err := o.identity.AddPasswordTx(ctx, tx, user, password); err != nil {
			return nil, identityError(err, "failed to set password", goerrors.CodeInternal)
		}

		if err := o.stageInvitation(ctx, tx, op, st, user, password, urls); err != nil {
			return nil, err
		}

		if o.audits(role, OperationReinvite) {
			cs := newChangeSet(account, actorID, op.id, OperationReinvite)
			cs.add("", "", "")
			st.record(cs)
		}

		st.emit(o.event(op, account, user.IsBlocked, map[string]any{
			"email": user.Email,
		}))

		return NewAdminView(account, user), nil
	})
}
