package provisioning

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UpdateAdminMessage is the request to change an admin account. ScopeID and
// IsDeputy are accepted for wire compatibility and never applied.
type UpdateAdminMessage struct {
	ID          uuid.UUID   `json:"id" doc:"Admin user id."`
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	MiddleName  string      `json:"middleName,omitempty"`
	Email       string      `json:"email"`
	PhoneNumber string      `json:"phoneNumber,omitempty"`
	ScopeID     uuid.UUID   `json:"scopeId,omitempty"`
	IsDeputy    bool        `json:"isDeputy,omitempty"`
	WorkshopIDs []uuid.UUID `json:"workshopIds,omitempty"`
}

func (m UpdateAdminMessage) Type() string { return "admin.update" }

// Validate will run validation rules
func (m UpdateAdminMessage) Validate() error {
	m.Email = strings.TrimSpace(m.Email)
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.By(requiredUUID)),
		validation.Field(&m.FirstName, validation.Required, validation.Length(1, 60)),
		validation.Field(&m.LastName, validation.Required, validation.Length(1, 60)),
		validation.Field(&m.MiddleName, validation.Length(0, 60)),
		validation.Field(&m.Email, validation.Required, is.Email, validation.Length(0, 256)),
	)
}

func (o *Orchestrator) update(ctx context.Context, role AdminRole, req UpdateAdminMessage, actorID string) Response {
	op := o.newOperation(role, OperationUpdate, actorID, req.ID.String())

	if !role.IsValid() {
		return o.reject(op, errUnknownRole(role))
	}

	if err := req.Validate(); err != nil {
		return o.reject(op, newValidationError(err))
	}

	phone, err := NormalizePhone(req.PhoneNumber, o.config.PhoneRegion)
	if err != nil {
		return o.reject(op, err)
	}

	email := normalizeEmail(req.Email)

	op.precheck = func(ctx context.Context) error {
		account, err := o.loadAccount(ctx, o.repo.DB(), role, req.ID)
		if err != nil {
			return err
		}
		if role.RequiresWorkshops(account.IsDeputy) && len(uniqueIDs(req.WorkshopIDs)) == 0 {
			return ErrWorkshopsRequired(role)
		}
		return o.ensureEmailFree(ctx, o.repo.DB(), email, req.ID)
	}

	return o.run(ctx, op, func(ctx context.Context, tx bun.Tx, st *attemptState) (any, error) {
		account, err := o.loadAccount(ctx, tx, role, req.ID)
		if err != nil {
			return nil, err
		}

		if err := o.ensureEmailFree(ctx, tx, email, account.UserID); err != nil {
			return nil, err
		}

		user, err := o.loadIdentity(ctx, tx, account.UserID)
		if err != nil {
			return nil, err
		}

		tracked := o.tracked(role)
		before := snapshot(user, tracked)

		user.FirstName = strings.TrimSpace(req.FirstName)
		user.LastName = strings.TrimSpace(req.LastName)
		user.MiddleName = strings.TrimSpace(req.MiddleName)
		user.Email = email
		user.Phone = phone

		var added, removed []uuid.UUID
		if role.ManagesWorkshops() && !account.IsDeputy {
			workshops, err := o.workshops.ResolveTx(ctx, tx, &account.ScopeID, req.WorkshopIDs)
			if err != nil {
				return nil, storeError(err, "failed to resolve workshops")
			}
			if err := checkWorkshopScope(role, account.ScopeID, req.WorkshopIDs, workshops); err != nil {
				return nil, err
			}
			if len(workshops) == 0 {
				return nil, ErrWorkshopsRequired(role)
			}

			next := make([]uuid.UUID, 0, len(workshops))
			for _, w := range workshops {
				next = append(next, w.ID)
			}

			added, removed = diffIDs(account.WorkshopIDs(), next)
			if err := o.repo.Admins().SyncWorkshopsTx(ctx, tx, account.UserID, added, removed); err != nil {
				return nil, storeError(err, "failed to update workshops")
			}
			account.ManagedWorkshops = workshops
		}

		if err := o.identity.UpdateTx(ctx, tx, user); err != nil {
			return nil, identityError(err, "failed to update identity", goerrors.CodeBadRequest)
		}

		if err := o.identity.UpdateSecurityStampTx(ctx, tx, user); err != nil {
			return nil, identityError(err, "failed to update security stamp", goerrors.CodeInternal)
		}

		if err := o.repo.Admins().TouchTx(ctx, tx, account.UserID); err != nil {
			return nil, storeError(err, "failed to update admin")
		}

		changes := diffSnapshots(before, snapshot(user, tracked))

		if o.audits(role, OperationUpdate) {
			cs := newChangeSet(account, actorID, op.id, OperationUpdate)
			for _, id := range added {
				cs.addWorkshop(id, "", id.String())
			}
			for _, id := range removed {
				cs.addWorkshop(id, id.String(), "")
			}
			cs.addChanges(changes)
			st.record(cs)
		}

		st.emit(o.event(op, account, user.IsBlocked, map[string]any{
			"changed_properties": len(changes),
			"workshops_added":    len(added),
			"workshops_removed":  len(removed),
		}))

		return NewAdminView(account, user), nil
	})
}
