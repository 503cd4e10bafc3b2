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

// CreateAdminMessage is the request to provision a new admin account
type CreateAdminMessage struct {
	FirstName   string      `json:"firstName" example:"Olena" doc:"Admin first name."`
	LastName    string      `json:"lastName" example:"Kovalenko" doc:"Admin last name."`
	MiddleName  string      `json:"middleName,omitempty" example:"Petrivna" doc:"Admin middle name."`
	Email       string      `json:"email" example:"olena@example.com" doc:"Login and invitation address."`
	PhoneNumber string      `json:"phoneNumber,omitempty" example:"+380501234567" doc:"Contact phone."`
	ScopeID     uuid.UUID   `json:"scopeId" doc:"Institution, region, area or provider id."`
	IsDeputy    bool        `json:"isDeputy,omitempty" doc:"Deputy provider admins manage every workshop of the provider."`
	WorkshopIDs []uuid.UUID `json:"workshopIds,omitempty" doc:"Workshops managed by the admin."`
}

func (m CreateAdminMessage) Type() string { return "admin.create" }

// Validate will run validation rules
func (m CreateAdminMessage) Validate() error {
	m.Email = strings.TrimSpace(m.Email)
	return validation.ValidateStruct(&m,
		validation.Field(&m.FirstName, validation.Required, validation.Length(1, 60)),
		validation.Field(&m.LastName, validation.Required, validation.Length(1, 60)),
		validation.Field(&m.MiddleName, validation.Length(0, 60)),
		validation.Field(&m.Email, validation.Required, is.Email, validation.Length(0, 256)),
		validation.Field(&m.ScopeID, validation.By(requiredUUID)),
	)
}

func requiredUUID(value any) error {
	id, ok := value.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return validation.NewError("validation_required", "cannot be blank")
	}
	return nil
}

func errUnknownRole(role AdminRole) error {
	return goerrors.New("unknown admin role", goerrors.CategoryValidation).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"role": role.String(),
		})
}

func (o *Orchestrator) create(ctx context.Context, role AdminRole, req CreateAdminMessage, actorID string, urls URLBuilder) Response {
	op := o.newOperation(role, OperationCreate, actorID, "")

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
	isDeputy := req.IsDeputy && role.SupportsDeputies()
	requiresWorkshops := role.RequiresWorkshops(isDeputy)

	if requiresWorkshops && len(uniqueIDs(req.WorkshopIDs)) == 0 {
		return o.reject(op, ErrWorkshopsRequired(role))
	}

	op.lockKey = email
	op.precheck = func(ctx context.Context) error {
		return o.ensureEmailFree(ctx, o.repo.DB(), email, uuid.Nil)
	}

	return o.run(ctx, op, func(ctx context.Context, tx bun.Tx, st *attemptState) (any, error) {
		if err := o.ensureEmailFree(ctx, tx, email, uuid.Nil); err != nil {
			return nil, err
		}

		password, err := GeneratePassword(o.config.Password)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate password").
				WithTextCode(TextCodeUnexpected).
				WithCode(goerrors.CodeInternal)
		}

		user := &User{
			Role:         role.String(),
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
			MiddleName:   strings.TrimSpace(req.MiddleName),
			Email:        email,
			Phone:        phone,
			IsDerived:    true,
			IsRegistered: true,
			IsBlocked:    false,
		}

		user, err = o.identity.CreateWithPasswordTx(ctx, tx, user, password)
		if err != nil {
			return nil, identityError(err, "failed to create identity", goerrors.CodeBadRequest)
		}

		created := user
		st.onFailure("delete identity", func(ctx context.Context, tx bun.IDB) error {
			return o.identity.DeleteTx(ctx, tx, created)
		})

		if err := o.identity.AddToRoleTx(ctx, tx, user, role.String()); err != nil {
			return nil, identityError(err, "failed to assign role", goerrors.CodeInternal)
		}

		account := &AdminAccount{
			UserID:       user.ID,
			ScopeID:      req.ScopeID,
			Role:         role,
			IsDeputy:     isDeputy,
			BlockingType: BlockingNone,
		}

		if role.ManagesWorkshops() && !isDeputy {
			workshops, err := o.workshops.ResolveTx(ctx, tx, &account.ScopeID, req.WorkshopIDs)
			if err != nil {
				return nil, storeError(err, "failed to resolve workshops")
			}
			if err := checkWorkshopScope(role, account.ScopeID, req.WorkshopIDs, workshops); err != nil {
				return nil, err
			}
			account.ManagedWorkshops = workshops
		}

		if requiresWorkshops && len(account.ManagedWorkshops) == 0 {
			return nil, ErrWorkshopsRequired(role)
		}

		if _, err := o.repo.Admins().CreateTx(ctx, tx, account); err != nil {
			return nil, storeError(err, "failed to create admin")
		}

		if o.audits(role, OperationCreate) {
			cs := newChangeSet(account, actorID, op.id, OperationCreate)
			for _, p := range snapshot(user, o.tracked(role)) {
				if p.Value != "" {
					cs.add(p.Name, "", p.Value)
				}
			}
			for _, w := range account.ManagedWorkshops {
				cs.addWorkshop(w.ID, "", w.ID.String())
			}
			st.record(cs)
		}

		if err := o.stageInvitation(ctx, tx, op, st, user, password, urls); err != nil {
			return nil, err
		}

		op.targetID = user.ID.String()
		st.emit(o.event(op, account, false, map[string]any{
			"email":     email,
			"workshops": len(account.ManagedWorkshops),
			"is_deputy": isDeputy,
		}))

		return NewAdminView(account, user), nil
	})
}
