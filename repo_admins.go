package provisioning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AdminFilter narrows admin account listings
type AdminFilter struct {
	Roles           []AdminRole
	ScopeID         *uuid.UUID
	ExcludeBlocking []BlockingType
	Limit           int
	Offset          int
}

// AdminAccounts is the domain repository for admin accounts
type AdminAccounts interface {
	GetByID(ctx context.Context, role AdminRole, id uuid.UUID) (*AdminAccount, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, role AdminRole, id uuid.UUID) (*AdminAccount, error)
	CreateTx(ctx context.Context, tx bun.IDB, account *AdminAccount) (*AdminAccount, error)
	SyncWorkshopsTx(ctx context.Context, tx bun.IDB, adminID uuid.UUID, added, removed []uuid.UUID) error
	UpdateBlockingTx(ctx context.Context, tx bun.IDB, adminID uuid.UUID, blocking BlockingType) error
	TouchTx(ctx context.Context, tx bun.IDB, adminID uuid.UUID) error
	DeleteTx(ctx context.Context, tx bun.IDB, account *AdminAccount) error
	ListByScope(ctx context.Context, filter AdminFilter) ([]*AdminAccount, error)
	ListByScopeTx(ctx context.Context, tx bun.IDB, filter AdminFilter) ([]*AdminAccount, error)
}

type adminAccounts struct {
	db *bun.DB
}

func NewAdminAccountsRepository(db *bun.DB) AdminAccounts {
	db.RegisterModel((*AdminWorkshop)(nil))
	return &adminAccounts{db: db}
}

func (r *adminAccounts) GetByID(ctx context.Context, role AdminRole, id uuid.UUID) (*AdminAccount, error) {
	return r.GetByIDTx(ctx, r.db, role, id)
}

// GetByIDTx loads an account with its workshops. An empty role matches any role.
func (r *adminAccounts) GetByIDTx(ctx context.Context, tx bun.IDB, role AdminRole, id uuid.UUID) (*AdminAccount, error) {
	record := &AdminAccount{}
	q := tx.NewSelect().
		Model(record).
		Relation("ManagedWorkshops").
		Where("?TableAlias.user_id = ?", id)

	if role != "" {
		q.Where("?TableAlias.admin_role = ?", role)
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, notFoundOr(err, map[string]any{
			"id":   id.String(),
			"role": role.String(),
		})
	}
	return record, nil
}

func (r *adminAccounts) CreateTx(ctx context.Context, tx bun.IDB, account *AdminAccount) (*AdminAccount, error) {
	now := time.Now().UTC()
	if account.CreatedAt == nil {
		account.CreatedAt = &now
	}
	account.UpdatedAt = &now
	if account.BlockingType == "" {
		account.BlockingType = BlockingNone
	}

	if _, err := tx.NewInsert().Model(account).Exec(ctx); err != nil {
		return nil, err
	}

	if err := r.SyncWorkshopsTx(ctx, tx, account.UserID, account.WorkshopIDs(), nil); err != nil {
		return nil, err
	}

	return account, nil
}

func (r *adminAccounts) SyncWorkshopsTx(ctx context.Context, tx bun.IDB, adminID uuid.UUID, added, removed []uuid.UUID) error {
	if len(removed) > 0 {
		_, err := tx.NewDelete().
			Model((*AdminWorkshop)(nil)).
			Where("admin_user_id = ?", adminID).
			Where("workshop_id IN (?)", bun.In(removed)).
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	if len(added) == 0 {
		return nil
	}

	links := make([]AdminWorkshop, 0, len(added))
	for _, id := range added {
		links = append(links, AdminWorkshop{AdminUserID: adminID, WorkshopID: id})
	}

	_, err := tx.NewInsert().Model(&links).Exec(ctx)
	return err
}

func (r *adminAccounts) UpdateBlockingTx(ctx context.Context, tx bun.IDB, adminID uuid.UUID, blocking BlockingType) error {
	res, err := tx.NewUpdate().
		Model((*AdminAccount)(nil)).
		Set("blocking_type = ?", blocking).
		Set("updated_at = ?", time.Now().UTC()).
		Where("user_id = ?", adminID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, map[string]any{"id": adminID.String()})
}

func (r *adminAccounts) TouchTx(ctx context.Context, tx bun.IDB, adminID uuid.UUID) error {
	res, err := tx.NewUpdate().
		Model((*AdminAccount)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("user_id = ?", adminID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, map[string]any{"id": adminID.String()})
}

// DeleteTx soft deletes the account
func (r *adminAccounts) DeleteTx(ctx context.Context, tx bun.IDB, account *AdminAccount) error {
	res, err := tx.NewDelete().
		Model(account).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, map[string]any{"id": account.UserID.String()})
}

func (r *adminAccounts) ListByScope(ctx context.Context, filter AdminFilter) ([]*AdminAccount, error) {
	return r.ListByScopeTx(ctx, r.db, filter)
}

func (r *adminAccounts) ListByScopeTx(ctx context.Context, tx bun.IDB, filter AdminFilter) ([]*AdminAccount, error) {
	var records []*AdminAccount
	q := tx.NewSelect().
		Model(&records).
		Relation("ManagedWorkshops").
		OrderExpr("?TableAlias.created_at ASC")

	if len(filter.Roles) > 0 {
		q.Where("?TableAlias.admin_role IN (?)", bun.In(filter.Roles))
	}
	if filter.ScopeID != nil {
		q.Where("?TableAlias.scope_id = ?", *filter.ScopeID)
	}
	if len(filter.ExcludeBlocking) > 0 {
		q.Where("?TableAlias.blocking_type NOT IN (?)", bun.In(filter.ExcludeBlocking))
	}
	if filter.Limit > 0 {
		q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q.Offset(filter.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}
