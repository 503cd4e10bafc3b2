package provisioning

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the identity record repository
type Users interface {
	repository.Repository[*User]

	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)
	UpdateProfileTx(ctx context.Context, tx bun.IDB, user *User) error
	SetRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role string) error
	SetPasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string) error
	SetSecurityStampTx(ctx context.Context, tx bun.IDB, id uuid.UUID, stamp string) error
	SetEmailConfirmedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, confirmed bool) error
	DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *users) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"id": id.String()})
	}
	return record, nil
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

func (a *users) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("lower(?TableAlias.email) = ?", normalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"email": email})
	}
	return record, nil
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) UpdateProfileTx(ctx context.Context, tx bun.IDB, user *User) error {
	now := time.Now().UTC()
	user.UpdatedAt = &now
	res, err := tx.NewUpdate().
		Model(user).
		Column("first_name", "last_name", "middle_name", "email", "username", "phone_number", "is_blocked", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, map[string]any{"id": user.ID.String()})
}

func (a *users) SetRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role string) error {
	return a.setColumnTx(ctx, tx, id, "user_role", role)
}

func (a *users) SetPasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string) error {
	return a.setColumnTx(ctx, tx, id, "password_hash", hash)
}

func (a *users) SetSecurityStampTx(ctx context.Context, tx bun.IDB, id uuid.UUID, stamp string) error {
	return a.setColumnTx(ctx, tx, id, "security_stamp", stamp)
}

func (a *users) SetEmailConfirmedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, confirmed bool) error {
	return a.setColumnTx(ctx, tx, id, "is_email_verified", confirmed)
}

func (a *users) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, map[string]any{"id": id.String()})
}

func (a *users) setColumnTx(ctx context.Context, tx bun.IDB, id uuid.UUID, column string, value any) error {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("? = ?", bun.Ident(column), value).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, map[string]any{"id": id.String(), "column": column})
}

func prepareUserDefaults(user *User) {
	if user == nil {
		return
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = normalizeEmail(user.Email)
	if user.Username == "" {
		user.Username = user.Email
	}
	if user.SecurityStamp == "" {
		user.SecurityStamp = newSecurityStamp()
	}
	now := time.Now().UTC()
	if user.CreatedAt == nil {
		user.CreatedAt = &now
	}
	if user.UpdatedAt == nil {
		user.UpdatedAt = &now
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newSecurityStamp() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func expectAffected(res sql.Result, meta map[string]any) error {
	if res == nil {
		return repository.NewRecordNotFound().WithMetadata(meta)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.NewRecordNotFound().WithMetadata(meta)
	}
	return nil
}

func notFoundOr(err error, meta map[string]any) error {
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return repository.NewRecordNotFound().WithMetadata(meta)
	}
	return err
}

// IsNotFound reports whether err signals a missing record
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) ||
		repository.IsRecordNotFound(err) ||
		goerrors.IsNotFound(err)
}
