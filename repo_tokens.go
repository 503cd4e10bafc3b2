package provisioning

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserTokens stores one time token hashes
type UserTokens interface {
	repository.Repository[*UserToken]

	FindActiveTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, hash string) (*UserToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
	DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
}

type userTokens struct {
	repository.Repository[*UserToken]
	db *bun.DB
}

func NewUserTokensRepository(db *bun.DB) UserTokens {
	handlers := repository.ModelHandlers[*UserToken]{
		NewRecord: func() *UserToken {
			return &UserToken{}
		},
		GetID: func(record *UserToken) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *UserToken, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "token_hash"
		},
	}
	return &userTokens{
		Repository: repository.NewRepository(db, handlers),
		db:         db,
	}
}

func (r *userTokens) FindActiveTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, hash string) (*UserToken, error) {
	record := &UserToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.purpose = ?", purpose).
		Where("?TableAlias.token_hash = ?", hash).
		Where("?TableAlias.consumed_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{
			"user_id": userID.String(),
			"purpose": string(purpose),
		})
	}
	return record, nil
}

func (r *userTokens) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	res, err := tx.NewUpdate().
		Model((*UserToken)(nil)).
		Set("consumed_at = ?", at).
		Where("id = ?", id).
		Where("consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, map[string]any{"id": id.String()})
}

func (r *userTokens) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*UserToken)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}
