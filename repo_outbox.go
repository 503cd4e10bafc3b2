package provisioning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// OutboxMessages stores rendered notifications until they are delivered
type OutboxMessages interface {
	EnqueueTx(ctx context.Context, tx bun.IDB, msg *OutboxMessage) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*OutboxMessage, error)
	ListByOperation(ctx context.Context, operationID uuid.UUID) ([]*OutboxMessage, error)
	ListDeliverable(ctx context.Context, staleBefore time.Time, limit int) ([]*OutboxMessage, error)
	Claim(ctx context.Context, id uuid.UUID, staleBefore time.Time) (bool, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause string, final bool) error
}

type outboxMessages struct {
	db *bun.DB
}

func NewOutboxRepository(db *bun.DB) OutboxMessages {
	return &outboxMessages{db: db}
}

// EnqueueTx inserts msg unless a row with the same id already exists.
// It reports whether a new row was written.
func (r *outboxMessages) EnqueueTx(ctx context.Context, tx bun.IDB, msg *OutboxMessage) (bool, error) {
	now := time.Now().UTC()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Status == "" {
		msg.Status = OutboxPending
	}
	msg.CreatedAt = &now
	msg.UpdatedAt = &now

	res, err := tx.NewInsert().
		Model(msg).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *outboxMessages) GetByID(ctx context.Context, id uuid.UUID) (*OutboxMessage, error) {
	record := &OutboxMessage{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"id": id.String()})
	}
	return record, nil
}

func (r *outboxMessages) ListByOperation(ctx context.Context, operationID uuid.UUID) ([]*OutboxMessage, error) {
	var records []*OutboxMessage
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.operation_id = ?", operationID).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListDeliverable returns pending rows and rows stuck in sending since
// before staleBefore, oldest first.
func (r *outboxMessages) ListDeliverable(ctx context.Context, staleBefore time.Time, limit int) ([]*OutboxMessage, error) {
	var records []*OutboxMessage
	q := r.db.NewSelect().
		Model(&records).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.status = ?", OutboxPending).
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.
						Where("?TableAlias.status = ?", OutboxSending).
						Where("?TableAlias.updated_at < ?", staleBefore.UTC())
				})
		}).
		OrderExpr("?TableAlias.created_at ASC")

	if limit > 0 {
		q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

// Claim moves a deliverable row to sending. Only one caller wins a row.
func (r *outboxMessages) Claim(ctx context.Context, id uuid.UUID, staleBefore time.Time) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*OutboxMessage)(nil)).
		Set("status = ?", OutboxSending).
		Set("attempts = attempts + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.
				Where("status = ?", OutboxPending).
				WhereGroup(" OR ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
					return q.
						Where("status = ?", OutboxSending).
						Where("updated_at < ?", staleBefore.UTC())
				})
		}).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkSent records delivery and drops the body, which holds a plaintext password
func (r *outboxMessages) MarkSent(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	res, err := r.db.NewUpdate().
		Model((*OutboxMessage)(nil)).
		Set("status = ?", OutboxSent).
		Set("body = ''").
		Set("last_error = ''").
		Set("sent_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, map[string]any{"id": id.String()})
}

// MarkFailed returns the row to pending, or parks it as failed when final.
// Parked rows lose their body like sent ones.
func (r *outboxMessages) MarkFailed(ctx context.Context, id uuid.UUID, cause string, final bool) error {
	status := OutboxPending
	if final {
		status = OutboxFailed
	}
	q := r.db.NewUpdate().
		Model((*OutboxMessage)(nil)).
		Set("status = ?", status)
	if final {
		q = q.Set("body = ''")
	}
	res, err := q.
		Set("last_error = ?", cause).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, map[string]any{"id": id.String()})
}
