package provisioning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ChangeLogFilter selects change log rows. Zero values match everything.
type ChangeLogFilter struct {
	AdminUserID *uuid.UUID    `json:"admin_user_id,omitempty"`
	Role        AdminRole     `json:"admin_role,omitempty"`
	Operation   OperationKind `json:"operation,omitempty"`
	OperationID *uuid.UUID    `json:"operation_id,omitempty"`
	ActorID     string        `json:"actor_id,omitempty"`
	From        *time.Time    `json:"from,omitempty"`
	To          *time.Time    `json:"to,omitempty"`
	Limit       int           `json:"limit,omitempty"`
	Offset      int           `json:"offset,omitempty"`
}

// ChangeLogs is the append only store of change log rows
type ChangeLogs interface {
	AppendTx(ctx context.Context, tx bun.IDB, entries []*ChangeLogEntry) (int64, error)
	ListTx(ctx context.Context, tx bun.IDB, filter ChangeLogFilter) ([]*ChangeLogEntry, int, error)
}

type changeLogs struct{}

func NewChangeLogsRepository() ChangeLogs {
	return changeLogs{}
}

func (changeLogs) AppendTx(ctx context.Context, tx bun.IDB, entries []*ChangeLogEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	res, err := tx.NewInsert().Model(&entries).Exec(ctx)
	if err != nil {
		return 0, err
	}
	if res == nil {
		return 0, nil
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (changeLogs) ListTx(ctx context.Context, tx bun.IDB, filter ChangeLogFilter) ([]*ChangeLogEntry, int, error) {
	var records []*ChangeLogEntry
	q := tx.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.id ASC")

	if filter.AdminUserID != nil {
		q.Where("?TableAlias.admin_user_id = ?", *filter.AdminUserID)
	}
	if filter.Role != "" {
		q.Where("?TableAlias.admin_role = ?", filter.Role)
	}
	if filter.Operation != "" {
		q.Where("?TableAlias.operation = ?", filter.Operation)
	}
	if filter.OperationID != nil {
		q.Where("?TableAlias.operation_id = ?", *filter.OperationID)
	}
	if filter.ActorID != "" {
		q.Where("?TableAlias.actor_id = ?", filter.ActorID)
	}
	if filter.From != nil {
		q.Where("?TableAlias.occurred_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q.Where("?TableAlias.occurred_at < ?", filter.To.UTC())
	}
	if filter.Limit > 0 {
		q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q.Offset(filter.Offset)
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
