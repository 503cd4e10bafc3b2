package provisioning

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChangeLogRecorder appends and reads admin change log rows
type ChangeLogRecorder interface {
	// Append writes entries and returns the number of rows written. A missing
	// result from the store counts as zero rows, not as an error.
	Append(ctx context.Context, entries ...*ChangeLogEntry) (int, error)
	List(ctx context.Context, filter ChangeLogFilter) ([]*ChangeLogEntry, int, error)
}

type changeLogRecorder struct {
	repo   RepositoryManager
	logger Logger
	now    func() time.Time
}

// NewChangeLogRecorder returns a recorder writing through repo
func NewChangeLogRecorder(repo RepositoryManager) ChangeLogRecorder {
	_, logger := ResolveLogger("changelog", nil, nil)
	return &changeLogRecorder{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (r *changeLogRecorder) Append(ctx context.Context, entries ...*ChangeLogEntry) (int, error) {
	rows := make([]*ChangeLogEntry, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		if e.OccurredAt.IsZero() {
			e.OccurredAt = r.now().UTC()
		}
		rows = append(rows, e)
	}

	n, err := r.repo.ChangeLogs().AppendTx(ctx, r.repo.DB(), rows)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *changeLogRecorder) List(ctx context.Context, filter ChangeLogFilter) ([]*ChangeLogEntry, int, error) {
	return r.repo.ChangeLogs().ListTx(ctx, r.repo.DB(), filter)
}

// changeSet collects the rows one operation produces for one account
type changeSet struct {
	account     *AdminAccount
	actorID     string
	operationID uuid.UUID
	operation   OperationKind
	entries     []*ChangeLogEntry
}

func newChangeSet(account *AdminAccount, actorID string, operationID uuid.UUID, op OperationKind) *changeSet {
	return &changeSet{
		account:     account,
		actorID:     actorID,
		operationID: operationID,
		operation:   op,
	}
}

func (c *changeSet) add(property, oldValue, newValue string) {
	c.entries = append(c.entries, c.entry(property, oldValue, newValue, nil))
}

func (c *changeSet) addWorkshop(workshopID uuid.UUID, oldValue, newValue string) {
	id := workshopID
	c.entries = append(c.entries, c.entry(PropertyWorkshopID, oldValue, newValue, &id))
}

func (c *changeSet) addChanges(changes []propertyChange) {
	for _, ch := range changes {
		c.add(ch.Name, ch.OldValue, ch.NewValue)
	}
}

func (c *changeSet) entry(property, oldValue, newValue string, workshopID *uuid.UUID) *ChangeLogEntry {
	return &ChangeLogEntry{
		AdminUserID:  c.account.UserID,
		AdminRole:    c.account.Role,
		ScopeID:      c.account.ScopeID,
		ActorID:      c.actorID,
		OperationID:  c.operationID,
		Operation:    c.operation,
		PropertyName: property,
		OldValue:     oldValue,
		NewValue:     newValue,
		WorkshopID:   workshopID,
	}
}
