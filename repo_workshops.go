package provisioning

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Workshops exposes the workshop lookups needed for assignments
type Workshops interface {
	repository.Repository[*Workshop]
	WorkshopLookup
}

type workshops struct {
	repository.Repository[*Workshop]
}

var _ WorkshopLookup = (*workshops)(nil)

func NewWorkshopsRepository(db *bun.DB) Workshops {
	handlers := repository.ModelHandlers[*Workshop]{
		NewRecord: func() *Workshop {
			return &Workshop{}
		},
		GetID: func(record *Workshop) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Workshop, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "title"
		},
	}
	return &workshops{Repository: repository.NewRepository(db, handlers)}
}

// ResolveTx returns the workshops among ids that exist, restricted to the
// provider when one is given. Unknown ids are dropped, see checkWorkshopScope.
func (r *workshops) ResolveTx(ctx context.Context, tx bun.IDB, providerID *uuid.UUID, ids []uuid.UUID) ([]*Workshop, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	var records []*Workshop
	q := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.id IN (?)", bun.In(ids))

	if providerID != nil {
		q.Where("?TableAlias.provider_id = ?", *providerID)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

// checkWorkshopScope fails when some requested workshop was not resolved
// under the provider
func checkWorkshopScope(role AdminRole, providerID uuid.UUID, requested []uuid.UUID, resolved []*Workshop) error {
	found := make(map[uuid.UUID]struct{}, len(resolved))
	for _, w := range resolved {
		found[w.ID] = struct{}{}
	}

	var missing []uuid.UUID
	for _, id := range uniqueIDs(requested) {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return ErrForeignWorkshops(role, providerID, missing)
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// diffIDs returns the ids present only in next (added) and only in current (removed)
func diffIDs(current, next []uuid.UUID) (added, removed []uuid.UUID) {
	cur := make(map[uuid.UUID]struct{}, len(current))
	for _, id := range current {
		cur[id] = struct{}{}
	}
	nxt := make(map[uuid.UUID]struct{}, len(next))
	for _, id := range next {
		nxt[id] = struct{}{}
	}

	for _, id := range uniqueIDs(next) {
		if _, ok := cur[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range uniqueIDs(current) {
		if _, ok := nxt[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}
