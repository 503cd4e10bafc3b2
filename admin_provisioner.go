package provisioning

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AdminProvisioner is the lifecycle capability set of one admin role
type AdminProvisioner interface {
	Role() AdminRole
	Create(ctx context.Context, req CreateAdminMessage, actorID string, urls URLBuilder) Response
	Update(ctx context.Context, req UpdateAdminMessage, actorID string) Response
	Delete(ctx context.Context, id uuid.UUID, actorID string) Response
	Block(ctx context.Context, id uuid.UUID, blocked bool, actorID string) Response
	Reinvite(ctx context.Context, id uuid.UUID, actorID string, urls URLBuilder) Response
}

// For returns the provisioner of role. Operations on an unknown role fail
// with a validation envelope.
func (o *Orchestrator) For(role AdminRole) AdminProvisioner {
	return roleProvisioner{o: o, role: role}
}

type roleProvisioner struct {
	o    *Orchestrator
	role AdminRole
}

func (p roleProvisioner) Role() AdminRole {
	return p.role
}

func (p roleProvisioner) Create(ctx context.Context, req CreateAdminMessage, actorID string, urls URLBuilder) Response {
	return p.o.create(ctx, p.role, req, actorID, urls)
}

func (p roleProvisioner) Update(ctx context.Context, req UpdateAdminMessage, actorID string) Response {
	return p.o.update(ctx, p.role, req, actorID)
}

func (p roleProvisioner) Delete(ctx context.Context, id uuid.UUID, actorID string) Response {
	return p.o.delete(ctx, p.role, id, actorID)
}

func (p roleProvisioner) Block(ctx context.Context, id uuid.UUID, blocked bool, actorID string) Response {
	classification := BlockingNone
	if blocked {
		classification = BlockingManual
	}
	return p.o.block(ctx, p.role, id, blocked, classification, actorID)
}

func (p roleProvisioner) Reinvite(ctx context.Context, id uuid.UUID, actorID string, urls URLBuilder) Response {
	return p.o.reinvite(ctx, p.role, id, actorID, urls)
}

// AdminView is the public projection of an admin account returned in envelopes
type AdminView struct {
	ID           uuid.UUID    `json:"id"`
	Role         AdminRole    `json:"role"`
	ScopeID      uuid.UUID    `json:"scopeId"`
	FirstName    string       `json:"firstName"`
	LastName     string       `json:"lastName"`
	MiddleName   string       `json:"middleName,omitempty"`
	Email        string       `json:"email"`
	PhoneNumber  string       `json:"phoneNumber,omitempty"`
	IsDeputy     bool         `json:"isDeputy"`
	IsBlocked    bool         `json:"isBlocked"`
	BlockingType BlockingType `json:"blockingType"`
	WorkshopIDs  []uuid.UUID  `json:"workshopIds,omitempty"`
	CreatedAt    *time.Time   `json:"createdAt,omitempty"`
}

// NewAdminView joins the domain account with its identity record
func NewAdminView(account *AdminAccount, user *User) *AdminView {
	if account == nil {
		return nil
	}
	view := &AdminView{
		ID:           account.UserID,
		Role:         account.Role,
		ScopeID:      account.ScopeID,
		IsDeputy:     account.IsDeputy,
		BlockingType: account.BlockingType,
		WorkshopIDs:  account.WorkshopIDs(),
		CreatedAt:    account.CreatedAt,
	}
	if user != nil {
		view.FirstName = user.FirstName
		view.LastName = user.LastName
		view.MiddleName = user.MiddleName
		view.Email = user.Email
		view.PhoneNumber = user.Phone
		view.IsBlocked = user.IsBlocked
	}
	return view
}
