package provisioning

import (
	"context"

	"github.com/google/uuid"
)

// CreateProviderAdminRequest is the payload of the provider admin rpc call
type CreateProviderAdminRequest struct {
	FirstName          string      `json:"firstName"`
	LastName           string      `json:"lastName"`
	MiddleName         string      `json:"middleName,omitempty"`
	Email              string      `json:"email"`
	PhoneNumber        string      `json:"phoneNumber,omitempty"`
	ProviderID         uuid.UUID   `json:"providerId"`
	IsDeputy           bool        `json:"isDeputy,omitempty"`
	ManagedWorkshopIDs []uuid.UUID `json:"managedWorkshopIds,omitempty"`
}

// CreateProviderAdminReply only tells the caller whether the admin exists now
type CreateProviderAdminReply struct {
	IsSuccess bool      `json:"isSuccess"`
	ID        uuid.UUID `json:"id,omitempty"`
}

// ProviderAdminRPC exposes provider admin creation to other services
type ProviderAdminRPC struct {
	provisioner AdminProvisioner
	urls        URLBuilder
	logger      Logger
}

func NewProviderAdminRPC(orchestrator *Orchestrator, urls URLBuilder) *ProviderAdminRPC {
	return &ProviderAdminRPC{
		provisioner: orchestrator.For(RoleProviderAdmin),
		urls:        urls,
		logger:      defLogger{name: "rpc"},
	}
}

func (s *ProviderAdminRPC) WithLogger(logger Logger) *ProviderAdminRPC {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// CreateProviderAdmin provisions a provider admin on behalf of actorID. The
// envelope detail is logged, callers only see the success flag.
func (s *ProviderAdminRPC) CreateProviderAdmin(ctx context.Context, actorID string, req CreateProviderAdminRequest) CreateProviderAdminReply {
	resp := s.provisioner.Create(ctx, CreateAdminMessage{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		MiddleName:  req.MiddleName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		ScopeID:     req.ProviderID,
		IsDeputy:    req.IsDeputy,
		WorkshopIDs: req.ManagedWorkshopIDs,
	}, actorID, s.urls)

	if !resp.IsSuccess {
		s.logger.Warn("rpc provider admin create failed",
			"provider_id", req.ProviderID,
			"status", resp.HTTPStatusCode,
			"message", resp.Message,
		)
		return CreateProviderAdminReply{}
	}

	reply := CreateProviderAdminReply{IsSuccess: true}
	if view, ok := resp.Result.(*AdminView); ok && view != nil {
		reply.ID = view.ID
	}
	return reply
}
