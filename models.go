package provisioning

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity record backing an admin account
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           string     `bun:"user_role,notnull" json:"user_role,omitempty"`
	FirstName      string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	MiddleName     string     `bun:"middle_name" json:"middle_name,omitempty"`
	Username       string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	SecurityStamp  string     `bun:"security_stamp,notnull" json:"-"`
	EmailConfirmed bool       `bun:"is_email_verified" json:"is_email_verified"`
	IsDerived      bool       `bun:"is_derived" json:"is_derived"`
	IsRegistered   bool       `bun:"is_registered" json:"is_registered"`
	IsBlocked      bool       `bun:"is_blocked" json:"is_blocked"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// TokenPurpose scopes a one time token to a single use case
type TokenPurpose string

const (
	PurposeEmailConfirmation TokenPurpose = "email-confirmation"
	PurposePasswordReset     TokenPurpose = "password-reset"
	PurposeChangeEmail       TokenPurpose = "change-email"
)

// UserToken stores the hash of an issued one time token
type UserToken struct {
	bun.BaseModel `bun:"table:user_tokens,alias:utk"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID    `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Purpose       TokenPurpose `bun:"purpose,notnull" json:"purpose"`
	TokenHash     string       `bun:"token_hash,notnull" json:"-"`
	SecurityStamp string       `bun:"security_stamp,notnull" json:"-"`
	ExpiresAt     time.Time    `bun:"expires_at,notnull" json:"expires_at"`
	ConsumedAt    *time.Time   `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Workshop is the slice of the platform workshop entity we need to assign
// workshops to admins
type Workshop struct {
	bun.BaseModel `bun:"table:workshops,alias:wks"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ProviderID    uuid.UUID `bun:"provider_id,notnull,type:uuid" json:"provider_id"`
	Title         string    `bun:"title" json:"title,omitempty"`
}

// BlockingType tells manual blocks apart from blocks cascaded from a provider
type BlockingType string

const (
	BlockingNone      BlockingType = "none"
	BlockingManual    BlockingType = "manual"
	BlockingAutomatic BlockingType = "automatic"
)

// AdminAccount is the domain side of an admin. It is 1:1 with a User by id
// and unique per (user_id, scope_id).
type AdminAccount struct {
	bun.BaseModel    `bun:"table:admin_accounts,alias:adm"`
	UserID           uuid.UUID    `bun:"user_id,pk,type:uuid" json:"user_id"`
	ScopeID          uuid.UUID    `bun:"scope_id,notnull,type:uuid" json:"scope_id"`
	Role             AdminRole    `bun:"admin_role,notnull" json:"admin_role"`
	IsDeputy         bool         `bun:"is_deputy" json:"is_deputy"`
	BlockingType     BlockingType `bun:"blocking_type,notnull" json:"blocking_type"`
	ManagedWorkshops []*Workshop  `bun:"m2m:admin_workshops,join:Admin=Workshop" json:"managed_workshops,omitempty"`
	CreatedAt        *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt        *time.Time   `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// WorkshopIDs returns the ids of the managed workshops
func (a *AdminAccount) WorkshopIDs() []uuid.UUID {
	if a == nil {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(a.ManagedWorkshops))
	for _, w := range a.ManagedWorkshops {
		if w != nil {
			ids = append(ids, w.ID)
		}
	}
	return ids
}

// AdminWorkshop links an admin account to a workshop it manages
type AdminWorkshop struct {
	bun.BaseModel `bun:"table:admin_workshops,alias:awk"`
	AdminUserID   uuid.UUID     `bun:"admin_user_id,pk,type:uuid"`
	Admin         *AdminAccount `bun:"rel:belongs-to,join:admin_user_id=user_id"`
	WorkshopID    uuid.UUID     `bun:"workshop_id,pk,type:uuid"`
	Workshop      *Workshop     `bun:"rel:belongs-to,join:workshop_id=id"`
}

// OperationKind tags change log rows
type OperationKind string

const (
	OperationCreate   OperationKind = "Create"
	OperationUpdate   OperationKind = "Update"
	OperationDelete   OperationKind = "Delete"
	OperationBlock    OperationKind = "Block"
	OperationReinvite OperationKind = "Reinvite"
)

// OperationKinds lists every operation kind
func OperationKinds() []OperationKind {
	return []OperationKind{
		OperationCreate,
		OperationUpdate,
		OperationDelete,
		OperationBlock,
		OperationReinvite,
	}
}

// ChangeLogEntry records one property transition of one admin account.
// Rows are append only.
type ChangeLogEntry struct {
	bun.BaseModel `bun:"table:admin_change_logs,alias:acl"`
	ID            int64         `bun:"id,pk,autoincrement" json:"id"`
	AdminUserID   uuid.UUID     `bun:"admin_user_id,notnull,type:uuid" json:"admin_user_id"`
	AdminRole     AdminRole     `bun:"admin_role,notnull" json:"admin_role"`
	ScopeID       uuid.UUID     `bun:"scope_id,notnull,type:uuid" json:"scope_id"`
	ActorID       string        `bun:"actor_id,notnull" json:"actor_id"`
	OperationID   uuid.UUID     `bun:"operation_id,notnull,type:uuid" json:"operation_id"`
	Operation     OperationKind `bun:"operation,notnull" json:"operation"`
	PropertyName  string        `bun:"property_name" json:"property_name"`
	OldValue      string        `bun:"old_value" json:"old_value"`
	NewValue      string        `bun:"new_value" json:"new_value"`
	WorkshopID    *uuid.UUID    `bun:"workshop_id,nullzero,type:uuid" json:"workshop_id,omitempty"`
	OccurredAt    time.Time     `bun:"occurred_at,notnull" json:"occurred_at"`
}

// OutboxStatus is the delivery state of an outbox message
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSending OutboxStatus = "sending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxMessage is a rendered notification waiting for delivery
type OutboxMessage struct {
	bun.BaseModel `bun:"table:notification_outbox,alias:obx"`
	ID            uuid.UUID    `bun:"id,pk,type:uuid" json:"id"`
	OperationID   uuid.UUID    `bun:"operation_id,notnull,type:uuid" json:"operation_id"`
	Recipient     string       `bun:"recipient,notnull" json:"recipient"`
	Subject       string       `bun:"subject,notnull" json:"subject"`
	Body          string       `bun:"body" json:"-"`
	Status        OutboxStatus `bun:"status,notnull" json:"status"`
	Attempts      int          `bun:"attempts,notnull" json:"attempts"`
	LastError     string       `bun:"last_error" json:"last_error,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	SentAt        *time.Time   `bun:"sent_at,nullzero" json:"sent_at,omitempty"`
}
