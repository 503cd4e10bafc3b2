package provisioning

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/nyaruka/phonenumbers"
)

// DeliveryMode selects how invitations leave the transactional core
type DeliveryMode string

const (
	// DeliveryOutbox stores rendered invitations in the outbox table inside the
	// transaction and delivers them after commit.
	DeliveryOutbox DeliveryMode = "outbox"
	// DeliveryInline sends invitations before commit. A failed send aborts the
	// operation.
	DeliveryInline DeliveryMode = "inline"
)

// RoleSettings is the audit configuration of one admin role
type RoleSettings struct {
	TrackedProperties []string        `json:"tracked_properties"`
	AuditedOperations []OperationKind `json:"audited_operations"`
}

// Audits reports whether operation op writes change log rows
func (s RoleSettings) Audits(op OperationKind) bool {
	for _, o := range s.AuditedOperations {
		if o == op {
			return true
		}
	}
	return false
}

func (s RoleSettings) validate() error {
	for _, name := range s.TrackedProperties {
		if _, ok := trackedAccessors[name]; !ok {
			return fmt.Errorf("unknown tracked property %q", name)
		}
	}
	for _, op := range s.AuditedOperations {
		if !isOperationKind(op) {
			return fmt.Errorf("unknown operation kind %q", op)
		}
	}
	return nil
}

// InvitationConfig configures invitation emails
type InvitationConfig struct {
	Subject                string        `json:"subject"`
	TemplateID             string        `json:"template_id"`
	ConfirmationLink       string        `json:"confirmation_link"`
	LoginURL               string        `json:"login_url"`
	ConfirmationAction     string        `json:"confirmation_action"`
	ConfirmationController string        `json:"confirmation_controller"`
	TokenLifetime          time.Duration `json:"token_lifetime"`
}

// RetryConfig bounds the transient fault retry policy
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts"`
	InitialInterval time.Duration `json:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval"`
}

// Config holds provisioning options
type Config struct {
	Roles            map[AdminRole]RoleSettings `json:"roles"`
	Invitation       InvitationConfig           `json:"invitation"`
	Password         PasswordPolicy             `json:"password"`
	Retry            RetryConfig                `json:"retry"`
	Delivery         DeliveryMode               `json:"delivery"`
	OperationTimeout time.Duration              `json:"operation_timeout"`
	PhoneRegion      string                     `json:"phone_region"`
}

// DefaultConfig returns the configuration used when none is provided.
// Institution admins do not log Delete.
func DefaultConfig() Config {
	tracked := []string{
		PropertyFirstName,
		PropertyLastName,
		PropertyMiddleName,
		PropertyEmail,
		PropertyPhoneNumber,
	}

	withoutDelete := []OperationKind{OperationCreate, OperationUpdate, OperationBlock, OperationReinvite}

	roles := map[AdminRole]RoleSettings{}
	for _, role := range AdminRoles() {
		ops := OperationKinds()
		if !role.ManagesWorkshops() {
			ops = withoutDelete
		}
		roles[role] = RoleSettings{
			TrackedProperties: append([]string(nil), tracked...),
			AuditedOperations: append([]OperationKind(nil), ops...),
		}
	}

	return Config{
		Roles: roles,
		Invitation: InvitationConfig{
			Subject:                "Запрошення!",
			TemplateID:             DefaultInvitationTemplate,
			ConfirmationLink:       "http://localhost:8572/account/email-confirmation",
			LoginURL:               "http://localhost:8572/login",
			ConfirmationAction:     "EmailConfirmation",
			ConfirmationController: "Account",
			TokenLifetime:          24 * time.Hour,
		},
		Password: DefaultPasswordPolicy(),
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		},
		Delivery:         DeliveryOutbox,
		OperationTimeout: 10 * time.Second,
		PhoneRegion:      "UA",
	}
}

// RoleSettings returns the settings for role, empty when not configured.
// Validate rejects a configuration that leaves a role out.
func (c Config) RoleSettings(role AdminRole) RoleSettings {
	if c.Roles == nil {
		return RoleSettings{}
	}
	return c.Roles[role]
}

// Validate will run validation rules
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Roles, validation.Required, validation.By(validateRoleSettings)),
		validation.Field(&c.Delivery, validation.Required, validation.In(DeliveryOutbox, DeliveryInline)),
		validation.Field(&c.OperationTimeout, validation.Required),
		validation.Field(&c.PhoneRegion, validation.Required, validation.By(validatePhoneRegion)),
	)
	if err != nil {
		return err
	}

	if err := c.Invitation.Validate(); err != nil {
		return fmt.Errorf("invitation: %w", err)
	}

	if err := c.Password.Validate(); err != nil {
		return fmt.Errorf("password: %w", err)
	}

	return validation.ValidateStruct(&c.Retry,
		validation.Field(&c.Retry.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.Retry.InitialInterval, validation.Required),
		validation.Field(&c.Retry.MaxInterval, validation.Required),
	)
}

// Validate will run validation rules
func (c InvitationConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Subject, validation.Required),
		validation.Field(&c.TemplateID, validation.Required),
		validation.Field(&c.ConfirmationLink, validation.Required, is.URL),
		validation.Field(&c.LoginURL, validation.Required, is.URL),
		validation.Field(&c.ConfirmationAction, validation.Required),
		validation.Field(&c.ConfirmationController, validation.Required),
		validation.Field(&c.TokenLifetime, validation.Required),
	)
}

func validateRoleSettings(value any) error {
	roles, ok := value.(map[AdminRole]RoleSettings)
	if !ok {
		return fmt.Errorf("unexpected roles type %T", value)
	}
	for role, settings := range roles {
		if !role.IsValid() {
			return fmt.Errorf("unknown admin role %q", role)
		}
		if err := settings.validate(); err != nil {
			return fmt.Errorf("%s: %w", role.Label(), err)
		}
	}
	for _, role := range AdminRoles() {
		if _, ok := roles[role]; !ok {
			return fmt.Errorf("missing settings for admin role %q", role)
		}
	}
	return nil
}

func validatePhoneRegion(value any) error {
	region, _ := value.(string)
	if phonenumbers.GetCountryCodeForRegion(region) == 0 {
		return fmt.Errorf("unsupported phone region %q", region)
	}
	return nil
}

func isOperationKind(op OperationKind) bool {
	for _, o := range OperationKinds() {
		if o == op {
			return true
		}
	}
	return false
}
