package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	provisioning "github.com/goliatone/go-provisioning"
	"github.com/goliatone/go-provisioning/adapters/smtpmail"
)

// BaseConfig is the provisioner binary configuration, loaded from
// config/app.json and the environment.
type BaseConfig struct {
	Server       Server       `koanf:"server" json:"server"`
	Persistence  Persistence  `koanf:"persistence" json:"persistence"`
	Provisioning Provisioning `koanf:"provisioning" json:"provisioning"`
	Auth         Auth         `koanf:"auth" json:"auth"`
	Mail         Mail         `koanf:"mail" json:"mail"`
	Redis        Redis        `koanf:"redis" json:"redis"`
	Kafka        Kafka        `koanf:"kafka" json:"kafka"`
	Metrics      Metrics      `koanf:"metrics" json:"metrics"`
}

type Server struct {
	Address  string `koanf:"address" json:"address"`
	BasePath string `koanf:"base_path" json:"base_path"`
	Debug    bool   `koanf:"debug" json:"debug"`
}

type Persistence struct {
	Debug                 bool   `koanf:"debug" json:"debug"`
	Driver                string `koanf:"driver" json:"driver"`
	Server                string `koanf:"server" json:"server"`
	DSN                   string `koanf:"dsn" json:"dsn"`
	PingTimeoutExpression string `koanf:"ping_timeout" json:"ping_timeout"`
	OtelIdentifier        string `koanf:"otel_identifier" json:"otel_identifier"`
}

// Provisioning overrides selected fields of provisioning.DefaultConfig
type Provisioning struct {
	Delivery                   string `koanf:"delivery" json:"delivery"`
	PhoneRegion                string `koanf:"phone_region" json:"phone_region"`
	OperationTimeoutExpression string `koanf:"operation_timeout" json:"operation_timeout"`
	ConfirmationLink           string `koanf:"confirmation_link" json:"confirmation_link"`
	LoginURL                   string `koanf:"login_url" json:"login_url"`
	InvitationSubject          string `koanf:"invitation_subject" json:"invitation_subject"`
	OutboxSchedule             string `koanf:"outbox_schedule" json:"outbox_schedule"`
}

type Auth struct {
	SigningKey   string   `koanf:"signing_key" json:"signing_key"`
	SigningAlg   string   `koanf:"signing_alg" json:"signing_alg"`
	JWKSetURL    string   `koanf:"jwks_url" json:"jwks_url"`
	Issuer       string   `koanf:"issuer" json:"issuer"`
	Audience     string   `koanf:"audience" json:"audience"`
	AllowedRoles []string `koanf:"allowed_roles" json:"allowed_roles"`
}

type Mail struct {
	Transport string          `koanf:"transport" json:"transport"`
	SMTP      smtpmail.Config `koanf:"smtp" json:"smtp"`
	AMQP      AMQP            `koanf:"amqp" json:"amqp"`
}

type AMQP struct {
	URL        string `koanf:"url" json:"url"`
	Exchange   string `koanf:"exchange" json:"exchange"`
	RoutingKey string `koanf:"routing_key" json:"routing_key"`
}

type Redis struct {
	URL               string `koanf:"url" json:"url"`
	LockTTLExpression string `koanf:"lock_ttl" json:"lock_ttl"`
}

type Kafka struct {
	Brokers []string `koanf:"brokers" json:"brokers"`
	Topic   string   `koanf:"topic" json:"topic"`
}

type Metrics struct {
	Address string `koanf:"address" json:"address"`
}

// Validate will run validation rules
func (c BaseConfig) Validate() error {
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Address, validation.Required),
	); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := validation.ValidateStruct(&c.Persistence,
		validation.Field(&c.Persistence.Driver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&c.Persistence.DSN, validation.Required),
	); err != nil {
		return fmt.Errorf("persistence: %w", err)
	}

	if err := validation.ValidateStruct(&c.Auth,
		validation.Field(&c.Auth.SigningKey, validation.When(c.Auth.JWKSetURL == "", validation.Required)),
		validation.Field(&c.Auth.JWKSetURL, is.URL),
	); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	if err := validation.ValidateStruct(&c.Mail,
		validation.Field(&c.Mail.Transport, validation.Required, validation.In("smtp", "amqp")),
	); err != nil {
		return fmt.Errorf("mail: %w", err)
	}

	if c.Mail.Transport == "amqp" && c.Mail.AMQP.URL == "" {
		return fmt.Errorf("mail: amqp url is required")
	}

	return nil
}

func (c BaseConfig) GetPersistence() Persistence {
	return c.Persistence
}

func (p Persistence) GetDebug() bool {
	return p.Debug
}

func (p Persistence) GetDriver() string {
	return p.Driver
}

func (p Persistence) GetServer() string {
	return p.Server
}

func (p Persistence) GetDSN() string {
	return p.DSN
}

func (p Persistence) GetOtelIdentifier() string {
	return p.OtelIdentifier
}

func (p Persistence) GetPingTimeout() time.Duration {
	return mustDuration(p.PingTimeoutExpression, 5*time.Second)
}

func (r Redis) GetLockTTL() time.Duration {
	return mustDuration(r.LockTTLExpression, 30*time.Second)
}

// Apply overlays the configured values on base
func (p Provisioning) Apply(base provisioning.Config) provisioning.Config {
	if p.Delivery != "" {
		base.Delivery = provisioning.DeliveryMode(p.Delivery)
	}
	if p.PhoneRegion != "" {
		base.PhoneRegion = p.PhoneRegion
	}
	if p.OperationTimeoutExpression != "" {
		base.OperationTimeout = mustDuration(p.OperationTimeoutExpression, base.OperationTimeout)
	}
	if p.ConfirmationLink != "" {
		base.Invitation.ConfirmationLink = p.ConfirmationLink
	}
	if p.LoginURL != "" {
		base.Invitation.LoginURL = p.LoginURL
	}
	if p.InvitationSubject != "" {
		base.Invitation.Subject = p.InvitationSubject
	}
	return base
}

func (p Provisioning) GetOutboxSchedule() string {
	if p.OutboxSchedule == "" {
		return provisioning.DefaultOutboxSchedule
	}
	return p.OutboxSchedule
}

func mustDuration(expr string, def time.Duration) time.Duration {
	if expr == "" {
		return def
	}
	dur, err := time.ParseDuration(expr)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", expr),
		)
	}
	return dur
}
