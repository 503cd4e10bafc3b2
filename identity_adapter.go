package provisioning

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IdentityStore is the credential store backing admin accounts
type IdentityStore interface {
	TokenIssuer

	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	CreateWithPasswordTx(ctx context.Context, tx bun.IDB, user *User, password string) (*User, error)
	UpdateTx(ctx context.Context, tx bun.IDB, user *User) error
	DeleteTx(ctx context.Context, tx bun.IDB, user *User) error
	AddToRoleTx(ctx context.Context, tx bun.IDB, user *User, role string) error
	UpdateSecurityStampTx(ctx context.Context, tx bun.IDB, user *User) error
	RemovePasswordTx(ctx context.Context, tx bun.IDB, user *User) error
	AddPasswordTx(ctx context.Context, tx bun.IDB, user *User, password string) error
	VerifyTokenTx(ctx context.Context, tx bun.IDB, user *User, purpose TokenPurpose, token string) error
	ConfirmEmailTx(ctx context.Context, tx bun.IDB, user *User, token string) error
}

// IdentityOption configures the bun identity store
type IdentityOption func(*identityStore)

// WithHashCost sets the bcrypt cost used for new passwords
func WithHashCost(cost int) IdentityOption {
	return func(s *identityStore) {
		s.hashCost = cost
	}
}

// WithKnownRoles replaces the role names AddToRoleTx accepts
func WithKnownRoles(roles ...string) IdentityOption {
	return func(s *identityStore) {
		s.roles = make(map[string]struct{}, len(roles))
		for _, r := range roles {
			s.roles[r] = struct{}{}
		}
	}
}

// WithTokenLifetime sets how long issued tokens stay valid
func WithTokenLifetime(ttl time.Duration) IdentityOption {
	return func(s *identityStore) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithIdentityClock overrides the time source
func WithIdentityClock(now func() time.Time) IdentityOption {
	return func(s *identityStore) {
		if now != nil {
			s.now = now
		}
	}
}

type identityStore struct {
	users    Users
	tokens   UserTokens
	hashCost int
	roles    map[string]struct{}
	tokenTTL time.Duration
	now      func() time.Time
}

var _ IdentityStore = (*identityStore)(nil)

// NewIdentityStore returns an IdentityStore backed by the users and
// user_tokens tables. Admin role names are registered by default.
func NewIdentityStore(repo RepositoryManager, opts ...IdentityOption) IdentityStore {
	roles := make([]string, 0, len(AdminRoles()))
	for _, r := range AdminRoles() {
		roles = append(roles, r.String())
	}

	s := &identityStore{
		users:    repo.Users(),
		tokens:   repo.UserTokens(),
		hashCost: DefaultHashCost,
		tokenTTL: 24 * time.Hour,
		now:      time.Now,
	}
	WithKnownRoles(roles...)(s)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *identityStore) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *identityStore) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return s.users.FindByIDTx(ctx, tx, id)
}

func (s *identityStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.users.FindByEmail(ctx, email)
}

func (s *identityStore) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return s.users.FindByEmailTx(ctx, tx, email)
}

func (s *identityStore) CreateWithPasswordTx(ctx context.Context, tx bun.IDB, user *User, password string) (*User, error) {
	hash, err := HashPasswordWithCost(password, s.hashCost)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password").
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	user.PasswordHash = hash
	user.SecurityStamp = newSecurityStamp()

	created, err := s.users.CreateTx(ctx, tx, user)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail(user.Email)
		}
		return nil, err
	}
	return created, nil
}

func (s *identityStore) UpdateTx(ctx context.Context, tx bun.IDB, user *User) error {
	user.Email = normalizeEmail(user.Email)
	user.Username = user.Email

	if err := s.users.UpdateProfileTx(ctx, tx, user); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail(user.Email)
		}
		return err
	}
	return nil
}

// DeleteTx removes the identity and every token issued to it
func (s *identityStore) DeleteTx(ctx context.Context, tx bun.IDB, user *User) error {
	if err := s.tokens.DeleteByUserTx(ctx, tx, user.ID); err != nil {
		return err
	}
	return s.users.DeleteByIDTx(ctx, tx, user.ID)
}

func (s *identityStore) AddToRoleTx(ctx context.Context, tx bun.IDB, user *User, role string) error {
	if _, ok := s.roles[role]; !ok {
		return goerrors.New("role does not exist: "+role, goerrors.CategoryOperation).
			WithTextCode(TextCodeIdentity).
			WithCode(goerrors.CodeInternal).
			WithMetadata(map[string]any{
				"role":    role,
				"user_id": user.ID.String(),
			})
	}

	if err := s.users.SetRoleTx(ctx, tx, user.ID, role); err != nil {
		return err
	}
	user.Role = role
	return nil
}

// UpdateSecurityStampTx rotates the stamp, which invalidates sessions and
// outstanding tokens
func (s *identityStore) UpdateSecurityStampTx(ctx context.Context, tx bun.IDB, user *User) error {
	stamp := newSecurityStamp()
	if err := s.users.SetSecurityStampTx(ctx, tx, user.ID, stamp); err != nil {
		return err
	}
	user.SecurityStamp = stamp
	return nil
}

func (s *identityStore) RemovePasswordTx(ctx context.Context, tx bun.IDB, user *User) error {
	if err := s.users.SetPasswordHashTx(ctx, tx, user.ID, ""); err != nil {
		return err
	}
	user.PasswordHash = ""
	return s.UpdateSecurityStampTx(ctx, tx, user)
}

func (s *identityStore) AddPasswordTx(ctx context.Context, tx bun.IDB, user *User, password string) error {
	current, err := s.users.FindByIDTx(ctx, tx, user.ID)
	if err != nil {
		return err
	}

	if current.PasswordHash != "" {
		return goerrors.New("user already has a password set", goerrors.CategoryOperation).
			WithTextCode(TextCodeIdentity).
			WithCode(goerrors.CodeConflict).
			WithMetadata(map[string]any{
				"user_id": user.ID.String(),
			})
	}

	hash, err := HashPasswordWithCost(password, s.hashCost)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password").
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	if err := s.users.SetPasswordHashTx(ctx, tx, user.ID, hash); err != nil {
		return err
	}
	user.PasswordHash = hash
	return s.UpdateSecurityStampTx(ctx, tx, user)
}

// GenerateTokenTx returns an opaque url safe token bound to the current
// security stamp. Only its hash is stored.
func (s *identityStore) GenerateTokenTx(ctx context.Context, tx bun.IDB, user *User, purpose TokenPurpose) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token")
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := s.now().UTC()
	record := &UserToken{
		ID:            uuid.New(),
		UserID:        user.ID,
		Purpose:       purpose,
		TokenHash:     hashToken(token),
		SecurityStamp: user.SecurityStamp,
		ExpiresAt:     now.Add(s.tokenTTL),
		CreatedAt:     &now,
	}

	if _, err := s.tokens.CreateTx(ctx, tx, record); err != nil {
		return "", err
	}
	return token, nil
}

// VerifyTokenTx checks and consumes a token issued for purpose
func (s *identityStore) VerifyTokenTx(ctx context.Context, tx bun.IDB, user *User, purpose TokenPurpose, token string) error {
	meta := map[string]any{
		"user_id": user.ID.String(),
		"purpose": string(purpose),
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return errTokenInvalid(meta)
	}

	record, err := s.tokens.FindActiveTx(ctx, tx, user.ID, purpose, hashToken(token))
	if err != nil {
		if IsNotFound(err) {
			return errTokenInvalid(meta)
		}
		return err
	}

	if record.SecurityStamp != user.SecurityStamp {
		return errTokenInvalid(meta)
	}

	now := s.now().UTC()
	if !now.Before(record.ExpiresAt) {
		return goerrors.New("token expired", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenExpired).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(meta)
	}

	if err := s.tokens.ConsumeTx(ctx, tx, record.ID, now); err != nil {
		if IsNotFound(err) {
			return errTokenInvalid(meta)
		}
		return err
	}
	return nil
}

// ConfirmEmailTx consumes an email confirmation token and marks the email
// of user as confirmed
func (s *identityStore) ConfirmEmailTx(ctx context.Context, tx bun.IDB, user *User, token string) error {
	if err := s.VerifyTokenTx(ctx, tx, user, PurposeEmailConfirmation, token); err != nil {
		return err
	}
	if err := s.users.SetEmailConfirmedTx(ctx, tx, user.ID, true); err != nil {
		return err
	}
	user.EmailConfirmed = true
	return nil
}

func errTokenInvalid(meta map[string]any) error {
	return goerrors.New("invalid token", goerrors.CategoryAuth).
		WithTextCode(TextCodeTokenInvalid).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(meta)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
