package provisioning

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	passwordLower   = "abcdefghijkmnopqrstuvwxyz"
	passwordUpper   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordDigits  = "0123456789"
	passwordSymbols = "!@$?_-#%*"
)

// PasswordPolicy describes the passwords the identity store accepts
type PasswordPolicy struct {
	Length                 int  `json:"length"`
	RequiredUniqueChars    int  `json:"required_unique_chars"`
	RequireDigit           bool `json:"require_digit"`
	RequireLowercase       bool `json:"require_lowercase"`
	RequireUppercase       bool `json:"require_uppercase"`
	RequireNonAlphanumeric bool `json:"require_non_alphanumeric"`
}

// DefaultPasswordPolicy requires every character class
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		Length:                 12,
		RequiredUniqueChars:    4,
		RequireDigit:           true,
		RequireLowercase:       true,
		RequireUppercase:       true,
		RequireNonAlphanumeric: true,
	}
}

// Validate will run validation rules
func (p PasswordPolicy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Length, validation.Required, validation.Min(8), validation.Max(128)),
		validation.Field(&p.RequiredUniqueChars, validation.Min(0), validation.Max(p.Length)),
	)
}

// GeneratePassword returns a random password satisfying the policy
func GeneratePassword(policy PasswordPolicy) (string, error) {
	if policy.Length <= 0 {
		policy = DefaultPasswordPolicy()
	}

	var required []string
	if policy.RequireLowercase {
		required = append(required, passwordLower)
	}
	if policy.RequireUppercase {
		required = append(required, passwordUpper)
	}
	if policy.RequireDigit {
		required = append(required, passwordDigits)
	}
	if policy.RequireNonAlphanumeric {
		required = append(required, passwordSymbols)
	}

	if len(required) > policy.Length {
		return "", errors.New("password length is shorter than the required character classes")
	}

	alphabet := passwordLower + passwordUpper + passwordDigits
	if policy.RequireNonAlphanumeric {
		alphabet += passwordSymbols
	}

	for {
		out := make([]byte, 0, policy.Length)
		for _, set := range required {
			c, err := randomChar(set)
			if err != nil {
				return "", err
			}
			out = append(out, c)
		}

		for len(out) < policy.Length {
			c, err := randomChar(alphabet)
			if err != nil {
				return "", err
			}
			out = append(out, c)
		}

		if err := shuffle(out); err != nil {
			return "", err
		}

		if uniqueChars(out) >= policy.RequiredUniqueChars {
			return string(out), nil
		}
	}
}

// CheckPassword verifies a password against the policy
func CheckPassword(policy PasswordPolicy, password string) error {
	if len(password) < policy.Length {
		return errors.New("password is too short")
	}
	if policy.RequireLowercase && !strings.ContainsAny(password, passwordLower) {
		return errors.New("password must contain a lowercase letter")
	}
	if policy.RequireUppercase && !strings.ContainsAny(password, passwordUpper) {
		return errors.New("password must contain an uppercase letter")
	}
	if policy.RequireDigit && !strings.ContainsAny(password, passwordDigits) {
		return errors.New("password must contain a digit")
	}
	if policy.RequireNonAlphanumeric && !strings.ContainsAny(password, passwordSymbols) {
		return errors.New("password must contain a symbol")
	}
	if uniqueChars([]byte(password)) < policy.RequiredUniqueChars {
		return errors.New("password does not have enough unique characters")
	}
	return nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}

func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return err
		}
		j := n.Int64()
		b[i], b[j] = b[j], b[i]
	}
	return nil
}

func uniqueChars(b []byte) int {
	seen := make(map[byte]struct{}, len(b))
	for _, c := range b {
		seen[c] = struct{}{}
	}
	return len(seen)
}
