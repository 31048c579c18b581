package admin

import (
	"regexp"
	"strings"
	"unicode/utf8"

	xerrors "backoffice-iam/internal/pkg/errors"
)

const (
	MinPasswordLength = 8
	MaxPasswordBytes  = 72
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	supportedLanguages = map[string]bool{"en": true, "es": true, "fr": true, "de": true, "hi": true}
)

// NormalizeEmail trims and lowercases email and checks its shape.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", xerrors.Invalid("email", "is required")
	}
	if !emailPattern.MatchString(email) {
		return "", xerrors.Invalid("email", "is not a valid address")
	}
	return email, nil
}

// ValidatePasswordPolicy applies the account password policy. Hashing has its
// own, narrower limits.
func ValidatePasswordPolicy(password string) error {
	if len(password) < MinPasswordLength {
		return xerrors.Invalid("password", "must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return xerrors.Invalid("password", "must be at most %d bytes", MaxPasswordBytes)
	}
	return nil
}

// NormalizeProfile trims names, fills locale defaults and validates ranges.
func NormalizeProfile(p Profile) (Profile, error) {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Phone = strings.TrimSpace(p.Phone)
	if err := nameLength("first_name", p.FirstName); err != nil {
		return p, err
	}
	if err := nameLength("last_name", p.LastName); err != nil {
		return p, err
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	p.Language = strings.ToLower(strings.TrimSpace(p.Language))
	if p.Language == "" {
		p.Language = "en"
	}
	if !supportedLanguages[p.Language] {
		return p, xerrors.Invalid("language", "unsupported language %q", p.Language)
	}
	return p, nil
}

func nameLength(field, v string) error {
	n := utf8.RuneCountInString(v)
	if n < 2 || n > 50 {
		return xerrors.Invalid(field, "must be between 2 and 50 characters")
	}
	return nil
}
