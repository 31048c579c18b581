package rbac

import (
	"regexp"
	"strings"
	"unicode/utf8"

	xerrors "backoffice-iam/internal/pkg/errors"
)

var (
	roleNamePattern      = regexp.MustCompile(`^[A-Z0-9_]+$`)
	permissionKeyPattern = regexp.MustCompile(`^[A-Z_]+:[A-Z_]+$`)
)

// NormalizeRoleName upper-cases and checks the role name.
func NormalizeRoleName(name string) (string, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if n := len(name); n < 3 || n > 50 {
		return "", xerrors.Invalid("role_name", "must be between 3 and 50 characters")
	}
	if !roleNamePattern.MatchString(name) {
		return "", xerrors.Invalid("role_name", "may contain only A-Z, 0-9 and underscore")
	}
	return name, nil
}

// ParseKey splits a MODULE:ACTION key after upper-casing it.
func ParseKey(key string) (string, Module, string, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if !permissionKeyPattern.MatchString(key) {
		return "", "", "", xerrors.Invalid("key", "must match MODULE:ACTION")
	}
	module, action, _ := strings.Cut(key, ":")
	return key, Module(module), action, nil
}

// DedupeIDs trims, drops blanks and keeps the first occurrence of each id.
func DedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
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

// ValidateRole checks a role's complete state.
func ValidateRole(r *Role) error {
	if _, err := NormalizeRoleName(r.RoleName); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(r.DisplayName)); n < 3 || n > 100 {
		return xerrors.Invalid("display_name", "must be between 3 and 100 characters")
	}
	if utf8.RuneCountInString(r.Description) > 500 {
		return xerrors.Invalid("description", "must be at most 500 characters")
	}
	if r.Level < 1 || r.Level > 10 {
		return xerrors.Invalid("level", "must be between 1 and 10")
	}
	if len(r.PermissionIDs) == 0 {
		return xerrors.Invalid("permissions", "a role must have at least one permission")
	}
	if len(DedupeIDs(r.PermissionIDs)) != len(r.PermissionIDs) {
		return xerrors.Invalid("permissions", "must not contain duplicates")
	}
	return nil
}

// ValidatePermission checks a permission's complete state.
func ValidatePermission(p *Permission) error {
	key, module, _, err := ParseKey(p.Key)
	if err != nil {
		return err
	}
	if key != p.Key {
		return xerrors.Invalid("key", "must be upper case")
	}
	if !p.Module.Valid() {
		return xerrors.Invalid("module", "unknown module %q", p.Module)
	}
	if module != p.Module {
		return xerrors.Invalid("key", "module prefix %q does not match module %q", module, p.Module)
	}
	if !p.Category.Valid() {
		return xerrors.Invalid("category", "unknown category %q", p.Category)
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(p.Name)); n < 1 || n > 100 {
		return xerrors.Invalid("name", "must be between 1 and 100 characters")
	}
	if utf8.RuneCountInString(p.Description) > 500 {
		return xerrors.Invalid("description", "must be at most 500 characters")
	}
	return nil
}
