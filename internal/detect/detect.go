package detect

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"

	"github.com/ignite/list-builder/internal/metabase"
)

// normalize folds full-width characters and case so that "ＥＭＡＩＬ",
// "Email" and "email" compare equal.
func normalize(s string) string {
	return cases.Fold().String(width.Fold.String(strings.TrimSpace(s)))
}

// sameBaseType compares base type tags with or without the "type/" prefix.
func sameBaseType(a, b string) bool {
	trim := func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), "type/")
	}
	return trim(a) == trim(b)
}

// DetectRole returns the id of the field that best matches patterns.
//
// When preferredType is set, a typed pass runs first: for each pattern in
// order, the first field whose name equals or contains the pattern and
// whose base type is preferredType wins. This keeps boolean flags like
// "used_for_email_marketing" from beating a text "email" column. The
// untyped pass then accepts any field whose name or display name contains
// the pattern.
func DetectRole(fields []metabase.Field, patterns []string, preferredType string) (int, bool) {
	if preferredType != "" {
		for _, p := range patterns {
			p = normalize(p)
			for _, f := range fields {
				name := normalize(f.Name)
				if (name == p || strings.Contains(name, p)) && sameBaseType(f.BaseType, preferredType) {
					return f.ID, true
				}
			}
		}
	}

	for _, p := range patterns {
		p = normalize(p)
		for _, f := range fields {
			if strings.Contains(normalize(f.Name), p) || strings.Contains(normalize(f.DisplayName), p) {
				return f.ID, true
			}
		}
	}

	return 0, false
}

// Mapping holds the field resolved for each role.
type Mapping map[Role]metabase.Field

// Column returns the column name resolved for role, or "".
func (m Mapping) Column(role Role) string {
	if f, ok := m[role]; ok {
		return f.Name
	}
	return ""
}

// Detector resolves roles against a detection table.
type Detector struct {
	roles []RolePatterns
}

// New creates a Detector for the given table. A nil table uses DefaultRoles.
func New(roles []RolePatterns) *Detector {
	if roles == nil {
		roles = DefaultRoles
	}
	return &Detector{roles: roles}
}

// Resolve maps each role to a field. Roles claim fields in table order and
// a field is never assigned to two roles.
func (d *Detector) Resolve(fields []metabase.Field) Mapping {
	m := Mapping{}
	available := append([]metabase.Field(nil), fields...)

	for _, rp := range d.roles {
		id, ok := DetectRole(available, rp.Patterns, rp.PreferredType)
		if !ok {
			continue
		}
		for i, f := range available {
			if f.ID == id {
				m[rp.Role] = f
				available = append(available[:i], available[i+1:]...)
				break
			}
		}
	}
	return m
}

// Columns returns the fields to request for an export: resolved roles in
// table order, or the first fallbackN fields when no role resolved. It
// never returns an empty list for a non-empty field set.
func (d *Detector) Columns(fields []metabase.Field, m Mapping, fallbackN int) []metabase.Field {
	cols := make([]metabase.Field, 0, len(d.roles))
	for _, rp := range d.roles {
		if f, ok := m[rp.Role]; ok {
			cols = append(cols, f)
		}
	}
	if len(cols) > 0 {
		return cols
	}

	if fallbackN <= 0 || fallbackN > len(fields) {
		fallbackN = len(fields)
	}
	return append(cols, fields[:fallbackN]...)
}

// LooksLikeEmail reports whether a value appears to be an email address.
func LooksLikeEmail(val string) bool {
	v := strings.TrimSpace(val)
	if len(v) < 5 || len(v) > 254 {
		return false
	}
	at := strings.LastIndex(v, "@")
	if at < 1 || at >= len(v)-1 {
		return false
	}
	domain := v[at+1:]
	return strings.Contains(domain, ".") && len(domain) >= 3
}
