package models

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/desertthunder/umx/internal/shared"
)

// Canonical field names of a [UserRecord].
const (
	FieldUsername = "username"
	FieldPassword = "password"
	FieldEmail    = "email"
	FieldComment  = "comment"
)

// Entry is one item of a device collection, keyed by device field name.
type Entry map[string]string

// Schema describes one device API's user collection.
//
// Fields maps a canonical field name to the device field names that may carry it, in order of preference.
// On the read side the first present name wins; on the write side the first name is used.
type Schema struct {
	Path   string
	Fields map[string][]string
}

// SourceSchemaV6 returns the RouterOS 6 user-manager schema.
func SourceSchemaV6() Schema {
	return Schema{
		Path: "/tool/user-manager/user",
		Fields: map[string][]string{
			FieldUsername: {"username", "name"},
			FieldPassword: {"password"},
			FieldEmail:    {"email"},
		},
	}
}

// TargetSchemaV7 returns the RouterOS 7 user-manager schema, which has no email field.
func TargetSchemaV7() Schema {
	return Schema{
		Path: "/user-manager/user",
		Fields: map[string][]string{
			FieldUsername: {"name"},
			FieldPassword: {"password"},
			FieldComment:  {"comment"},
		},
	}
}

// SchemaFromConfig converts a configured field table, falling back to base for anything left unset.
func SchemaFromConfig(c shared.SchemaConfig, base Schema) Schema {
	s := Schema{Path: base.Path, Fields: make(map[string][]string, len(base.Fields))}
	for k, v := range base.Fields {
		s.Fields[k] = slices.Clone(v)
	}
	if p := strings.TrimSpace(c.Path); p != "" {
		s.Path = p
	}
	for k, v := range c.Fields {
		if len(v) > 0 {
			s.Fields[k] = slices.Clone(v)
		}
	}
	return s
}

// Lookup returns the value of a canonical field from a device entry.
func (s Schema) Lookup(e Entry, canonical string) (string, bool) {
	for _, name := range s.Fields[canonical] {
		if v, ok := e[name]; ok {
			return v, true
		}
	}
	return "", false
}

// Name returns the device field name written for a canonical field, or "" when unmapped.
func (s Schema) Name(canonical string) string {
	if names := s.Fields[canonical]; len(names) > 0 {
		return names[0]
	}
	return ""
}

// Require checks that every canonical field is mapped.
func (s Schema) Require(canonical ...string) error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("%w: schema has no resource path", shared.ErrInvalidConfig)
	}
	for _, c := range canonical {
		if s.Name(c) == "" {
			return fmt.Errorf("%w: schema %s does not map field %q", shared.ErrInvalidConfig, s.Path, c)
		}
	}
	return nil
}

// String renders the schema as "path {canonical:device ...}" in sorted order.
func (s Schema) String() string {
	var b strings.Builder
	b.WriteString(s.Path)
	b.WriteString(" {")
	for i, k := range slices.Sorted(maps.Keys(s.Fields)) {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s:%s", k, strings.Join(s.Fields[k], "|"))
	}
	b.WriteByte('}')
	return b.String()
}
