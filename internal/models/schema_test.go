package models

import (
	"errors"
	"testing"

	"github.com/desertthunder/umx/internal/shared"
)

func TestSchemaLookup(t *testing.T) {
	s := SourceSchemaV6()

	if v, ok := s.Lookup(Entry{"name": "bob"}, FieldUsername); !ok || v != "bob" {
		t.Errorf("expected bob via alias, got %q (%v)", v, ok)
	}
	if _, ok := s.Lookup(Entry{"name": "bob"}, FieldEmail); ok {
		t.Error("expected email to be absent")
	}
	if _, ok := s.Lookup(Entry{"x": "y"}, "unknown"); ok {
		t.Error("expected unmapped field to be absent")
	}
}

func TestSchemaName(t *testing.T) {
	s := TargetSchemaV7()

	if got := s.Name(FieldUsername); got != "name" {
		t.Errorf("expected name, got %q", got)
	}
	if got := s.Name(FieldEmail); got != "" {
		t.Errorf("expected no email field on target, got %q", got)
	}
}

func TestSchemaRequire(t *testing.T) {
	if err := TargetSchemaV7().Require(FieldUsername, FieldPassword, FieldComment); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := TargetSchemaV7().Require(FieldEmail); !errors.Is(err, shared.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	if err := (Schema{}).Require(); !errors.Is(err, shared.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for empty path, got %v", err)
	}
}

func TestSchemaFromConfig(t *testing.T) {
	t.Run("empty config keeps base", func(t *testing.T) {
		s := SchemaFromConfig(shared.SchemaConfig{}, SourceSchemaV6())
		if s.Path != "/tool/user-manager/user" {
			t.Errorf("unexpected path %q", s.Path)
		}
		if s.Name(FieldUsername) != "username" {
			t.Errorf("unexpected username field %q", s.Name(FieldUsername))
		}
	})

	t.Run("overrides", func(t *testing.T) {
		c := shared.SchemaConfig{
			Path:   "/custom/user",
			Fields: map[string][]string{FieldUsername: {"login"}, FieldPassword: nil},
		}
		s := SchemaFromConfig(c, SourceSchemaV6())
		if s.Path != "/custom/user" {
			t.Errorf("unexpected path %q", s.Path)
		}
		if s.Name(FieldUsername) != "login" {
			t.Errorf("expected login, got %q", s.Name(FieldUsername))
		}
		if s.Name(FieldPassword) != "password" {
			t.Errorf("empty override should keep base, got %q", s.Name(FieldPassword))
		}
	})

	t.Run("does not alias base", func(t *testing.T) {
		base := SourceSchemaV6()
		s := SchemaFromConfig(shared.SchemaConfig{}, base)
		s.Fields[FieldUsername][0] = "changed"
		if base.Fields[FieldUsername][0] != "username" {
			t.Error("base schema was modified")
		}
	})
}

func TestSchemaString(t *testing.T) {
	got := TargetSchemaV7().String()
	want := "/user-manager/user {comment:comment password:password username:name}"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
