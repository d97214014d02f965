package models

import (
	"fmt"
	"strings"

	"github.com/desertthunder/umx/internal/shared"
)

// EmailPlaceholder marks a record without an email, in the CSV artifact and in the target comment.
const EmailPlaceholder = "none"

// UserRecord is a user-manager account in canonical form.
//
// A record without an email has HasEmail false; an email that is present but blank has HasEmail true.
// The password is sensitive: [UserRecord.String] and every error built from a record omit it.
type UserRecord struct {
	Username string
	Password string
	Email    string
	HasEmail bool
}

// NewUserRecord builds a record from a raw device entry using the schema's field table.
//
// Missing username or password fields produce empty values; they are rejected at replication, not here.
func NewUserRecord(e Entry, s Schema) UserRecord {
	username, _ := s.Lookup(e, FieldUsername)
	password, _ := s.Lookup(e, FieldPassword)
	email, hasEmail := s.Lookup(e, FieldEmail)

	return UserRecord{
		Username: username,
		Password: password,
		Email:    email,
		HasEmail: hasEmail,
	}
}

// RecordsFromEntries builds one record per entry, preserving order.
func RecordsFromEntries(entries []Entry, s Schema) []UserRecord {
	records := make([]UserRecord, len(entries))
	for i, e := range entries {
		records[i] = NewUserRecord(e, s)
	}
	return records
}

// Validate reports whether the record is eligible for replication.
//
// A username made only of whitespace counts as missing; the password is checked as is,
// since spaces are legal password characters on the device.
func (u UserRecord) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("%w: missing username", shared.ErrInvalidRecord)
	}
	if u.Password == "" {
		return fmt.Errorf("%w: missing password for %q", shared.ErrInvalidRecord, u.Username)
	}
	return nil
}

// EmailOrPlaceholder returns the email, or [EmailPlaceholder] when the record has none.
func (u UserRecord) EmailOrPlaceholder() string {
	if !u.HasEmail {
		return EmailPlaceholder
	}
	return u.Email
}

// Comment renders the target-side comment that carries the email.
func (u UserRecord) Comment() string {
	return "Email: " + u.EmailOrPlaceholder()
}

// EmailFromComment recovers the email carried by a target-side comment.
//
// It reports false when the comment was not written by [UserRecord.Comment] or carries the placeholder.
func EmailFromComment(comment string) (string, bool) {
	email, ok := strings.CutPrefix(comment, "Email: ")
	if !ok || email == EmailPlaceholder {
		return "", false
	}
	return email, true
}

// Payload builds the create parameters for the target schema.
func (u UserRecord) Payload(target Schema) (Entry, error) {
	if err := target.Require(FieldUsername, FieldPassword, FieldComment); err != nil {
		return nil, err
	}

	return Entry{
		target.Name(FieldUsername): u.Username,
		target.Name(FieldPassword): u.Password,
		target.Name(FieldComment):  u.Comment(),
	}, nil
}

// String identifies the record for logs and messages without the password.
func (u UserRecord) String() string {
	if u.HasEmail && u.Email != "" {
		return fmt.Sprintf("%s <%s>", u.Username, u.Email)
	}
	return u.Username
}
