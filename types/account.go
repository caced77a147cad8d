package types

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Roles form a closed set; anything else is rejected at the boundary.
const (
	RoleUser      = "user"
	RoleGuide     = "guide"
	RoleLeadGuide = "lead-guide"
	RoleAdmin     = "admin"
)

// ValidRole reports whether role belongs to the closed role set.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin:
		return true
	}
	return false
}

// Account represents a user account.
type Account struct {
	// ID is the unique identifier of the account.
	ID bson.ObjectID `json:"id" bson:"_id,omitempty"`

	// Name is the account holder's display name.
	Name string `json:"name" bson:"name"`

	// Email is the unique, lower-cased email address used to sign in.
	Email string `json:"email" bson:"email"`

	// Photo is the object-storage key of the profile photo.
	Photo string `json:"photo" bson:"photo"`

	// Role is one of user, guide, lead-guide, admin.
	Role string `json:"role" bson:"role"`

	// PasswordHash stores the bcrypt hash of the password.
	// It is never exposed in API responses.
	PasswordHash string `json:"-" bson:"password_hash"`

	// PasswordChangedAt is set whenever the password is replaced.
	// It is zero for accounts that never changed their password.
	PasswordChangedAt time.Time `json:"-" bson:"password_changed_at,omitempty"`

	// ResetTokenHash holds the SHA-256 of an outstanding password-reset
	// secret. Always set and cleared together with ResetExpiresAt.
	ResetTokenHash string `json:"-" bson:"reset_token_hash,omitempty"`

	// ResetExpiresAt bounds the lifetime of the outstanding reset secret.
	ResetExpiresAt time.Time `json:"-" bson:"reset_expires_at,omitempty"`

	// Active is the soft-delete flag. Inactive accounts are excluded
	// from all normal lookups.
	Active bool `json:"-" bson:"active"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" bson:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// PasswordChangedAfter reports whether the password was replaced strictly
// after t. Accounts that never changed their password always report false.
func (a Account) PasswordChangedAfter(t time.Time) bool {
	if a.PasswordChangedAt.IsZero() {
		return false
	}
	return a.PasswordChangedAt.After(t)
}
