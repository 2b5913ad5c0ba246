/**
 * @description
 * This file defines the core domain models for customer identity: the profile
 * record, its lifecycle status, the roles used for admin authorization, and the
 * server-owned transfer PIN credential.
 *
 * @notes
 * - The profile id is the subject of the bearer token issued by the identity
 *   provider, so no separate external-id lookup is needed.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Profile lifecycle states.
const (
	ProfileStatusActive   = "active"
	ProfileStatusInactive = "inactive"
	ProfileStatusBlocked  = "blocked"
)

// Roles stored in user_roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Profile represents a customer identity record from the `profiles` table.
type Profile struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	FullName          string     `json:"full_name"`
	FirstName         *string    `json:"first_name,omitempty"`
	LastName          *string    `json:"last_name,omitempty"`
	Username          *string    `json:"username,omitempty"`
	Phone             *string    `json:"phone,omitempty"`
	Country           *string    `json:"country,omitempty"`
	Address           *string    `json:"address,omitempty"`
	DateOfBirth       *string    `json:"date_of_birth,omitempty"`
	Age               *int       `json:"age,omitempty"`
	ProfilePictureURL *string    `json:"profile_picture_url,omitempty"`
	Status            string     `json:"status"`
	HasTransferPIN    bool       `json:"has_transfer_pin"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// DisplayName returns the name shown to counterparties, falling back to "User".
func (p *Profile) DisplayName() string {
	if p == nil || p.FullName == "" {
		return "User"
	}
	return p.FullName
}

// CreateProfileRequest is the DTO for the signup bootstrap call.
type CreateProfileRequest struct {
	Email    string  `json:"email"`
	FullName string  `json:"full_name"`
	Username *string `json:"username,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Country  *string `json:"country,omitempty"`
}

// UpdateProfileRequest carries the editable profile fields. Nil fields are left unchanged.
type UpdateProfileRequest struct {
	FullName          *string `json:"full_name,omitempty"`
	FirstName         *string `json:"first_name,omitempty"`
	LastName          *string `json:"last_name,omitempty"`
	Email             *string `json:"email,omitempty"`
	Username          *string `json:"username,omitempty"`
	Phone             *string `json:"phone,omitempty"`
	Country           *string `json:"country,omitempty"`
	Address           *string `json:"address,omitempty"`
	DateOfBirth       *string `json:"date_of_birth,omitempty"`
	ProfilePictureURL *string `json:"profile_picture_url,omitempty"`
}

// IsEmpty reports whether the request changes nothing.
func (r UpdateProfileRequest) IsEmpty() bool {
	return r.FullName == nil && r.FirstName == nil && r.LastName == nil && r.Email == nil &&
		r.Username == nil && r.Phone == nil && r.Country == nil && r.Address == nil &&
		r.DateOfBirth == nil && r.ProfilePictureURL == nil
}

// IsValidProfileStatus reports whether status is one of the known profile states.
func IsValidProfileStatus(status string) bool {
	switch status {
	case ProfileStatusActive, ProfileStatusInactive, ProfileStatusBlocked:
		return true
	}
	return false
}

// UserSecurityCredential stores server-owned transfer PIN security metadata.
type UserSecurityCredential struct {
	UserID             uuid.UUID  `json:"user_id"`
	TransactionPINHash string     `json:"-"`
	FailedAttempts     int        `json:"failed_attempts"`
	LockedUntil        *time.Time `json:"locked_until,omitempty"`
}

// IsLocked reports whether the credential is inside an active lockout window.
func (c *UserSecurityCredential) IsLocked(now time.Time) bool {
	return c != nil && c.LockedUntil != nil && c.LockedUntil.After(now)
}
