package model

import "time"

// Roles stored in users.role.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User represents an application user record as stored in the `users`
// table.  Users are never hard deleted; IsActive=false deactivates them.
//
// Fields:
//
//	ID            – primary key identifier of the user.
//	Name          – display name.
//	Email         – unique, lower-cased email address.
//	PasswordHash  – bcrypt hash; never serialized.
//	Role          – admin or user.
//	Phone, Avatar – optional profile attributes.
//	IsActive      – false for deactivated accounts, which cannot log in.
//	EmailVerified – whether the email address was confirmed.
type User struct {
	ID            uint64    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Role          string    `json:"role"`
	Phone         *string   `json:"phone,omitempty"`
	Avatar        *string   `json:"avatar,omitempty"`
	IsActive      bool      `json:"is_active"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token handed to the client is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

// PasswordReset is a single-use reset token row.  TokenHash is the SHA-256 of
// the token emailed to the user.
type PasswordReset struct {
	ID        uint64
	Email     string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}
