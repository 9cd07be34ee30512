package models

import "time"

// Role tags what a user account is allowed to do.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	Nickname     string    `json:"nickname,omitempty"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName is the name shown in the page header.
func (u *User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}

// Session represents a user session.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`

	// Persistent sessions outlive the browser; others end with it.
	Persistent bool `json:"persistent"`
}

// AuthState is what the auth pages know about the current visitor.
type AuthState struct {
	User    *User   `json:"user"`
	Token   *string `json:"token"`
	Loading bool    `json:"loading"`
	Error   string  `json:"error,omitempty"`
}

// LoginParams are the credentials submitted by the login form or API.
type LoginParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// AuthResponse is returned by a successful API login.
type AuthResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}
