package models

import (
	"strings"
	"time"
)

// User represents a local account bound to a provider identity
type User struct {
	ID             int        `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	RealName       string     `json:"real_name"`
	EmailConfirmed bool       `json:"email_confirmed"`
	AuthToken      string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
}

// Validate checks that a user has the fields required for provisioning
func (u *User) Validate() []string {
	var errors []string

	if strings.TrimSpace(u.Username) == "" {
		errors = append(errors, "username is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		errors = append(errors, "email is required")
	} else if !strings.Contains(u.Email, "@") {
		errors = append(errors, "email must contain @")
	}

	return errors
}

// EmailDomain returns the part of the email after the last @, or empty
// string if there is none. No normalization is applied.
func (u *User) EmailDomain() string {
	return EmailDomain(u.Email)
}

// EmailDomain returns the substring after the last @ in the given address.
func EmailDomain(email string) string {
	idx := strings.LastIndex(email, "@")
	if idx < 0 {
		return ""
	}
	return email[idx+1:]
}
