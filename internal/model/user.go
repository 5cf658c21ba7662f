// Package model defines domain entities for the application.
package model

import "time"

// User represents an account identified by email.
// Accounts are created implicitly on the first magic link request.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
