package dto

import (
	"time"

	"github.com/driveline/driveline/internal/model"
)

// MagicLinkRequest represents the request body for requesting a magic link.
type MagicLinkRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// VerifyRequest represents the request body for redeeming a magic link.
type VerifyRequest struct {
	Token string `json:"token"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionResponse carries the session token issued after verification.
type SessionResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expires_in"`
	User      UserResponse `json:"user"`
}

// ToUserResponse converts a user model to its API representation.
func ToUserResponse(user *model.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		CreatedAt: user.CreatedAt,
	}
}
