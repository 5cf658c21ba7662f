package model

import "time"

// MagicLinkTTL is how long a magic link token stays valid.
const MagicLinkTTL = 15 * time.Minute

// MagicLinkToken is a single-use login token delivered by email.
// Only the argon2id hash is stored; the prefix allows lookup without
// knowing the secret.
type MagicLinkToken struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Email       string     `json:"email"`
	TokenPrefix string     `json:"token_prefix"`
	TokenHash   string     `json:"-"` // never serialize
	ExpiresAt   time.Time  `json:"expires_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsExpired reports whether the token is past its expiry.
func (t *MagicLinkToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsUsed reports whether the token has already been redeemed.
func (t *MagicLinkToken) IsUsed() bool {
	return t.UsedAt != nil
}
