package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Magic link token format: ml_{prefix}_{secret}
// Example: ml_7a9x3k_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
//
// Only the Argon2id hash is stored; the prefix is kept alongside it so a
// presented token can be looked up without scanning every hash.
const (
	TokenPrefixLen = 6  // Visible prefix length (hex encoded 3 bytes)
	TokenSecretLen = 32 // Secret length (hex encoded 16 bytes)
)

var (
	// ErrInvalidTokenFormat indicates the token format is invalid.
	ErrInvalidTokenFormat = errors.New("invalid magic link token format")
	// tokenFormatRegex validates the token format.
	tokenFormatRegex = regexp.MustCompile(`^ml_([a-f0-9]{6})_([a-f0-9]{32})$`)
)

// GeneratedToken contains the parts of a newly minted magic link token.
type GeneratedToken struct {
	Plaintext string // Full token (goes into the email link, never stored)
	Hash      string // Argon2id hash for storage
	Prefix    string // 6-char prefix for lookup
}

// GenerateMagicToken mints a new single-use magic link token.
func GenerateMagicToken() (*GeneratedToken, error) {
	prefixBytes := make([]byte, 3)
	if _, err := rand.Read(prefixBytes); err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	prefix := hex.EncodeToString(prefixBytes)

	secretBytes := make([]byte, 16)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	plaintext := fmt.Sprintf("ml_%s_%s", prefix, secret)

	hash, err := HashSecret(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash token: %w", err)
	}

	return &GeneratedToken{
		Plaintext: plaintext,
		Hash:      hash,
		Prefix:    prefix,
	}, nil
}

// ParsedToken contains the parsed parts of a magic link token.
type ParsedToken struct {
	Prefix string
	Secret string
}

// ParseMagicToken extracts the components from a plaintext token.
func ParseMagicToken(token string) (*ParsedToken, error) {
	matches := tokenFormatRegex.FindStringSubmatch(token)
	if matches == nil {
		return nil, ErrInvalidTokenFormat
	}

	return &ParsedToken{
		Prefix: matches[1],
		Secret: matches[2],
	}, nil
}

// ValidTokenFormat checks if the token matches the expected format.
func ValidTokenFormat(token string) bool {
	return tokenFormatRegex.MatchString(token)
}
