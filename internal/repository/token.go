package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/driveline/driveline/internal/model"
)

// Common errors for magic link token repository operations.
var (
	ErrTokenNotFound = errors.New("magic link token not found")
)

// CreateMagicLinkToken stores a new token hash.
func (r *Repository) CreateMagicLinkToken(ctx context.Context, token *model.MagicLinkToken) error {
	query := `
		INSERT INTO magic_link_tokens (id, user_id, email, token_prefix, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.Email,
		token.TokenPrefix,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create magic link token: %w", err)
	}

	return nil
}

// GetMagicLinkTokensByPrefix retrieves unredeemed, unexpired tokens with
// the given prefix. Prefixes are random so collisions are rare but
// possible; the caller verifies the hash.
func (r *Repository) GetMagicLinkTokensByPrefix(ctx context.Context, prefix string) ([]*model.MagicLinkToken, error) {
	query := `
		SELECT id, user_id, email, token_prefix, token_hash, expires_at, used_at, created_at
		FROM magic_link_tokens
		WHERE token_prefix = $1 AND used_at IS NULL AND expires_at > NOW()
	`

	rows, err := r.pool.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens by prefix: %w", err)
	}
	defer rows.Close()

	var tokens []*model.MagicLinkToken
	for rows.Next() {
		token, err := scanMagicLinkToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan magic link token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}

	return tokens, nil
}

// MarkTokenUsed redeems a token. Returns ErrTokenNotFound if the token
// was already redeemed, which makes redemption single-use under races.
func (r *Repository) MarkTokenUsed(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE magic_link_tokens
		SET used_at = NOW()
		WHERE id = $1 AND used_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTokenNotFound
	}

	return nil
}

// InvalidateUserTokens redeems all of a user's outstanding tokens.
// Called when a new magic link is issued so only the latest link works.
func (r *Repository) InvalidateUserTokens(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE magic_link_tokens
		SET used_at = NOW()
		WHERE user_id = $1 AND used_at IS NULL
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to invalidate tokens: %w", err)
	}

	return nil
}

// DeleteExpiredTokens removes tokens past their expiry. Run periodically.
func (r *Repository) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM magic_link_tokens
		WHERE expires_at < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	return result.RowsAffected(), nil
}

func scanMagicLinkToken(row pgx.Row) (*model.MagicLinkToken, error) {
	var token model.MagicLinkToken
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.Email,
		&token.TokenPrefix,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.CreatedAt,
	)
	return &token, err
}
