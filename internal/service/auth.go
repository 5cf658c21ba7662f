package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/driveline/driveline/internal/auth"
	"github.com/driveline/driveline/internal/cache"
	"github.com/driveline/driveline/internal/email"
	"github.com/driveline/driveline/internal/metrics"
	"github.com/driveline/driveline/internal/model"
	"github.com/driveline/driveline/internal/repository"
)

// Auth service errors.
var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrInvalidToken = errors.New("invalid or expired magic link")
	ErrRateLimited  = errors.New("too many magic link requests")
	ErrUserNotFound = errors.New("user not found")
)

// AuthService handles magic link sign-in and JWT sessions.
type AuthService struct {
	repo        *repository.Repository
	cache       *cache.Cache
	mailer      email.Sender
	jwtSecret   []byte
	frontendURL string
	rateLimit   int
	rateWindow  time.Duration
	metrics     metrics.Recorder
	logger      *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	repo *repository.Repository,
	redisCache *cache.Cache,
	mailer email.Sender,
	jwtSecret string,
	frontendURL string,
	rateLimit int,
	rateWindow time.Duration,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *AuthService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AuthService{
		repo:        repo,
		cache:       redisCache,
		mailer:      mailer,
		jwtSecret:   []byte(jwtSecret),
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
		rateLimit:   rateLimit,
		rateWindow:  rateWindow,
		metrics:     recorder,
		logger:      logger.With("component", "service.auth"),
	}
}

// RequestMagicLink mints a single-use sign-in token and emails it. The
// account is created implicitly on first request. Issuing a new link
// invalidates any outstanding ones.
func (s *AuthService) RequestMagicLink(ctx context.Context, rawEmail, name string) error {
	addr, err := normalizeEmail(rawEmail)
	if err != nil {
		return ErrInvalidEmail
	}

	if s.cache != nil {
		limit, err := s.cache.CheckMagicLinkLimit(ctx, addr, s.rateLimit, s.rateWindow)
		if err != nil {
			return err
		}
		if !limit.Allowed {
			s.logger.Warn("magic link rate limited", "retry_after", limit.RetryAfter)
			return fmt.Errorf("%w: retry in %s", ErrRateLimited, limit.RetryAfter)
		}
	}

	user, err := s.findOrCreateUser(ctx, addr, name)
	if err != nil {
		return err
	}

	if err := s.repo.InvalidateUserTokens(ctx, user.ID); err != nil {
		return err
	}

	generated, err := auth.GenerateMagicToken()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	token := &model.MagicLinkToken{
		ID:          newULID(),
		UserID:      user.ID,
		Email:       addr,
		TokenPrefix: generated.Prefix,
		TokenHash:   generated.Hash,
		ExpiresAt:   now.Add(model.MagicLinkTTL),
		CreatedAt:   now,
	}
	if err := s.repo.CreateMagicLinkToken(ctx, token); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/auth/verify?token=%s", s.frontendURL, url.QueryEscape(generated.Plaintext))
	if err := s.mailer.SendMagicLink(ctx, addr, link, model.MagicLinkTTL); err != nil {
		return err
	}

	s.metrics.IncMagicLinkRequested()
	s.logger.Info("magic link issued", "user_id", user.ID)
	return nil
}

// VerifyMagicLink redeems a magic link token and returns a session JWT
// with the signed-in user.
func (s *AuthService) VerifyMagicLink(ctx context.Context, plaintext string) (string, *model.User, error) {
	parsed, err := auth.ParseMagicToken(strings.TrimSpace(plaintext))
	if err != nil {
		s.metrics.IncMagicLinkVerified("invalid")
		return "", nil, ErrInvalidToken
	}

	candidates, err := s.repo.GetMagicLinkTokensByPrefix(ctx, parsed.Prefix)
	if err != nil {
		return "", nil, err
	}

	for _, candidate := range candidates {
		ok, err := auth.VerifySecret(plaintext, candidate.TokenHash)
		if err != nil || !ok {
			continue
		}

		if candidate.IsExpired() || candidate.IsUsed() {
			break
		}

		// MarkTokenUsed fails if another request redeemed it first.
		if err := s.repo.MarkTokenUsed(ctx, candidate.ID); err != nil {
			break
		}

		user, err := s.repo.GetUserByID(ctx, candidate.UserID)
		if err != nil {
			return "", nil, err
		}

		session, err := auth.IssueSession(s.jwtSecret, user.ID, user.Email)
		if err != nil {
			return "", nil, err
		}

		s.metrics.IncMagicLinkVerified("success")
		s.logger.Info("magic link verified", "user_id", user.ID)
		return session, user, nil
	}

	s.metrics.IncMagicLinkVerified("invalid")
	return "", nil, ErrInvalidToken
}

// VerifySession validates a session JWT and returns the identity.
func (s *AuthService) VerifySession(tokenString string) (*auth.Identity, error) {
	claims, err := auth.ParseSession(s.jwtSecret, tokenString)
	if err != nil {
		return nil, err
	}
	return &auth.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// CurrentUser loads the account behind an identity.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) findOrCreateUser(ctx context.Context, addr, name string) (*model.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, addr)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	user = &model.User{
		ID:        newULID(),
		Email:     addr,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created", "user_id", user.ID)
	return user, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(addr.Address), nil
}
