package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-at-least-32-bytes-long!")

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	token, err := IssueSession(testSecret, "usr_123", "driver@example.com")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	claims, err := ParseSession(testSecret, token)
	if err != nil {
		t.Fatalf("ParseSession: %v", err)
	}
	if claims.Subject != "usr_123" {
		t.Errorf("subject = %s", claims.Subject)
	}
	if claims.Email != "driver@example.com" {
		t.Errorf("email = %s", claims.Email)
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < SessionTTL-time.Minute || remaining > SessionTTL {
		t.Errorf("token lifetime = %v, want ~%v", remaining, SessionTTL)
	}
}

func TestParseSession_WrongSecret(t *testing.T) {
	t.Parallel()

	token, err := IssueSession(testSecret, "usr_123", "driver@example.com")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	if _, err := ParseSession([]byte("other-secret"), token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}
}

func TestParseSession_Expired(t *testing.T) {
	t.Parallel()

	claims := SessionClaims{
		Email: "driver@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "usr_123",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-8 * 24 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-24 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ParseSession(testSecret, token); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
}

func TestParseSession_RejectsUnsignedToken(t *testing.T) {
	t.Parallel()

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "usr_123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ParseSession(testSecret, token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}
}

func TestParseSession_MissingSubject(t *testing.T) {
	t.Parallel()

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ParseSession(testSecret, token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}
}
