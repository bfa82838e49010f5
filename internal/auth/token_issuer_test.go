package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerIssuesShellTokens(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "loom-backend",
		Audience:      "loom-shell",
		TokenTTL:      30 * time.Minute,
	})

	tokenString, expiresIn, err := issuer.IssueShellToken(context.Background(), "session-123")
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if expiresIn <= 0 {
		t.Fatalf("expected positive expiry seconds, got %d", expiresIn)
	}

	parser := jwt.Parser{}
	claims := &jwt.RegisteredClaims{}
	_, err = parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}

	if claims.Subject != "session-123" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != "loom-backend" {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if len(claims.Audience) == 0 || claims.Audience[0] != "loom-shell" {
		t.Fatalf("unexpected audience %#v", claims.Audience)
	}
}

func TestTokenIssuerValidatesIssuedTokens(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("another-secret"),
		Issuer:        "loom-backend",
		Audience:      "loom-shell",
		TokenTTL:      15 * time.Minute,
	})

	tokenString, _, err := issuer.IssueShellToken(context.Background(), "session-321")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	sessionID, err := issuer.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if sessionID != "session-321" {
		t.Fatalf("unexpected session id %s", sessionID)
	}

	if _, err := issuer.ValidateToken("invalid.token"); err == nil {
		t.Fatalf("expected validation to fail for malformed token")
	}
}

func TestTokenIssuerRejectsExpiredTokens(t *testing.T) {
	issuedAt := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	currentTime := issuedAt
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("rotating-secret"),
		Issuer:        "loom-backend",
		Audience:      "loom-shell",
		TokenTTL:      time.Minute,
		Clock:         func() time.Time { return currentTime },
	})

	tokenString, _, err := issuer.IssueShellToken(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	currentTime = issuedAt.Add(2 * time.Minute)
	if _, err := issuer.ValidateToken(tokenString); err == nil {
		t.Fatalf("expected validation to fail after expiry")
	}
}

func TestTokenIssuerRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("secret-a"),
		Issuer:        "loom-backend",
		Audience:      "loom-shell",
	})
	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("secret-b"),
		Issuer:        "loom-backend",
		Audience:      "loom-shell",
	})

	tokenString, _, err := issuer.IssueShellToken(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}
	if _, err := other.ValidateToken(tokenString); err == nil {
		t.Fatalf("expected validation to fail for a foreign signature")
	}
}

func TestTokenIssuerRequiresSecretAndSubject(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{})
	if _, _, err := issuer.IssueShellToken(context.Background(), "session-1"); err == nil {
		t.Fatalf("expected issuance to fail without a signing secret")
	}

	issuer = NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret")})
	if _, _, err := issuer.IssueShellToken(context.Background(), ""); err == nil {
		t.Fatalf("expected issuance to fail without a session id")
	}
}
