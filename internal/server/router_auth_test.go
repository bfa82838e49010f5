package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/loomlabs/loom/backend/internal/auth"
	"github.com/loomlabs/loom/backend/internal/scheduler"
	"github.com/loomlabs/loom/backend/internal/stories"
	"go.uber.org/zap"
)

const (
	testSigningSecret = "router-signing-secret"
	testPairingSecret = "router-launch-secret"
)

type noopPersister struct{}

func (noopPersister) UpdateActiveSnapshotContent(_ context.Context, _ stories.StoryID, content string, _ int64) (stories.Snapshot, error) {
	return stories.Snapshot{Content: content}, nil
}

func (noopPersister) CreateSnapshot(_ context.Context, _ stories.StoryID, content string) (stories.Snapshot, error) {
	return stories.Snapshot{Content: content}, nil
}

func newTestHandler(testContext *testing.T) http.Handler {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	persistenceScheduler, err := scheduler.New(scheduler.Config{Persister: noopPersister{}})
	if err != nil {
		testContext.Fatalf("failed to construct scheduler: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager: auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte(testSigningSecret),
			Issuer:        "loom-backend",
			Audience:      "loom-shell",
		}),
		StoriesService: &stories.Service{},
		Scheduler:      persistenceScheduler,
		PairingSecret:  testPairingSecret,
		Logger:         zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func TestPairRejectsWrongSecret(testContext *testing.T) {
	handler := newTestHandler(testContext)
	recorder := httptest.NewRecorder()

	request := httptest.NewRequest(http.MethodPost, "/session/pair", strings.NewReader(`{"pairing_secret":"wrong"}`))
	request.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		testContext.Fatalf("expected unauthorized status, got %d", recorder.Code)
	}
}

func TestPairRejectsBlankSecret(testContext *testing.T) {
	handler := newTestHandler(testContext)
	recorder := httptest.NewRecorder()

	request := httptest.NewRequest(http.MethodPost, "/session/pair", strings.NewReader(`{"pairing_secret":"  "}`))
	request.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		testContext.Fatalf("expected bad request status, got %d", recorder.Code)
	}
}

func TestPairIssuesShellTokenAcceptedByProtectedRoutes(testContext *testing.T) {
	handler := newTestHandler(testContext)
	recorder := httptest.NewRecorder()

	request := httptest.NewRequest(http.MethodPost, "/session/pair", strings.NewReader(`{"pairing_secret":"`+testPairingSecret+`"}`))
	request.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected pairing to succeed, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var pairResponse pairResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &pairResponse); err != nil {
		testContext.Fatalf("failed to decode pair response: %v", err)
	}
	if pairResponse.AccessToken == "" {
		testContext.Fatalf("expected a non-empty access token")
	}
	if pairResponse.TokenType != "Bearer" {
		testContext.Fatalf("unexpected token type %q", pairResponse.TokenType)
	}
	if pairResponse.ExpiresIn <= 0 {
		testContext.Fatalf("expected a positive expiry, got %d", pairResponse.ExpiresIn)
	}

	protectedRecorder := httptest.NewRecorder()
	protectedRequest := httptest.NewRequest(http.MethodGet, "/stories", http.NoBody)
	protectedRequest.Header.Set("Authorization", "Bearer "+pairResponse.AccessToken)
	handler.ServeHTTP(protectedRecorder, protectedRequest)

	if protectedRecorder.Code == http.StatusUnauthorized {
		testContext.Fatalf("valid shell token was rejected: %s", protectedRecorder.Body.String())
	}
}

func TestProtectedRoutesRequireAuthorization(testContext *testing.T) {
	handler := newTestHandler(testContext)
	testCases := []struct {
		name   string
		header string
	}{
		{name: "missing-header", header: ""},
		{name: "wrong-scheme", header: "Basic abc"},
		{name: "empty-token", header: "Bearer "},
		{name: "garbage-token", header: "Bearer not.a.jwt"},
	}

	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(testContext *testing.T) {
			recorder := httptest.NewRecorder()
			request := httptest.NewRequest(http.MethodGet, "/stories", http.NoBody)
			if testCase.header != "" {
				request.Header.Set("Authorization", testCase.header)
			}
			handler.ServeHTTP(recorder, request)

			if recorder.Code != http.StatusUnauthorized {
				testContext.Fatalf("expected unauthorized status, got %d", recorder.Code)
			}
		})
	}
}
