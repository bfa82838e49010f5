package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/loomlabs/loom/backend/internal/auth"
	"github.com/loomlabs/loom/backend/internal/scheduler"
	"github.com/loomlabs/loom/backend/internal/server"
	"github.com/loomlabs/loom/backend/internal/stories"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	shellSigningSecret = "integration-signing-secret"
	shellPairingSecret = "integration-launch-secret"
	jsonContentType    = "application/json"
)

type hydratedStoryResponse struct {
	Story struct {
		StoryID          string  `json:"story_id"`
		Title            string  `json:"title"`
		ActiveVersionID  *string `json:"active_version_id"`
		ActiveSnapshotID *string `json:"active_snapshot_id"`
	} `json:"story"`
	ActiveVersion struct {
		VersionID string `json:"version_id"`
		Name      string `json:"name"`
	} `json:"active_version"`
	ActiveSnapshot struct {
		SnapshotID string `json:"snapshot_id"`
		Content    string `json:"content"`
	} `json:"active_snapshot"`
}

func TestPairingAndContentFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:integration?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&stories.Story{}, &stories.Version{}, &stories.Snapshot{}); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	contentService, err := stories.NewService(stories.ServiceConfig{
		Database:   db,
		IDProvider: stories.NewUUIDProvider(),
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build content service: %v", err)
	}

	persistenceScheduler, err := scheduler.New(scheduler.Config{
		Persister: contentService,
		Logger:    zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build scheduler: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte(shellSigningSecret),
			Issuer:        "loom-backend",
			Audience:      "loom-shell",
			TokenTTL:      time.Hour,
		}),
		StoriesService: contentService,
		Scheduler:      persistenceScheduler,
		PairingSecret:  shellPairingSecret,
		Logger:         zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	accessToken := mustPair(testContext, testServer.URL)

	created := hydratedStoryResponse{}
	doJSON(testContext, testServer.URL+"/stories", http.MethodPost, accessToken,
		map[string]any{"collection_id": "shelf-1", "title": "Harbor Lights"},
		http.StatusCreated, &created)

	if created.ActiveVersion.Name != "Original" {
		testContext.Fatalf("expected the seed version to be named Original, got %q", created.ActiveVersion.Name)
	}
	if created.ActiveSnapshot.Content != "" {
		testContext.Fatalf("expected an empty seed snapshot, got %q", created.ActiveSnapshot.Content)
	}
	if created.Story.ActiveVersionID == nil || *created.Story.ActiveVersionID != created.ActiveVersion.VersionID {
		testContext.Fatalf("active version pointer does not match the hydrated version")
	}

	storyURL := testServer.URL + "/stories/" + created.Story.StoryID

	var savedSnapshot struct {
		SnapshotID string `json:"snapshot_id"`
		Content    string `json:"content"`
	}
	doJSON(testContext, storyURL+"/content", http.MethodPut, accessToken,
		map[string]any{"content": "The harbor was quiet.", "word_count": 4},
		http.StatusOK, &savedSnapshot)

	if savedSnapshot.SnapshotID != created.ActiveSnapshot.SnapshotID {
		testContext.Fatalf("expected the active snapshot to be overwritten in place")
	}
	if savedSnapshot.Content != "The harbor was quiet." {
		testContext.Fatalf("unexpected saved content %q", savedSnapshot.Content)
	}

	forked := hydratedStoryResponse{}
	doJSON(testContext, storyURL+"/versions", http.MethodPost, accessToken,
		map[string]any{"name": "Second Draft", "content": "The harbor was quiet."},
		http.StatusCreated, &forked)

	if forked.ActiveVersion.Name != "Second Draft" {
		testContext.Fatalf("expected the fork to become active, got %q", forked.ActiveVersion.Name)
	}
	if forked.ActiveSnapshot.Content != "The harbor was quiet." {
		testContext.Fatalf("expected the fork to carry the editor content, got %q", forked.ActiveSnapshot.Content)
	}

	var versionList struct {
		Versions []struct {
			VersionID string `json:"version_id"`
			Name      string `json:"name"`
		} `json:"versions"`
	}
	doJSON(testContext, storyURL+"/versions", http.MethodGet, accessToken, nil, http.StatusOK, &versionList)
	if len(versionList.Versions) != 2 {
		testContext.Fatalf("expected two versions, got %d", len(versionList.Versions))
	}

	restored := hydratedStoryResponse{}
	doJSON(testContext, storyURL+"/versions/"+created.ActiveVersion.VersionID+"/activate", http.MethodPost, accessToken,
		nil, http.StatusOK, &restored)
	if restored.ActiveVersion.VersionID != created.ActiveVersion.VersionID {
		testContext.Fatalf("expected the original version to be active again")
	}
	if restored.ActiveSnapshot.Content != "The harbor was quiet." {
		testContext.Fatalf("expected the flushed content in the original version, got %q", restored.ActiveSnapshot.Content)
	}
}

func mustPair(testContext *testing.T, baseURL string) string {
	testContext.Helper()

	body, _ := json.Marshal(map[string]string{"pairing_secret": shellPairingSecret})
	response, err := http.Post(baseURL+"/session/pair", jsonContentType, bytes.NewReader(body))
	if err != nil {
		testContext.Fatalf("pair request failed: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected pair status: %d", response.StatusCode)
	}
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		testContext.Fatalf("failed to decode pair response: %v", err)
	}
	if payload.AccessToken == "" {
		testContext.Fatalf("expected a non-empty access token")
	}
	return payload.AccessToken
}

func doJSON(testContext *testing.T, url, method, accessToken string, requestBody any, wantStatus int, out any) {
	testContext.Helper()

	var reader *bytes.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			testContext.Fatalf("failed to encode request: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request, err := http.NewRequest(method, url, reader)
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	request.Header.Set("Authorization", "Bearer "+accessToken)

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer response.Body.Close()

	if response.StatusCode != wantStatus {
		testContext.Fatalf("%s %s: unexpected status %d, want %d", method, url, response.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			testContext.Fatalf("failed to decode response: %v", err)
		}
	}
}
