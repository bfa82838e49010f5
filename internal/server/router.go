package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/loomlabs/loom/backend/internal/scheduler"
	"github.com/loomlabs/loom/backend/internal/stories"
	"go.uber.org/zap"
)

const sessionIDContextKey = "loom_session_id"

var (
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingStoriesService = errors.New("stories service dependency required")
	errMissingScheduler      = errors.New("scheduler dependency required")
	errMissingPairingSecret  = errors.New("pairing secret required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// ShellTokenManager issues and validates the UI shell's IPC tokens.
type ShellTokenManager interface {
	IssueShellToken(ctx context.Context, sessionID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// IDProvider issues shell session identifiers during pairing.
type IDProvider interface {
	NewID() (string, error)
}

type Dependencies struct {
	TokenManager   ShellTokenManager
	StoriesService *stories.Service
	Scheduler      *scheduler.Scheduler
	Dispatcher     *SaveStateDispatcher
	IDProvider     IDProvider
	PairingSecret  string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.StoriesService == nil {
		return nil, errMissingStoriesService
	}
	if deps.Scheduler == nil {
		return nil, errMissingScheduler
	}
	if strings.TrimSpace(deps.PairingSecret) == "" {
		return nil, errMissingPairingSecret
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = NewSaveStateDispatcher()
	}
	idProvider := deps.IDProvider
	if idProvider == nil {
		idProvider = stories.NewUUIDProvider()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:        deps.TokenManager,
		service:       deps.StoriesService,
		scheduler:     deps.Scheduler,
		dispatcher:    dispatcher,
		idProvider:    idProvider,
		pairingSecret: deps.PairingSecret,
		logger:        logger,
	}

	router.POST("/session/pair", handler.handlePair)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/stories", handler.handleListStories)
	protected.POST("/stories", handler.handleCreateStory)
	protected.GET("/stories/:storyId", handler.handleGetStory)
	protected.PATCH("/stories/:storyId", handler.handleRenameStory)
	protected.DELETE("/stories/:storyId", handler.handleDeleteStory)
	protected.GET("/stories/:storyId/versions", handler.handleListVersions)
	protected.POST("/stories/:storyId/versions", handler.handleCreateVersion)
	protected.POST("/stories/:storyId/versions/:versionId/activate", handler.handleSwitchVersion)
	protected.POST("/stories/:storyId/snapshots", handler.handleCreateSnapshot)
	protected.POST("/stories/:storyId/snapshots/:snapshotId/activate", handler.handleSwitchSnapshot)
	protected.PUT("/stories/:storyId/content", handler.handleUpdateContent)
	protected.POST("/stories/:storyId/observe", handler.handleObserve)
	protected.POST("/stories/:storyId/leave", handler.handleLeave)
	protected.POST("/stories/:storyId/flush", handler.handleFlush)
	protected.GET("/stories/:storyId/events", handler.handleSaveStateEvents)
	protected.PATCH("/versions/:versionId", handler.handleRenameVersion)
	protected.DELETE("/versions/:versionId", handler.handleDeleteVersion)
	protected.GET("/versions/:versionId/snapshots", handler.handleListSnapshots)
	protected.POST("/versions/:versionId/cleanup", handler.handleCleanupSnapshots)
	protected.DELETE("/snapshots/:snapshotId", handler.handleDeleteSnapshot)

	return router, nil
}

type httpHandler struct {
	tokens        ShellTokenManager
	service       *stories.Service
	scheduler     *scheduler.Scheduler
	dispatcher    *SaveStateDispatcher
	idProvider    IDProvider
	pairingSecret string
	logger        *zap.Logger
}

type pairRequestPayload struct {
	PairingSecret string `json:"pairing_secret"`
}

type pairResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handlePair(c *gin.Context) {
	var request pairRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.PairingSecret) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.PairingSecret != h.pairingSecret {
		h.logger.Warn("pairing attempt with wrong secret")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := h.idProvider.NewID()
	if err != nil {
		h.logger.Error("failed to generate session id", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pairing_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueShellToken(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to issue shell token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, pairResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	sessionID, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionIDContextKey, sessionID)
	c.Next()
}

type storyPayload struct {
	StoryID             string  `json:"story_id"`
	CollectionID        string  `json:"collection_id"`
	Title               string  `json:"title"`
	WordCount           int64   `json:"word_count"`
	CreatedAtSeconds    int64   `json:"created_at_s"`
	LastEditedAtSeconds int64   `json:"last_edited_at_s"`
	ActiveVersionID     *string `json:"active_version_id"`
	ActiveSnapshotID    *string `json:"active_snapshot_id"`
}

type versionPayload struct {
	VersionID        string `json:"version_id"`
	StoryID          string `json:"story_id"`
	Name             string `json:"name"`
	CreatedAtSeconds int64  `json:"created_at_s"`
	UpdatedAtSeconds int64  `json:"updated_at_s"`
}

type snapshotPayload struct {
	SnapshotID       string `json:"snapshot_id"`
	VersionID        string `json:"version_id"`
	Content          string `json:"content"`
	CreatedAtSeconds int64  `json:"created_at_s"`
	UpdatedAtSeconds int64  `json:"updated_at_s"`
}

type hydratedStoryPayload struct {
	Story          storyPayload    `json:"story"`
	ActiveVersion  versionPayload  `json:"active_version"`
	ActiveSnapshot snapshotPayload `json:"active_snapshot"`
}

func toStoryPayload(story stories.Story) storyPayload {
	return storyPayload{
		StoryID:             story.StoryID,
		CollectionID:        story.CollectionID,
		Title:               story.Title,
		WordCount:           story.WordCount,
		CreatedAtSeconds:    story.CreatedAtSeconds,
		LastEditedAtSeconds: story.LastEditedAtSeconds,
		ActiveVersionID:     story.ActiveVersionID,
		ActiveSnapshotID:    story.ActiveSnapshotID,
	}
}

func toVersionPayload(version stories.Version) versionPayload {
	return versionPayload{
		VersionID:        version.VersionID,
		StoryID:          version.StoryID,
		Name:             version.Name,
		CreatedAtSeconds: version.CreatedAtSeconds,
		UpdatedAtSeconds: version.UpdatedAtSeconds,
	}
}

func toSnapshotPayload(snapshot stories.Snapshot) snapshotPayload {
	return snapshotPayload{
		SnapshotID:       snapshot.SnapshotID,
		VersionID:        snapshot.VersionID,
		Content:          snapshot.Content,
		CreatedAtSeconds: snapshot.CreatedAtSeconds,
		UpdatedAtSeconds: snapshot.UpdatedAtSeconds,
	}
}

func toHydratedPayload(hydrated stories.HydratedStory) hydratedStoryPayload {
	return hydratedStoryPayload{
		Story:          toStoryPayload(hydrated.Story),
		ActiveVersion:  toVersionPayload(hydrated.ActiveVersion),
		ActiveSnapshot: toSnapshotPayload(hydrated.ActiveSnapshot),
	}
}

// respondServiceError maps the domain sentinels onto HTTP statuses and
// includes the stable service error code for everything else.
func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, stories.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, stories.ErrDuplicateName):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_name"})
	case errors.Is(err, stories.ErrLastVersion):
		c.JSON(http.StatusConflict, gin.H{"error": "last_version"})
	case errors.Is(err, stories.ErrLastSnapshot):
		c.JSON(http.StatusConflict, gin.H{"error": "last_snapshot"})
	default:
		payload := gin.H{"error": "internal_error"}
		var serviceErr *stories.ServiceError
		if errors.As(err, &serviceErr) {
			payload["code"] = serviceErr.Code()
		}
		c.JSON(http.StatusInternalServerError, payload)
	}
}

func (h *httpHandler) handleListStories(c *gin.Context) {
	storyRows, err := h.service.ListStories(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list stories", zap.Error(err))
		h.respondServiceError(c, err)
		return
	}
	payload := make([]storyPayload, 0, len(storyRows))
	for _, story := range storyRows {
		payload = append(payload, toStoryPayload(story))
	}
	c.JSON(http.StatusOK, gin.H{"stories": payload})
}

type createStoryPayload struct {
	CollectionID string `json:"collection_id"`
	Title        string `json:"title"`
}

func (h *httpHandler) handleCreateStory(c *gin.Context) {
	var request createStoryPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	hydrated, err := h.service.CreateStory(c.Request.Context(), request.CollectionID, request.Title)
	if err != nil {
		h.logger.Error("failed to create story", zap.Error(err))
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toHydratedPayload(hydrated))
}

func (h *httpHandler) handleGetStory(c *gin.Context) {
	storyID, err := stories.NewStoryID(c.Param("storyId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_story_id"})
		return
	}
	hydrated, err := h.service.GetStory(c.Request.Context(), storyID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toHydratedPayload(hydrated))
}

type renameStoryPayload struct {
	Title string `json:"title"`
}

func (h *httpHandler) handleRenameStory(c *gin.Context) {
	storyID, err := stories.NewStoryID(c.Param("storyId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_story_id"})
		return
	}
	var request renameStoryPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.service.RenameStory(c.Request.Context(), storyID, request.Title); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDeleteStory(c *gin.Context) {
	storyID, err := stories.NewStoryID(c.Param("storyId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_story_id"})
		return
	}
	h.scheduler.Reset(storyID)
	if err := h.service.DeleteStory(c.Request.Context(), storyID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListVersions(c *gin.Context) {
	storyID, err := stories.NewStoryID(c.Param("storyId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_story_id"})
		return
	}
	versionRows, err := h.service.ListVersions(c.Request.Context(), storyID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	payload := make([]versionPayload, 0, len(versionRows))
	for _, version := range versionRows {
		payload = append(payload, toVersionPayload(version))
	}
	c.JSON(http.StatusOK, gin.H{"versions": payload})
}

type createVersionPayload struct {
	Name           string  `json:"name"`
	Content        string  `json:"content"`
	PendingContent *string `json:"pending_content"`
}

func (h *httpHandler) handleCreateVersion(c *gin.Context) {
	storyID, err := stories.NewStoryID(c.Param("storyId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_story_id"})
		return
	}
	var request createVersionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	name, err := stories.NewVersionName(request.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_version_name"})
		return
	}

	// The request content is the editor's in-progress buffer; the service
	// flushes it into the old active snapshot before forking. Any pending
	// debounced autosave is superseded by that flush.
	h.scheduler.Reset(storyID)

	hydrated, err := h.service.CreateVersion(c.Request.Context(), storyID, stories.CreateVersionParams{
		Name:           name,
		Content:        request.Content,
		PendingContent: request.PendingContent,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toHydratedPayload(hydrated))
}

func (h *httpHandler) handleSwitchVersion(c *gin.Context) {
	storyID, err := stories.NewStoryID(c.Param("storyId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_story_id"})
		return
	}
	versionID, err := stories.NewVersionID(c.Param("versionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_version_id"})
		return
	}
	h.scheduler.Reset(storyID)
	hydrated, err := h.service.SwitchVersion(c.Request.Context(), storyID, versionID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toHydratedPayload(hydrated))
}

type renameVersionPayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleRenameVersion(c *gin.Context) {
	versionID, err := stories.NewVersionID(c.Param("versionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_version_id"})
		return
	}
	var request renameVersionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	name, err := stories.NewVersionName(request.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_version_name"})
		return
	}
	if err := h.service.RenameVersion(c.Request.Context(), versionID, name); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDeleteVersion(c *gin.Context) {
	versionID, err := stories.NewVersionID(c.Param("versionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_version_id"})
		return
	}
	if err := h.service.DeleteVersion(c.Request.Context(), versionID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListSnapshots(c *gin.Context) {
	versionID, err := stories.NewVersionID(c.Param("versionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_version_id"})
		return
	}
	snapshotRows, err := h.service.ListSnapshots(c.Request.Context(), versionID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	payload := make([]snapshotPayload, 0, len(snapshotRows))
	for _, snapshot := range snapshotRows {
		payload = append(payload, toSnapshotPayload(snapshot))
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": payload})
}

type createSnapshotPayload struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleCreateSnapshot(c *gin.Context) {
	storyID, err := stories.NewStoryID(c.Param("storyId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_story_id"})
		return
	}
	var request createSnapshotPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	snapshot, err := h.service.CreateSnapshot(c.Request.Context(), storyID, request.Content)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSnapshotPayload(snapshot))
}

func (h *httpHandler) handleSwitchSnapshot(c *gin.Context) {
	storyID, err := stories.NewStoryID(c.Param("storyId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_story_id"})
		return
	}
	snapshotID, err := stories.NewSnapshotID(c.Param("snapshotId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_snapshot_id"})
		return
	}
	h.scheduler.Reset(storyID)
	hydrated, err := h.service.SwitchSnapshot(c.Request.Context(), storyID, snapshotID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toHydratedPayload(hydrated))
}

func (h *httpHandler) handleDeleteSnapshot(c *gin.Context) {
	snapshotID, err := stories.NewSnapshotID(c.Param("snapshotId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_snapshot_id"})
		return
	}
	if err := h.service.DeleteSnapshot(c.Request.Context(), snapshotID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type updateContentPayload struct {
	Content   string `json:"content"`
	WordCount *int64 `json:"word_count"`
}

func (h *httpHandler) handleUpdateContent(c *gin.Context) {
	storyID, err := stories.NewStoryID(c.Param("storyId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_story_id"})
		return
	}
	var request updateContentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	wordCount := int64(-1)
	if request.WordCount != nil {
		wordCount = *request.WordCount
	}
	snapshot, err := h.service.UpdateActiveSnapshotContent(c.Request.Context(), storyID, request.Content, wordCount)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSnapshotPayload(snapshot))
}

type cleanupPayload struct {
	KeepCount int `json:"keep_count"`
}

func (h *httpHandler) handleCleanupSnapshots(c *gin.Context) {
	versionID, err := stories.NewVersionID(c.Param("versionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_version_id"})
		return
	}
	var request cleanupPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.KeepCount < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	deleted, err := h.service.CleanupSnapshots(c.Request.Context(), versionID, request.KeepCount)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_count": deleted})
}

type observePayload struct {
	Content string `json:"content"`
}

// handleObserve feeds an editor change into the debounced persistence
// scheduler. It never writes synchronously and always returns 202.
func (h *httpHandler) handleObserve(c *gin.Context) {
	storyID, err := stories.NewStoryID(c.Param("storyId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_story_id"})
		return
	}
	var request observePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.scheduler.Observe(c.Request.Context(), storyID, request.Content)
	c.Status(http.StatusAccepted)
}

func (h *httpHandler) handleLeave(c *gin.Context) {
	storyID, err := stories.NewStoryID(c.Param("storyId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_story_id"})
		return
	}
	h.scheduler.Leave(c.Request.Context(), storyID)
	c.Status(http.StatusAccepted)
}

func (h *httpHandler) handleFlush(c *gin.Context) {
	storyID, err := stories.NewStoryID(c.Param("storyId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_story_id"})
		return
	}
	h.scheduler.Flush(c.Request.Context(), storyID)
	c.Status(http.StatusAccepted)
}

type saveStateEventPayload struct {
	StoryID   string `json:"story_id"`
	EventType string `json:"event_type"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp_s"`
	Source    string `json:"source"`
}

// handleSaveStateEvents streams save-state messages for a story as
// server-sent events until the client disconnects.
func (h *httpHandler) handleSaveStateEvents(c *gin.Context) {
	storyID, err := stories.NewStoryID(c.Param("storyId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_story_id"})
		return
	}

	stream, cleanup := h.dispatcher.Subscribe(c.Request.Context(), storyID.String())
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(RealtimeEventSaveState, saveStateEventPayload{
				StoryID:   message.StoryID,
				EventType: message.EventType,
				Outcome:   message.Outcome,
				Error:     message.ErrorText,
				Timestamp: message.Timestamp.Unix(),
				Source:    realtimeSourceBackend,
			})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// NotifyFromScheduler adapts scheduler events onto the dispatcher so the
// cmd wiring stays in one place.
func NotifyFromScheduler(dispatcher *SaveStateDispatcher) func(scheduler.Event) {
	return func(event scheduler.Event) {
		outcome := "ok"
		errorText := ""
		if event.Err != nil {
			outcome = "failed"
			errorText = event.Err.Error()
		}
		dispatcher.Publish(SaveStateMessage{
			StoryID:   event.StoryID.String(),
			EventType: string(event.Type),
			Outcome:   outcome,
			ErrorText: errorText,
			Timestamp: time.Now().UTC(),
		})
	}
}
