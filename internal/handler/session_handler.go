package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "focusflow/backend/internal/errors"
	"focusflow/backend/internal/hub"
	"focusflow/backend/internal/middleware"
	"focusflow/backend/internal/model"
	"focusflow/backend/internal/service"
)

// SessionHandler is a thin orchestration layer: each operation calls
// the session engine and, for every mutation, broadcasts the resulting
// state before responding.
type SessionHandler struct {
	sessions *service.SessionService
	links    *service.TaskLinkService
	hub      *hub.Hub
}

type createSessionRequest struct {
	WorkDurationSeconds       int `json:"workDurationSeconds"`
	ShortBreakDurationSeconds int `json:"shortBreakDurationSeconds"`
	LongBreakDurationSeconds  int `json:"longBreakDurationSeconds"`
	TotalCycles               int `json:"totalCycles"`
}

type linkTaskRequest struct {
	TaskID string `json:"taskId"`
}

func NewSessionHandler(sessions *service.SessionService, links *service.TaskLinkService, h *hub.Hub) *SessionHandler {
	return &SessionHandler{sessions: sessions, links: links, hub: h}
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}

	session, apiErr := h.sessions.Create(c.Request.Context(), middleware.UserID(c), service.CreateSessionInput{
		WorkDurationSeconds:       req.WorkDurationSeconds,
		ShortBreakDurationSeconds: req.ShortBreakDurationSeconds,
		LongBreakDurationSeconds:  req.LongBreakDurationSeconds,
		TotalCycles:               req.TotalCycles,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": h.view(session)})
}

func (h *SessionHandler) CreateDefault(c *gin.Context) {
	session, apiErr := h.sessions.CreateDefault(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": h.view(session)})
}

func (h *SessionHandler) Start(c *gin.Context) {
	h.mutate(c, h.sessions.Start)
}

func (h *SessionHandler) Pause(c *gin.Context) {
	h.mutate(c, h.sessions.Pause)
}

func (h *SessionHandler) Resume(c *gin.Context) {
	h.mutate(c, h.sessions.Resume)
}

func (h *SessionHandler) Stop(c *gin.Context) {
	h.mutate(c, h.sessions.Stop)
}

func (h *SessionHandler) Reset(c *gin.Context) {
	h.mutate(c, h.sessions.Reset)
}

func (h *SessionHandler) Share(c *gin.Context) {
	view, apiErr := h.sessions.Share(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": view})
}

// Shared serves a read-only snapshot of an explicitly shared session
// to any authenticated viewer.
func (h *SessionHandler) Shared(c *gin.Context) {
	view, apiErr := h.sessions.SharedSnapshot(c.Request.Context(), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": view})
}

func (h *SessionHandler) FindOne(c *gin.Context) {
	session, apiErr := h.sessions.FindOne(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": h.view(session)})
}

func (h *SessionHandler) FindWorking(c *gin.Context) {
	session, apiErr := h.sessions.FindWorking(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	if session == nil {
		c.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": h.view(session)})
}

func (h *SessionHandler) FindAllNotIdle(c *gin.Context) {
	limit := 50
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil {
			limit = parsed
		}
	}

	sessions, apiErr := h.sessions.FindAllNotIdle(c.Request.Context(), middleware.UserID(c), limit)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	now := time.Now().UTC()
	views := make([]service.SnapshotView, 0, len(sessions))
	for i := range sessions {
		views = append(views, h.sessions.Snapshot(&sessions[i], now))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	if apiErr := h.sessions.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) LinkTask(c *gin.Context) {
	var req linkTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TaskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "taskId is required"},
		})
		return
	}

	session, apiErr := h.links.Link(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.TaskID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	h.hub.Broadcast(session)
	c.JSON(http.StatusOK, gin.H{"session": h.view(session)})
}

func (h *SessionHandler) UnlinkTask(c *gin.Context) {
	session, apiErr := h.links.Unlink(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	h.hub.Broadcast(session)
	c.JSON(http.StatusOK, gin.H{"session": h.view(session)})
}

func (h *SessionHandler) mutate(c *gin.Context, op func(ctx context.Context, ownerID, sessionID string) (*model.Session, *apperrors.APIError)) {
	session, apiErr := op(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	h.hub.Broadcast(session)
	c.JSON(http.StatusOK, gin.H{"session": h.view(session)})
}

func (h *SessionHandler) view(session *model.Session) service.SnapshotView {
	return h.sessions.Snapshot(session, time.Now().UTC())
}
