package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"focusflow/backend/internal/middleware"
	"focusflow/backend/internal/model"
	"focusflow/backend/internal/repository"
)

// TaskHandler exposes the minimal task surface the link adapter needs
// a counterpart for. Tasks stay opaque to the session engine.
type TaskHandler struct {
	tasks *repository.TaskRepository
}

type createTaskRequest struct {
	Title string `json:"title"`
}

func NewTaskHandler(tasks *repository.TaskRepository) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

func (h *TaskHandler) Create(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_title", "message": "title is required"},
		})
		return
	}

	now := time.Now().UTC()
	task := model.Task{
		ID:        uuid.NewString(),
		OwnerID:   middleware.UserID(c),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.tasks.Insert(c.Request.Context(), &task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "internal_error", "message": "failed to create task"},
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

func (h *TaskHandler) List(c *gin.Context) {
	limit := 50
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	tasks, err := h.tasks.ListByOwner(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "internal_error", "message": "failed to list tasks"},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// Sessions lists the reverse references recorded for a task.
func (h *TaskHandler) Sessions(c *gin.Context) {
	taskID := c.Param("id")
	task, err := h.tasks.Get(c.Request.Context(), taskID)
	if err == repository.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{"code": "task_not_found", "message": "task not found"},
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "internal_error", "message": "failed to load task"},
		})
		return
	}
	if task.OwnerID != middleware.UserID(c) {
		c.JSON(http.StatusForbidden, gin.H{
			"error": gin.H{"code": "forbidden", "message": "task belongs to another user"},
		})
		return
	}

	sessionIDs, err := h.tasks.SessionRefs(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "internal_error", "message": "failed to list task sessions"},
		})
		return
	}
	if sessionIDs == nil {
		sessionIDs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"sessionIds": sessionIDs})
}
