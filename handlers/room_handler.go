package handlers

import (
	"context"
	"errors"
	"net/http"

	"opentrivia/models"
	"opentrivia/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CategorySource is the part of the question supplier the room API uses.
type CategorySource interface {
	LoadCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id int) (models.Category, error)
}

type RoomHandler struct {
	loop       *services.Loop
	registry   *services.Registry
	categories CategorySource
	logger     *zap.Logger
}

func NewRoomHandler(loop *services.Loop, registry *services.Registry, categories CategorySource, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{
		loop:       loop,
		registry:   registry,
		categories: categories,
		logger:     logger,
	}
}

type CreateRoomRequest struct {
	Name             string `json:"name" binding:"required,max=30"`
	CategoryID       *int   `json:"categoryId"`
	Difficulty       string `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	MaxSeconds       int    `json:"maxSeconds" binding:"required,min=5,max=120"`
	CanSkipQuestions bool   `json:"canSkipQuestions"`
	QuestionCount    int    `json:"questionCount" binding:"min=0,max=100"`
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	var summaries []models.RoomSummary
	if err := h.loop.Do(c.Request.Context(), func() {
		summaries = h.registry.Summaries()
	}); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Rooms unavailable"})
		return
	}

	c.JSON(http.StatusOK, summaries)
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	id := c.Param("id")

	var summary models.RoomSummary
	var found bool
	if err := h.loop.Do(c.Request.Context(), func() {
		var room *services.GameRoom
		if room, found = h.registry.Room(id); found {
			summary = room.Summary()
		}
	}); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Rooms unavailable"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// CreateRoom creates a room that is deleted once its last player leaves.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := models.RoomConfiguration{
		Difficulty:       models.Difficulty(req.Difficulty),
		MaxSeconds:       req.MaxSeconds,
		CanSkipQuestions: req.CanSkipQuestions,
		QuestionCount:    req.QuestionCount,
	}
	if req.CategoryID != nil {
		category, err := h.categories.GetCategory(c.Request.Context(), *req.CategoryID)
		if errors.Is(err, services.ErrCategoryNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown category"})
			return
		}
		if err != nil {
			h.logger.Warn("Category lookup failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "Categories unavailable"})
			return
		}
		cfg.Category = &category
	}

	var summary models.RoomSummary
	var createErr error
	if err := h.loop.Do(c.Request.Context(), func() {
		var room *services.GameRoom
		if room, createErr = h.registry.CreateRoom(req.Name, true, cfg); createErr == nil {
			summary = room.Summary()
		}
	}); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Rooms unavailable"})
		return
	}
	if errors.Is(createErr, services.ErrInvalidRoomConfig) {
		c.JSON(http.StatusBadRequest, gin.H{"error": createErr.Error()})
		return
	}
	if createErr != nil {
		h.logger.Error("Failed to create room", zap.Error(createErr))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	c.JSON(http.StatusCreated, summary)
}

func (h *RoomHandler) ListCategories(c *gin.Context) {
	categories, err := h.categories.LoadCategories(c.Request.Context())
	if err != nil {
		h.logger.Warn("Failed to load categories", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Categories unavailable"})
		return
	}

	c.JSON(http.StatusOK, categories)
}
