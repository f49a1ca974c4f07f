package handlers

import (
	"net/http"
	"strconv"

	"opentrivia/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ResultsHandler struct {
	results *services.ResultsService
	logger  *zap.Logger
}

func NewResultsHandler(results *services.ResultsService, logger *zap.Logger) *ResultsHandler {
	return &ResultsHandler{results: results, logger: logger}
}

func (h *ResultsHandler) ListResults(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	results, err := h.results.RecentGames(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list game results", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list results"})
		return
	}

	c.JSON(http.StatusOK, results)
}
