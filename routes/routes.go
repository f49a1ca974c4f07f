package routes

import (
	"net/http"
	"slices"

	"opentrivia/handlers"
	"opentrivia/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers bundles everything the route table serves. Results is nil when
// no archive is configured.
type Handlers struct {
	Rooms          *handlers.RoomHandler
	Sessions       *handlers.SessionHandler
	Results        *handlers.ResultsHandler
	SessionService *services.SessionService
	Hub            *services.Hub
	AllowedOrigins []string
	Logger         *zap.Logger
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
		},
	}
}

func SetupRoutes(router *gin.Engine, h Handlers) {
	api := router.Group("/api")
	{
		api.POST("/session", h.Sessions.CreateSession)
		api.GET("/categories", h.Rooms.ListCategories)

		rooms := api.Group("/rooms")
		{
			rooms.GET("", h.Rooms.ListRooms)
			rooms.POST("", h.Rooms.CreateRoom)
			rooms.GET("/:id", h.Rooms.GetRoom)
		}

		if h.Results != nil {
			api.GET("/results", h.Results.ListResults)
		}
	}

	upgrader := newUpgrader(h.AllowedOrigins)

	// The ticket from POST /api/session names the player.
	router.GET("/ws", func(c *gin.Context) {
		nickname, err := h.SessionService.ParseTicket(c.Query("ticket"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.Logger.Warn("WebSocket upgrade failed", zap.String("nickname", nickname), zap.Error(err))
			return
		}

		h.Hub.RegisterClient(conn, nickname)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": h.Hub.ClientCount()})
	})
}
