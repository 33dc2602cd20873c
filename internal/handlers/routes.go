package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mossy-p/telecare-signaling/config"
	"github.com/mossy-p/telecare-signaling/internal/middleware"
	"github.com/mossy-p/telecare-signaling/internal/signaling"
)

// Deps are the collaborators the HTTP surface is built from
type Deps struct {
	Config *config.Config
	Hub    *signaling.Hub
	// Appointments may be nil, in which case the completion endpoint answers 503
	Appointments AppointmentStore
	Logger       zerolog.Logger
}

// NewRouter wires every route of the signaling server
func NewRouter(d Deps) *gin.Engine {
	if d.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(d.Config.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": d.Hub.Registry().Len()})
	})

	api := router.Group("/api")
	{
		api.GET("/rooms", ListRooms(d.Hub.Registry()))
		api.GET("/rooms/:roomId", GetRoom(d.Hub.Registry()))

		api.PUT("/appointments/:id/complete",
			middleware.JWTAuth(d.Config.JWTSecret),
			middleware.RequireRole("user"),
			CompleteAppointment(d.Appointments, d.Logger),
		)

		if !d.Config.IsProduction() {
			api.POST("/auth/token", DevToken(d.Config.JWTSecret))
		}
	}

	ws := router.Group("/ws")
	{
		signal := HandleSignaling(d.Hub, d.Config.SendBuffer, d.Logger)
		ws.GET("/signal", signal)
		ws.GET("/signal/:roomId", signal)
	}

	return router
}
