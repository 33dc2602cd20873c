package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/telecare-signaling/internal/signaling"
)

// GetRoom returns the live membership of a room
func GetRoom(registry *signaling.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, ok := registry.Snapshot(c.Param("roomId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

// ListRooms returns every live room
func ListRooms(registry *signaling.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		rooms := registry.Rooms()
		c.JSON(http.StatusOK, gin.H{"rooms": rooms, "count": len(rooms)})
	}
}
