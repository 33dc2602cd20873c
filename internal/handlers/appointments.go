package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mossy-p/telecare-signaling/internal/booking"
	"github.com/mossy-p/telecare-signaling/internal/middleware"
)

// AppointmentStore marks appointments completed
type AppointmentStore interface {
	MarkCompleted(ctx context.Context, appointmentID string) error
}

// CompleteAppointment handles PUT /api/appointments/:id/complete
func CompleteAppointment(store AppointmentStore, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Appointment store not configured"})
			return
		}

		id := c.Param("id")
		err := store.MarkCompleted(c.Request.Context(), id)
		switch {
		case err == nil:
			logger.Info().
				Str("appointment", id).
				Str("user", c.GetString(middleware.UserIDKey)).
				Msg("appointment completed")
			c.JSON(http.StatusOK, gin.H{"id": id, "isCompleted": true})
		case errors.Is(err, booking.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Appointment not found"})
		default:
			logger.Error().Err(err).Str("appointment", id).Msg("failed to complete appointment")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete appointment"})
		}
	}
}
