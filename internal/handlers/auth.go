package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/telecare-signaling/internal/middleware"
)

// DevTokenRequest represents the development token request body
type DevTokenRequest struct {
	UserID string `json:"userId" binding:"required"`
	Role   string `json:"role" binding:"required,oneof=user doctor admin"`
}

// DevTokenResponse represents the development token response
type DevTokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// DevToken issues a signed token for any user and role. It is only mounted
// outside production so local consultations can call the completion endpoint.
func DevToken(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DevTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		token, err := middleware.IssueToken(jwtSecret, req.UserID, req.Role, 24*time.Hour)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		c.JSON(http.StatusOK, DevTokenResponse{
			Token:  token,
			UserID: req.UserID,
			Role:   req.Role,
		})
	}
}
