package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nemark/chat-server/internal/crypto"
	"github.com/nemark/chat-server/pkg/types"
)

// StaffAuth validates a platform staff bearer token and stores the staff id
// in the request context.
func StaffAuth(jwtManager *crypto.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := jwtManager.VerifyStaffToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}

		c.Set("staffID", claims.Subject)
		c.Next()
	}
}

// GetStaffID extracts the authenticated staff id from the Gin context.
func GetStaffID(c *gin.Context) (string, bool) {
	staffID, exists := c.Get("staffID")
	if !exists {
		return "", false
	}
	return staffID.(string), true
}
