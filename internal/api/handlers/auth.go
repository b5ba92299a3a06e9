package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/nemark/chat-server/internal/crypto"
	"github.com/nemark/chat-server/internal/logger"
	"github.com/nemark/chat-server/internal/store"
	"github.com/nemark/chat-server/pkg/types"
)

// staffTokenTTL bounds how long a dashboard login stays valid.
const staffTokenTTL = 7 * 24 * time.Hour

// AuthHandler serves platform staff login.
type AuthHandler struct {
	store      *store.Store
	jwtManager *crypto.JWTManager
}

func NewAuthHandler(st *store.Store, jwtManager *crypto.JWTManager) *AuthHandler {
	return &AuthHandler{store: st, jwtManager: jwtManager}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token   string `json:"token"`
	StaffID string `json:"staffId"`
	Name    string `json:"name"`
}

// PostLogin handles POST /v1/auth/login.
func (h *AuthHandler) PostLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "email and password are required"})
		return
	}

	account, err := h.store.GetStaffByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Errorf("staff lookup failed: %v", err)
		}
		c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid credentials"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid credentials"})
		return
	}

	token, err := h.jwtManager.IssueStaffToken(account.StaffID, staffTokenTTL)
	if err != nil {
		logger.Errorf("staff token issue failed: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "could not issue token"})
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		Token:   token,
		StaffID: account.StaffID,
		Name:    account.Name,
	})
}
