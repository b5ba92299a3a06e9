package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nemark/chat-server/internal/crypto"
	"github.com/nemark/chat-server/internal/logger"
	"github.com/nemark/chat-server/internal/store"
	"github.com/nemark/chat-server/pkg/types"
)

// EmbedHandler mints embed session tokens for the widget bootstrap.
type EmbedHandler struct {
	store      *store.Store
	jwtManager *crypto.JWTManager
	newID      func() string
}

func NewEmbedHandler(st *store.Store, jwtManager *crypto.JWTManager) *EmbedHandler {
	return &EmbedHandler{store: st, jwtManager: jwtManager, newID: types.NewID}
}

type embedSessionRequest struct {
	SiteID string `json:"siteId" binding:"required"`
	// VisitorID is the widget's stored identity; omitted on first load.
	VisitorID string `json:"visitorId"`
}

type embedSessionResponse struct {
	Token     string `json:"token"`
	VisitorID string `json:"visitorId"`
	SiteID    string `json:"siteId"`
	ExpiresAt int64  `json:"expiresAt"`
}

// PostSession handles POST /v1/embed/session. The widget calls this on page
// load; the request Origin must be on the widget's allow-list.
func (h *EmbedHandler) PostSession(c *gin.Context) {
	var req embedSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "siteId is required"})
		return
	}

	widget, err := h.store.GetWidgetBySiteKey(c.Request.Context(), strings.TrimSpace(req.SiteID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "unknown site"})
			return
		}
		logger.Errorf("widget lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "temporary failure"})
		return
	}

	origin := c.GetHeader("Origin")
	if !OriginAllowed(widget.AllowedOrigins, origin) {
		logger.Warnf("embed session rejected: origin %q not allowed for site %s", origin, widget.SiteKey)
		c.JSON(http.StatusForbidden, types.ErrorResponse{Error: "origin not allowed"})
		return
	}

	visitorID := strings.TrimSpace(req.VisitorID)
	if visitorID == "" {
		visitorID = h.newID()
	}

	token, expiresAt, err := h.jwtManager.IssueEmbedToken(widget.SiteKey, widget.WidgetKey, visitorID)
	if err != nil {
		logger.Errorf("embed token issue failed: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "could not issue token"})
		return
	}

	c.JSON(http.StatusOK, embedSessionResponse{
		Token:     token,
		VisitorID: visitorID,
		SiteID:    widget.SiteKey,
		ExpiresAt: expiresAt.UnixMilli(),
	})
}

// OriginAllowed checks a request origin against a widget's allow-list.
// Patterns: exact origin, bare host (scheme ignored), and "*." prefixed
// wildcard matching the host and any subdomain. An empty allow-list or a
// lone "*" entry allows everything.
func OriginAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 {
		return true
	}

	host := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	if origin == "" {
		return false
	}

	for _, pattern := range allowed {
		pattern = strings.TrimSpace(pattern)
		switch {
		case pattern == "":
			continue
		case pattern == "*":
			return true
		case strings.HasPrefix(pattern, "*."):
			suffix := pattern[2:]
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return true
			}
		case pattern == origin || pattern == host:
			return true
		default:
			// Allow-list entries written with a scheme match host-only too.
			if u, err := url.Parse(pattern); err == nil && u.Host != "" && u.Hostname() == host {
				return true
			}
		}
	}
	return false
}
