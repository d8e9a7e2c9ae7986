package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	AnonymousID  string `json:"anonymous_id,omitempty"`
}

func (h *handlers) issueAnonymousToken(c *gin.Context) {
	access, refresh, anonID, err := h.deps.Sessions.IssueAnonymous(projectFrom(c).ID)
	if err != nil {
		h.logger.Error("issue anonymous token", zapError(c, err)...)
		writeError(c, http.StatusInternalServerError, "UNKNOWN", "failed to issue token")
		return
	}
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    h.deps.Sessions.AccessTTLSeconds(),
		RefreshToken: refresh,
		AnonymousID:  anonID,
	})
}

func (h *handlers) refreshToken(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.RefreshToken) == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "refresh_token required")
		return
	}
	access, err := h.deps.Sessions.Refresh(projectFrom(c).ID, body.RefreshToken)
	if err != nil {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid refresh token")
		return
	}
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   h.deps.Sessions.AccessTTLSeconds(),
	})
}
