package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"power-dialer/pkg/logger"
)

// Handlers serves login and refresh.
type Handlers struct {
	Manager *Manager
	Users   *Directory
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest", "message": "invalid json"})
		return
	}
	if req.Email == "" || req.Password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest", "message": "email and password required"})
		return
	}
	u, err := h.Users.Authenticate(req.Email, req.Password)
	if err != nil {
		logger.FromGin(c).Info("login rejected", "email", req.Email)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "InvalidCredentials", "message": "invalid email or password"})
		return
	}
	h.respondPair(c, u)
}

func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest", "message": "refresh_token required"})
		return
	}
	claims, err := h.Manager.Verify(req.RefreshToken, TokenTypeRefresh, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": "invalid refresh token"})
		return
	}
	u, ok := h.Users.Lookup(claims.UserID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": "unknown user"})
		return
	}
	h.respondPair(c, u)
}

// Me echoes the authenticated identity.
func (h Handlers) Me(c *gin.Context) {
	userID, err := UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": err.Error()})
		return
	}
	role, _ := Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"email": userID, "role": role})
}

func (h Handlers) respondPair(c *gin.Context, u User) {
	pair, err := h.Manager.IssuePair(time.Now(), u.Email, u.Role)
	if err != nil {
		logger.FromGin(c).Error("token issuance failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "TokenIssuanceFailed", "message": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.ExpiresAt.UTC(),
		"user":          gin.H{"email": u.Email, "role": u.Role},
	})
}
