package user

import (
	"net/http"
	"strings"
	"time"

	"PPRealtime/tools/security"

	"github.com/gin-gonic/gin"
)

type loginReq struct {
	UserID   string `json:"userId" binding:"required"`
	Username string `json:"username"`
}

// HandlerLogin issues a handshake token for the given user. Identity is taken on
// trust; deployments with a real identity provider leave the route unmounted.
func HandlerLogin(opts security.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginReq
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userId required"})
			return
		}
		token, exp, err := security.Issue(opts, req.UserID, req.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token":     token,
			"expiresAt": exp.UTC().Format(time.RFC3339),
			"user": gin.H{
				"id":   req.UserID,
				"name": req.Username,
			},
		})
	}
}
