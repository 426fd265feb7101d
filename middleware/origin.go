package middleware

import (
	"net/http"
	"strings"

	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
)

// Origin rejects cross-site requests whose Origin header is not in allow.
// An empty allow list or a "*" entry accepts every origin. Requests without
// an Origin header (non-browser clients) always pass.
func Origin(allow []string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allow))
	anyOrigin := len(allow) == 0
	for _, o := range allow {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o == "*" {
			anyOrigin = true
		}
		if o != "" {
			set[o] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		origin := strings.TrimRight(strings.ToLower(c.GetHeader("Origin")), "/")
		if anyOrigin || origin == "" {
			return
		}
		if _, ok := set[origin]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, errs.ErrUnauthorized.WithDetail("origin not allowed"))
		}
	}
}
