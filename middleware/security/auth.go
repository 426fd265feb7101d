package security

import (
	"net/http"
	"strings"

	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
)

// context keys read by handlers
const (
	PPCtxAuthKey = "authorization" // raw token
	PPCtxUserKey = "userId"        // verified subject
)

// UserVerifier resolves a token to its user id.
type UserVerifier interface {
	VerifyUser(token string) (string, error)
}

type Options struct {
	HeaderToken               string // default "authorization"
	EnableAuthorizationBearer bool   // default true
	QueryToken                string // default "token", empty disables
	Verifier                  UserVerifier
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               PPCtxAuthKey,
		EnableAuthorizationBearer: true,
		QueryToken:                "token",
	}
}

// TokenFrom extracts the token from the configured header, a Bearer header or the query.
func TokenFrom(c *gin.Context, opts *Options) string {
	if opts == nil {
		opts = DefaultOptions()
	}
	token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))
	if opts.EnableAuthorizationBearer {
		if token == "" {
			token = strings.TrimSpace(c.GetHeader("Authorization"))
		}
		if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
			token = strings.TrimSpace(token[7:])
		}
	}
	if token == "" && opts.QueryToken != "" {
		token = strings.TrimSpace(c.Query(opts.QueryToken))
	}
	return token
}

// Middleware rejects requests without a valid token. Without a Verifier only presence is checked.
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := TokenFrom(c, opts)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthorized.WithDetail("missing token"))
			return
		}
		c.Set(PPCtxAuthKey, token)

		if opts.Verifier != nil {
			uid, err := opts.Verifier.VerifyUser(token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthorized.WithDetail("invalid token"))
				return
			}
			c.Set(PPCtxUserKey, uid)
		}
	}
}
