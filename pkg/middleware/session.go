package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/flow-market/pkg/log"
)

const (
	UserIDKey   = log.FieldUserID
	UsernameKey = log.FieldUsername
)

// Identity is the authenticated actor of a request.
type Identity struct {
	UserID   uint
	Username string
}

// SessionResolver turns a session token into an identity.
// A nil identity with a nil error means the token no longer maps to a user.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*Identity, error)
}

// SessionCookie describes the cookie that carries the session token.
type SessionCookie struct {
	Name   string
	MaxAge int // seconds
	Secure bool
}

// Set writes the session token cookie.
func (s SessionCookie) Set(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.Name, token, s.MaxAge, "/", "", s.Secure, true)
}

// Clear expires the session cookie.
func (s SessionCookie) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.Name, "", -1, "/", "", s.Secure, true)
}

type identityKey struct{}

// WithIdentity stores id in the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored in ctx, or nil for anonymous requests.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// Session resolves the session cookie on every request and, when it maps to a
// user, attaches the identity to the request context. Invalid cookies are
// cleared and the request continues anonymously; a failed lookup leaves the
// cookie in place.
func Session(resolver SessionResolver, cookie SessionCookie) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookie.Name)
		if err != nil || token == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		id, err := resolver.ResolveSession(ctx, token)
		if err != nil {
			// The token may still be good; keep the cookie for the next request.
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("session lookup failed")
			c.Next()
			return
		}
		if id == nil {
			cookie.Clear(c)
			c.Next()
			return
		}

		c.Set(UserIDKey, id.UserID)
		c.Set(UsernameKey, id.Username)
		c.Request = c.Request.WithContext(WithIdentity(ctx, id))

		c.Next()
	}
}

// RequireAuth redirects anonymous requests to loginPath, carrying the
// original path in the "next" query parameter.
func RequireAuth(loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IdentityFrom(c.Request.Context()) == nil {
			target := loginPath + "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
			c.Redirect(http.StatusFound, target)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser extracts the identity from a Gin context.
func CurrentUser(c *gin.Context) *Identity {
	return IdentityFrom(c.Request.Context())
}
