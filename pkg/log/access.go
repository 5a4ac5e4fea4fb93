package log

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HeaderRequestID is echoed back on every response.
const HeaderRequestID = "X-Request-ID"

// AccessLog scopes a request logger into the request context and writes one
// line per request once the chain returns. Server errors log at error level,
// client errors at warn. Successful requests under a quiet prefix (static
// assets, health checks) log at debug.
func AccessLog(base zerolog.Logger, quiet ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()

		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)

		path := c.Request.URL.Path
		reqLog := base.With().
			Str(FieldRequestID, id).
			Str(FieldMethod, c.Request.Method).
			Str(FieldPath, path).
			Logger()
		c.Request = c.Request.WithContext(Into(c.Request.Context(), reqLog))

		c.Next()

		status := c.Writer.Status()
		var evt *zerolog.Event
		switch {
		case status >= 500:
			evt = reqLog.Error()
		case status >= 400:
			evt = reqLog.Warn()
		case hasAnyPrefix(path, quiet):
			evt = reqLog.Debug()
		default:
			evt = reqLog.Info()
		}

		evt = evt.Int(FieldStatus, status).
			Int64(FieldLatency, time.Since(started).Milliseconds()).
			Str(FieldClientIP, c.ClientIP())
		if id, ok := c.Get(FieldUserID); ok {
			if uid, ok := id.(uint); ok {
				evt = evt.Uint(FieldUserID, uid)
			}
		}
		if name := c.GetString(FieldUsername); name != "" {
			evt = evt.Str(FieldUsername, name)
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}
		evt.Msg("http request")
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
