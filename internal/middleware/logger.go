package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger returns a middleware that logs HTTP requests. Bodies are not
// logged; they carry free-text notes.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		var event *zerolog.Event
		var msg string
		switch {
		case statusCode >= 500:
			event, msg = log.Error(), "Server error"
		case statusCode >= 400:
			event, msg = log.Warn(), "Client error"
		default:
			event, msg = log.Info(), "Request processed"
		}

		if actor, ok := ActorFrom(c); ok {
			event = event.Str("actor_role", string(actor.Role)).Int64("actor_id", actor.ID)
		}

		event.
			Str("request_id", c.GetString(ContextRequestID)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("ip", c.ClientIP()).
			Int("status", statusCode).
			Dur("duration", latency).
			Str("user_agent", c.Request.UserAgent()).
			Msg(msg)
	}
}
