package logger

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const headerRequestID = "X-Request-Id"

// quietPaths are probe endpoints logged at debug only.
var quietPaths = map[string]bool{"/healthz": true, "/readyz": true}

// Middleware tags each request with a request_id, stores the request logger
// on the request context and logs one summary line when the handler returns.
// The summary carries the clinic and user the auth middleware resolved.
func Middleware(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)

		reqLogger := l.With("request_id", rid)
		c.Request = c.Request.WithContext(With(c.Request.Context(), reqLogger))

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", float64(time.Since(start).Milliseconds()),
		}
		if clinicID := c.GetString("clinic_id"); clinicID != "" {
			attrs = append(attrs, "clinic_id", clinicID, "user_id", c.GetString("user_id"))
		}
		if status == http.StatusSwitchingProtocols {
			// websocket: duration is the stream's lifetime
			attrs = append(attrs, "stream", true)
		}

		switch {
		case len(c.Errors) > 0:
			attrs = append(attrs, "errors", c.Errors.String())
			reqLogger.Error("request", attrs...)
		case quietPaths[path]:
			reqLogger.Debug("request", attrs...)
		default:
			reqLogger.Info("request", attrs...)
		}
	}
}

// FromGin returns the request-scoped logger, or fallback outside Middleware.
func FromGin(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	return From(c.Request.Context(), fallback)
}
