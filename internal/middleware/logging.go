// internal/middleware/logging.go
package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LogMiddleware is an HTTP middleware that logs incoming requests using
// Logrus: method, path and duration.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := r.URL.Path
			method := r.Method

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   method,
				"path":     path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Info("HTTP Request")
		})
	}
}

// LogWebSocketConnect logs a table client connecting, once the upgrade is
// accepted.
func LogWebSocketConnect(logger *logrus.Logger, remoteAddr, table, playerID string) {
	logger.WithFields(logrus.Fields{
		"remote": remoteAddr,
		"table":  table,
		"player": playerID,
	}).Info("WebSocket connected")
}

// LogWebSocketDisconnect logs a table client disconnecting.
func LogWebSocketDisconnect(logger *logrus.Logger, remoteAddr, table, playerID string, err error) {
	fields := logrus.Fields{
		"remote": remoteAddr,
		"table":  table,
		"player": playerID,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("WebSocket disconnected")
}
