// Package errors provides standardized error handling for the signaling
// server's thin HTTP surface (health, version, and the WebSocket upgrade
// route).
//
// ErrorHandler and Recovery are the two gin middlewares cmd/signaling/main.go
// installs in the router chain: a handler reports a failure by appending an
// *AppError to c.Errors (see internal/ws/server.go), and ErrorHandler turns
// that into the standard JSON error response; Recovery turns a panic in any
// downstream handler into a 500 instead of crashing the process.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vsekai/signaling/internal/logger"
)

// ErrorHandler converts the last error appended to c.Errors, if any, into a
// JSON response: 5xx errors log at error level, 4xx at warning.
func ErrorHandler() gin.HandlerFunc {
	log := logger.HTTP()
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()

		if appErr, ok := err.Err.(*AppError); ok {
			if appErr.StatusCode >= 500 {
				log.Error().Str("code", appErr.Code).Str("details", appErr.Details).Msg(appErr.Message)
			} else {
				log.Warn().Str("code", appErr.Code).Msg(appErr.Message)
			}
			c.JSON(appErr.StatusCode, appErr.ToResponse())
			return
		}

		log.Error().Err(err.Err).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   ErrCodeInternalServer,
			Message: "An unexpected error occurred",
			Code:    ErrCodeInternalServer,
		})
	}
}

// Recovery recovers a panic in a downstream handler and responds with a 500
// instead of crashing the process.
func Recovery() gin.HandlerFunc {
	log := logger.HTTP()
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("recovered from panic")

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:   ErrCodeInternalServer,
					Message: "An unexpected error occurred",
					Code:    ErrCodeInternalServer,
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}
