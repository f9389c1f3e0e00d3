package server

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"llmgate/internal/core"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware takes the request ID from X-Request-ID, generating a
// UUID when the client sent none. The ID is echoed in the response and
// stored in the request context for provider calls and logs.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(requestIDHeader, id)
			c.SetRequest(req.WithContext(core.WithRequestID(req.Context(), id)))
			return next(c)
		}
	}
}
