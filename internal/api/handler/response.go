package handler

import (
	"github.com/labstack/echo/v4"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"statusCode"`
}

// Success writes data with an optional message under status.
func Success(c echo.Context, status int, data any, message string) error {
	return c.JSON(status, Envelope{
		Success:    true,
		Data:       data,
		Message:    message,
		StatusCode: status,
	})
}

// Failure writes an error envelope.
func Failure(c echo.Context, status int, msg string) error {
	return c.JSON(status, Envelope{
		Success:    false,
		Error:      msg,
		StatusCode: status,
	})
}
