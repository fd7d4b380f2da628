// Package httperr defines the API error envelope shared by every handler:
// {statusCode, statusMessage} plus a localized display message.
package httperr

import (
	"errors"
	"net/http"

	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/i18n"
	"github.com/gin-gonic/gin"
)

type Error struct {
	StatusCode    int    `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
}

func (e *Error) Error() string {
	return e.StatusMessage
}

func New(code int, message string) *Error {
	return &Error{StatusCode: code, StatusMessage: message}
}

func BadRequest(message string) *Error  { return New(http.StatusBadRequest, message) }
func Unauthorized() *Error              { return New(http.StatusUnauthorized, "Unauthorized") }
func Forbidden() *Error                 { return New(http.StatusForbidden, "Forbidden") }
func NotFound(message string) *Error    { return New(http.StatusNotFound, message) }
func Conflict(message string) *Error    { return New(http.StatusConflict, message) }
func MethodNotAllowed() *Error          { return New(http.StatusMethodNotAllowed, "Method Not Allowed") }
func Internal(message string) *Error    { return New(http.StatusInternalServerError, message) }

// Abort writes the error envelope and stops the handler chain. Unknown
// error values are reported as opaque 500s.
func Abort(c *gin.Context, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = Internal("Internal Server Error")
	}

	c.AbortWithStatusJSON(apiErr.StatusCode, gin.H{
		"statusCode":    apiErr.StatusCode,
		"statusMessage": apiErr.StatusMessage,
		"message":       i18n.Humanize(apiErr.StatusCode, apiErr.StatusMessage),
	})
}
