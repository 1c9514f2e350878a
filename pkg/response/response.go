package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the JSON envelope of every REST reply.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Message is the data of replies that only confirm an action.
type Message struct {
	Message string `json:"message"`
}

// Error codes carried in ErrorInfo.Code.
const (
	CodeBadRequest    = "BAD_REQUEST"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeUpstream      = "UPSTREAM_FAILURE"
	CodeInternalError = "INTERNAL_ERROR"
)

var codeStatus = map[string]int{
	CodeBadRequest:    http.StatusBadRequest,
	CodeUnauthorized:  http.StatusUnauthorized,
	CodeForbidden:     http.StatusForbidden,
	CodeNotFound:      http.StatusNotFound,
	CodeUpstream:      http.StatusBadGateway,
	CodeInternalError: http.StatusInternalServerError,
}

// StatusFor returns the HTTP status of an error code. Unknown codes are 500.
func StatusFor(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Success sends a successful response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// Created sends a 201 created response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// OK sends a 200 response carrying a confirmation message.
func OK(c *gin.Context, message string) {
	Success(c, Message{Message: message})
}

// Fail sends an error response with the status that belongs to code.
func Fail(c *gin.Context, code, message string) {
	Error(c, StatusFor(code), code, message)
}

// Error sends an error response with an explicit status.
func Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message},
	})
}

func BadRequest(c *gin.Context, message string)    { Fail(c, CodeBadRequest, message) }
func Unauthorized(c *gin.Context, message string)  { Fail(c, CodeUnauthorized, message) }
func Forbidden(c *gin.Context, message string)     { Fail(c, CodeForbidden, message) }
func NotFound(c *gin.Context, message string)      { Fail(c, CodeNotFound, message) }
func BadGateway(c *gin.Context, message string)    { Fail(c, CodeUpstream, message) }
func InternalError(c *gin.Context, message string) { Fail(c, CodeInternalError, message) }
