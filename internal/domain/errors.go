package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every error a service returns to a transport wraps
// exactly one of these.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrValidation      = errors.New("validation failed")
	ErrUpstream        = errors.New("upstream failure")
	ErrUnauthenticated = errors.New("authentication required")
)

var (
	ErrRoomNotFound    = fmt.Errorf("room %w", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("message %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)

	ErrNotAMember        = fmt.Errorf("%w: not a member of this room", ErrForbidden)
	ErrNotRoomLeader     = fmt.Errorf("%w: only the room leader or an administrator can do this", ErrForbidden)
	ErrLeaderCannotLeave = fmt.Errorf("%w: the leader cannot leave the room; delete it or hand over leadership", ErrForbidden)
	ErrNotMessageSender  = fmt.Errorf("%w: only the sender or an administrator can delete this message", ErrForbidden)

	ErrAlreadyMember  = fmt.Errorf("%w: already a member of this room", ErrValidation)
	ErrEmptyMessage   = fmt.Errorf("%w: message must not be empty", ErrValidation)
	ErrMessageTooLong = fmt.Errorf("%w: message is too long", ErrValidation)
	ErrMissingRoomID  = fmt.Errorf("%w: room id is required", ErrValidation)
	ErrInvalidAuthor  = fmt.Errorf("%w: invalid sender", ErrValidation)
)

// Wire error codes shared by the REST envelope and websocket error frames.
const (
	CodeNotFound       = "NOT_FOUND"
	CodeForbidden      = "FORBIDDEN"
	CodeValidation     = "BAD_REQUEST"
	CodeUpstream       = "UPSTREAM_FAILURE"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeTokenExpired   = "TOKEN_EXPIRED"
	CodeInternal       = "INTERNAL_ERROR"
	CodeUnknownFrame   = "UNKNOWN_TYPE"
	CodeMalformedFrame = "MALFORMED_FRAME"
)

// ErrorCode maps an error to its wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthorized
	case errors.Is(err, ErrUpstream):
		return CodeUpstream
	default:
		return CodeInternal
	}
}

// IsClientError reports whether err is the caller's fault and safe to show verbatim.
func IsClientError(err error) bool {
	switch ErrorCode(err) {
	case CodeNotFound, CodeForbidden, CodeValidation, CodeUnauthorized:
		return true
	}
	return false
}
