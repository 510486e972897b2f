package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeRoomNotFound     = "room_not_found"
	ErrCodePostingDisabled  = "posting_disabled"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeEmptyContent     = "empty_content"
	ErrCodeInvalidSender    = "invalid_sender"
	ErrCodeMalformedRequest = "malformed_request"
	ErrCodeStoreUnavailable = "store_unavailable"
)

var (
	ErrRoomNotFound     = coreError(ErrCodeRoomNotFound, "room not found")
	ErrPostingDisabled  = coreError(ErrCodePostingDisabled, "web post is disabled")
	ErrUnauthorized     = coreError(ErrCodeUnauthorized, "invalid token")
	ErrEmptyContent     = coreError(ErrCodeEmptyContent, "cannot send empty message")
	ErrInvalidSender    = coreError(ErrCodeInvalidSender, "invalid nickname, use a human's nickname instead")
	ErrMalformedRequest = coreError(ErrCodeMalformedRequest, "unable to parse request")
	ErrStoreUnavailable = coreError(ErrCodeStoreUnavailable, "store unavailable")
)

// Error wraps a code and human-readable message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func coreError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// CodeOf returns the domain error code carried by err, or "" if err is not a domain error.
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsValidation reports whether err is a caller mistake that must not be retried.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case ErrCodeRoomNotFound, ErrCodePostingDisabled, ErrCodeUnauthorized,
		ErrCodeEmptyContent, ErrCodeInvalidSender, ErrCodeMalformedRequest:
		return true
	default:
		return false
	}
}
