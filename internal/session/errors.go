package session

import (
	"errors"

	"github.com/snarg/medscribe/internal/backend"
)

var (
	ErrAlreadyRecording = errors.New("a recording is already in progress")
	ErrNotRecording     = errors.New("not recording")
	ErrSaveInProgress   = errors.New("a save is already in progress")
	ErrInvalidLanguage  = errors.New("invalid language tag")
)

// ErrorKind classifies the failure shown to the user.
type ErrorKind string

const (
	KindAuthRequired      ErrorKind = "auth_required"
	KindPermissionDenied  ErrorKind = "permission_denied"
	KindUploadFailed      ErrorKind = "upload_failed"
	KindTranslationFailed ErrorKind = "translation_failed"
	KindSaveFailed        ErrorKind = "save_failed"
	KindDeleteFailed      ErrorKind = "delete_failed"
	KindFetchFailed       ErrorKind = "fetch_failed"
)

// User-facing messages.
const (
	msgLoginToTranscribe = "Please login to transcribe audio"
	msgLoginToSave       = "Please login to save transcriptions"
	msgMicrophone        = "Microphone access is required for recording."
	msgProcessFailed     = "Failed to process recording. Please try again."
	msgTranslateFailed   = "Translation failed. Please try again."
	msgNothingToSave     = "Nothing to save. Record something first."
	msgSaveFailed        = "Failed to save. Please try again."
)

// ErrorInfo is the single user-visible error slot of a session.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
}

// Error is returned by operations that also record a user-visible error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) info() *ErrorInfo {
	return &ErrorInfo{Kind: e.Kind, Message: e.Message, Detail: detail(e.Err)}
}

// KindOf returns the ErrorKind carried by err, or "" when there is none.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// detail returns the backend's own message when err carries one.
func detail(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
