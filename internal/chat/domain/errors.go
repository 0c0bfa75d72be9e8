package domain

import "errors"

// Chat error kinds. Callers match them with errors.Is.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrUploadFailure    = errors.New("upload failure")
	ErrWriteFailure     = errors.New("write failure")
	ErrIdentityMissing  = errors.New("identity missing")
	ErrCaptureFailure   = errors.New("capture failure")
	ErrInvalidInput     = errors.New("invalid input")
)
