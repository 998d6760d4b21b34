package app

import "errors"

var (
	ErrContentNotFound = errors.New("content not found")
	// ErrForbidden is returned when a user touches someone else's content.
	ErrForbidden = errors.New("content forbidden")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrContentNotReady indicates the content has not been processed yet.
	ErrContentNotReady    = errors.New("content not ready")
	ErrArchiveUnavailable = errors.New("archive unavailable")
	ErrJobsUnavailable    = errors.New("job status unavailable for this queue backend")
)
