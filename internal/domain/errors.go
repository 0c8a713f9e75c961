package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can decide how to propagate them.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindTransientInfra ErrorKind = "transient_infra"
	KindDetection      ErrorKind = "detection"
	KindTimeout        ErrorKind = "timeout"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
	KindInternal       ErrorKind = "internal"
)

type AppError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Kind       ErrorKind `json:"-"`
	Err        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so copies produced by WithError still satisfy errors.Is
// against the predefined sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Kind:       e.Kind,
		Err:        err,
	}
}

// KindOf returns the kind of the first AppError in the chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindInternal
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
		Kind:       KindInternal,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
		Kind:       KindValidation,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
		Kind:       KindNotFound,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
		Kind:       KindValidation,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Rate limit exceeded, please try again later",
		StatusCode: 429,
		Kind:       KindValidation,
	}

	// Media errors
	ErrUnsupportedMedia = &AppError{
		Code:       "UNSUPPORTED_MEDIA",
		Message:    "Unsupported media type",
		StatusCode: 415,
		Kind:       KindValidation,
	}

	ErrMediaTooLarge = &AppError{
		Code:       "MEDIA_TOO_LARGE",
		Message:    "Media file exceeds the maximum allowed size",
		StatusCode: 413,
		Kind:       KindValidation,
	}

	ErrMediaNotFound = &AppError{
		Code:       "MEDIA_NOT_FOUND",
		Message:    "Media item not found",
		StatusCode: 404,
		Kind:       KindNotFound,
	}

	ErrMediaExists = &AppError{
		Code:       "MEDIA_ALREADY_EXISTS",
		Message:    "Media with identical content was already ingested",
		StatusCode: 409,
		Kind:       KindConflict,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
		Kind:       KindDetection,
	}

	ErrDetectionFailed = &AppError{
		Code:       "DETECTION_FAILED",
		Message:    "Face detection failed for the given media",
		StatusCode: 422,
		Kind:       KindDetection,
	}

	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the query media",
		StatusCode: 422,
		Kind:       KindDetection,
	}

	// Face errors
	ErrFaceNotFound = &AppError{
		Code:       "FACE_NOT_FOUND",
		Message:    "Face not found",
		StatusCode: 404,
		Kind:       KindNotFound,
	}

	ErrInvalidEmbedding = &AppError{
		Code:       "INVALID_EMBEDDING",
		Message:    "Embedding dimension does not match the corpus dimension",
		StatusCode: 422,
		Kind:       KindValidation,
	}

	// Job errors
	ErrJobNotFound = &AppError{
		Code:       "JOB_NOT_FOUND",
		Message:    "Job not found",
		StatusCode: 404,
		Kind:       KindNotFound,
	}

	ErrJobTerminal = &AppError{
		Code:       "JOB_TERMINAL",
		Message:    "Job already reached a terminal state",
		StatusCode: 409,
		Kind:       KindConflict,
	}

	ErrStaleJobState = &AppError{
		Code:       "STALE_JOB_STATE",
		Message:    "Job state changed concurrently",
		StatusCode: 409,
		Kind:       KindConflict,
	}

	ErrJobTimeout = &AppError{
		Code:       "JOB_TIMEOUT",
		Message:    "Job exceeded the hard execution ceiling",
		StatusCode: 504,
		Kind:       KindTimeout,
	}

	// Infrastructure errors
	ErrStoreUnavailable = &AppError{
		Code:       "STORE_UNAVAILABLE",
		Message:    "Persistent store unavailable",
		StatusCode: 503,
		Kind:       KindTransientInfra,
	}

	ErrDetectorUnavailable = &AppError{
		Code:       "DETECTOR_UNAVAILABLE",
		Message:    "Face detection service unavailable",
		StatusCode: 503,
		Kind:       KindTransientInfra,
	}

	// Search errors
	ErrInvalidThreshold = &AppError{
		Code:       "INVALID_THRESHOLD",
		Message:    "Threshold must be between 0 and 1",
		StatusCode: 422,
		Kind:       KindValidation,
	}

	ErrInvalidTopK = &AppError{
		Code:       "INVALID_TOP_K",
		Message:    "top_k must be between 1 and 100",
		StatusCode: 422,
		Kind:       KindValidation,
	}
)
