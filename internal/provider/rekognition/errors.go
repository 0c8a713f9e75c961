package rekognition

import "errors"

var (
	// ErrInvalidCredentials indicates that AWS credentials are invalid or missing
	ErrInvalidCredentials = errors.New("invalid or missing AWS credentials")

	// ErrInvalidImage indicates Rekognition rejected the image bytes
	ErrInvalidImage = errors.New("image rejected by rekognition")

	// ErrThrottled indicates the account exceeded its Rekognition throughput
	ErrThrottled = errors.New("rekognition request throttled")
)
