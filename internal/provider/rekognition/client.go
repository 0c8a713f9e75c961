package rekognition

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/smithy-go"
)

const (
	errCodeAccessDenied       = "AccessDeniedException"
	errCodeInvalidImageFormat = "InvalidImageFormatException"
	errCodeImageTooLarge      = "ImageTooLargeException"
	errCodeInvalidParameter   = "InvalidParameterException"
	errCodeThrottling         = "ThrottlingException"
	errCodeThroughputExceeded = "ProvisionedThroughputExceededException"
)

// DetectFacesAPI is the slice of the Rekognition SDK the analyzer calls
type DetectFacesAPI interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

// Client wraps the AWS Rekognition client
type Client struct {
	rekognition DetectFacesAPI
	config      Config
}

// NewClient creates a new Rekognition client with the provided configuration
// It uses the AWS default credential chain to authenticate
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		rekognition: rekognition.NewFromConfig(awsCfg),
		config:      cfg,
	}, nil
}

// detectFaces calls DetectFaces and maps AWS error codes to package errors
func (c *Client) detectFaces(ctx context.Context, input *rekognition.DetectFacesInput) (*rekognition.DetectFacesOutput, error) {
	output, err := c.rekognition.DetectFaces(ctx, input)
	if err == nil {
		return output, nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case errCodeAccessDenied:
			return nil, fmt.Errorf("detect faces: %w", ErrInvalidCredentials)
		case errCodeInvalidImageFormat, errCodeImageTooLarge, errCodeInvalidParameter:
			return nil, fmt.Errorf("detect faces: %w: %s", ErrInvalidImage, apiErr.ErrorMessage())
		case errCodeThrottling, errCodeThroughputExceeded:
			return nil, fmt.Errorf("detect faces: %w", ErrThrottled)
		}
	}
	return nil, fmt.Errorf("detect faces: %w", err)
}
