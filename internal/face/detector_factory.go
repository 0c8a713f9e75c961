package face

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/audit"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/config"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/provider"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/provider/rekognition"
)

// ProviderType defines supported embedding providers
type ProviderType string

const (
	// ProviderTypeDeepFace is the DeepFace HTTP service
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeMock is the deterministic in-process detector for dev/test
	ProviderTypeMock ProviderType = "mock"
)

// AttributesType selects the optional attribute enricher
type AttributesType string

const (
	AttributesNone        AttributesType = "none"
	AttributesRekognition AttributesType = "rekognition"
)

// NewDetector creates the Detector described by configuration.
//
// Environment variables:
//   - PROVIDER_TYPE: "deepface" or "mock" (default: "deepface")
//   - DEEPFACE_URL, DEEPFACE_MODEL, DEEPFACE_DETECTOR, DEEPFACE_ACTIONS
//   - ATTRIBUTES_PROVIDER: "none" or "rekognition" (default: "none")
//   - AWS_REGION plus the AWS SDK credential chain when rekognition is enabled
//
// A nil audit logger disables call auditing.
func NewDetector(ctx context.Context, cfg *config.Config, logger *slog.Logger, auditLogger audit.Logger) (provider.Detector, error) {
	var detector provider.Detector

	providerType := ProviderType(cfg.ProviderType)
	switch providerType {
	case ProviderTypeDeepFace, "":
		providerType = ProviderTypeDeepFace
		detector = createDeepFaceProvider(cfg)
	case ProviderTypeMock:
		detector = mock.New()
	default:
		return nil, fmt.Errorf("unknown provider type: %s (supported: %s, %s)",
			cfg.ProviderType, ProviderTypeDeepFace, ProviderTypeMock)
	}

	switch AttributesType(cfg.AttributesProvider) {
	case AttributesNone, "":
	case AttributesRekognition:
		analyzer, err := rekognition.NewAnalyzer(ctx,
			rekognition.Config{Region: cfg.AWSRegion, MinConfidence: rekognition.DefaultConfig().MinConfidence},
			rekognition.WithAuditLogger(auditLogger),
		)
		if err != nil {
			return nil, fmt.Errorf("create rekognition analyzer: %w", err)
		}
		detector = provider.NewEnriched(detector, analyzer, logger.With("component", "attributes"))
	default:
		return nil, fmt.Errorf("unknown attributes provider: %s (supported: %s, %s)",
			cfg.AttributesProvider, AttributesNone, AttributesRekognition)
	}

	if auditLogger != nil {
		detector = provider.NewAudited(detector, string(providerType), auditLogger)
	}

	return detector, nil
}

// createDeepFaceProvider creates a DeepFace provider instance
func createDeepFaceProvider(cfg *config.Config) *deepface.Provider {
	deepfaceConfig := deepface.DefaultConfig()

	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}
	if cfg.DeepFaceModel != "" {
		deepfaceConfig.Model = cfg.DeepFaceModel
	}
	if cfg.DeepFaceDetector != "" {
		deepfaceConfig.Detector = cfg.DeepFaceDetector
	}
	deepfaceConfig.Actions = cfg.DeepFaceActions

	return deepface.NewProvider(deepfaceConfig)
}
