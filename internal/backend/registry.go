package backend

import (
	"context"
	"fmt"

	"subforge/pkg/log"
)

// Settings selects and configures one backend variant.
type Settings struct {
	Kind    string
	HTTP    HTTPConfig
	Whisper WhisperCPPConfig
	AWS     AWSConfig
}

// New builds the configured Transcriber variant. Unknown kinds are a
// configuration error.
func New(ctx context.Context, settings Settings, logger *log.Logger) (Transcriber, error) {
	switch settings.Kind {
	case "http":
		return NewHTTPBackend(settings.HTTP, logger)
	case "whisper-local":
		return NewWhisperCPP(settings.Whisper, logger)
	case "aws-transcribe":
		return NewAWSTranscribeFromEnv(ctx, settings.AWS, logger)
	default:
		return nil, fmt.Errorf("unknown transcription backend %q", settings.Kind)
	}
}
