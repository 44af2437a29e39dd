package transcription

import (
	"fmt"
	"strings"
	"time"

	"voice-geo-go/internal/logger"
)

// New picks a backend by name. mock short-circuits every other setting.
func New(backend, url, apiKey, model string, timeout time.Duration, mock bool, log *logger.Logger) (Transcriber, error) {
	if mock {
		return Mock{}, nil
	}
	switch strings.ToLower(backend) {
	case "", "openai":
		if url == "" {
			return nil, fmt.Errorf("TRANSCRIBE_URL not set")
		}
		return NewOpenAI(url, apiKey, model, timeout, log), nil
	case "pcm-http":
		return NewPCMHTTP(url, timeout)
	case "mock":
		return Mock{}, nil
	default:
		return nil, fmt.Errorf("unknown transcription backend: %s", backend)
	}
}
