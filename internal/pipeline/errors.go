package pipeline

import (
	"errors"
	"fmt"
	"net/http"

	"voice-geo-go/internal/types"
)

// Stage names a pipeline step in errors, logs and metrics.
type Stage string

const (
	StageIngest     Stage = "ingest"
	StageNormalize  Stage = "normalize"
	StageDenoise    Stage = "denoise"
	StageTranscribe Stage = "transcribe"
	StageExtract    Stage = "extract"
	StageResolve    Stage = "resolve"
)

// StageError tags a failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ErrorStage returns the failing stage, or "" when err did not come from a run.
func ErrorStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Kind classifies err for the client.
func Kind(err error) string {
	switch {
	case errors.Is(err, types.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, types.ErrTimeout):
		return "timeout"
	case errors.Is(err, types.ErrNetwork):
		return "network"
	case errors.Is(err, types.ErrTranscription):
		return "transcription"
	default:
		return "stage_failure"
	}
}

// HTTPStatus maps err to a response status.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "unsupported_format":
		return http.StatusUnsupportedMediaType
	case "timeout":
		return http.StatusGatewayTimeout
	case "network", "transcription":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the client-facing description of a failed run.
type ErrorBody struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func Describe(err error) ErrorBody {
	return ErrorBody{Stage: string(ErrorStage(err)), Kind: Kind(err), Message: err.Error()}
}
