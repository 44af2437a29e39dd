package types

import "errors"

// Error kinds shared by the ingest, normalize and transcribe stages.
var (
	ErrNetwork           = errors.New("network error")
	ErrTimeout           = errors.New("timeout")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrTranscription     = errors.New("transcription failure")
	ErrStageFailure      = errors.New("pipeline stage failure")
)
