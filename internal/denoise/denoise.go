package denoise

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"voice-geo-go/internal/audio"
	"voice-geo-go/internal/types"
)

// ErrUnavailable means the denoiser cannot process this input; callers keep
// the original audio.
var ErrUnavailable = errors.New("denoiser unavailable")

type Denoiser interface {
	Denoise(ctx context.Context, pcm types.PCM) (types.PCM, error)
}

// Noop passes audio through untouched.
type Noop struct{}

func (Noop) Denoise(_ context.Context, pcm types.PCM) (types.PCM, error) { return pcm, nil }

// DefaultFilter approximates a stationary noise gate at ~75% reduction.
const DefaultFilter = "highpass=f=200,afftdn=nr=12:nf=-40"

// FFmpeg pipes audio through an ffmpeg filter graph over stdin/stdout.
type FFmpeg struct {
	Bin    audio.FFmpeg
	Filter string
}

func NewFFmpeg(path string) *FFmpeg {
	return &FFmpeg{Bin: audio.FFmpeg{Path: path}, Filter: DefaultFilter}
}

func (f *FFmpeg) Denoise(ctx context.Context, pcm types.PCM) (types.PCM, error) {
	if len(pcm.Samples) == 0 || pcm.SampleRate <= 0 {
		return types.PCM{}, ErrUnavailable
	}
	if !f.Bin.Available() {
		return types.PCM{}, ErrUnavailable
	}
	filter := f.Filter
	if filter == "" {
		filter = DefaultFilter
	}
	cmd := f.Bin.Command(ctx,
		"-f", "wav", "-i", "pipe:0",
		"-af", filter,
		"-ac", "1", "-ar", fmt.Sprint(pcm.SampleRate), "-c:a", "pcm_s16le",
		"-f", "wav", "pipe:1",
	)
	cmd.Stdin = bytes.NewReader(audio.WAVBytes(pcm))
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return types.PCM{}, fmt.Errorf("ffmpeg denoise: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	cleaned, err := audio.DecodeWAV(out.Bytes())
	if err != nil {
		return types.PCM{}, fmt.Errorf("decode denoised audio: %w", err)
	}
	return cleaned, nil
}

// New picks a backend by name.
func New(backend, ffmpegPath string) (Denoiser, error) {
	switch strings.ToLower(backend) {
	case "", "ffmpeg":
		return NewFFmpeg(ffmpegPath), nil
	case "none", "noop":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown denoise backend: %s", backend)
	}
}
