package denoise

import (
	"context"
	"errors"
	"testing"

	"voice-geo-go/internal/audio"
	"voice-geo-go/internal/types"
)

func TestFFmpegUnavailable(t *testing.T) {
	f := &FFmpeg{Bin: audio.FFmpeg{Path: "/nonexistent/ffmpeg-binary"}}
	_, err := f.Denoise(context.Background(), types.PCM{Samples: make([]float32, 160), SampleRate: 16000})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if _, err := NewFFmpeg("").Denoise(context.Background(), types.PCM{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("empty input err = %v, want ErrUnavailable", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{"ffmpeg", false},
		{"", false},
		{"none", false},
		{"rnnoise", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			_, err := New(tt.backend, "")
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) err = %v", tt.backend, err)
			}
		})
	}
}

func TestNoop(t *testing.T) {
	in := types.PCM{Samples: []float32{0.1, -0.1}, SampleRate: 16000}
	out, err := Noop{}.Denoise(context.Background(), in)
	if err != nil || len(out.Samples) != 2 {
		t.Errorf("Noop = %+v, %v", out, err)
	}
}
