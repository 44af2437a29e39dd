package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"voice-geo-go/internal/types"
)

// FFmpeg wraps the ffmpeg binary used for transcoding, filtering and capture.
type FFmpeg struct {
	Path string
}

func (f FFmpeg) bin() string {
	if f.Path == "" {
		return "ffmpeg"
	}
	return f.Path
}

// Available reports whether the binary can be found.
func (f FFmpeg) Available() bool {
	_, err := exec.LookPath(f.bin())
	return err == nil
}

// Command prepares an ffmpeg invocation with quiet logging.
func (f FFmpeg) Command(ctx context.Context, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, f.bin(), append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)...)
}

// Run executes ffmpeg with args, returning stderr in the error on failure.
func (f FFmpeg) Run(ctx context.Context, args ...string) error {
	cmd := f.Command(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// ToWAV converts in to mono 16-bit WAV at rate, optionally through an audio filter.
func (f FFmpeg) ToWAV(ctx context.Context, in, out string, rate int, filter string) error {
	args := []string{"-i", in}
	if filter != "" {
		args = append(args, "-af", filter)
	}
	args = append(args, "-ac", "1", "-ar", strconv.Itoa(rate), "-c:a", "pcm_s16le", "-f", "wav", out)
	return f.Run(ctx, args...)
}

// Normalizer turns an AudioClip into canonical PCM.
type Normalizer struct {
	FFmpeg FFmpeg
}

// Normalize decodes clip to 16 kHz mono. WAV is decoded in-process; other
// known containers go through ffmpeg with intermediate files in scratch.
func (n Normalizer) Normalize(ctx context.Context, clip types.AudioClip, scratch *Scratch) (types.PCM, error) {
	if len(clip.Data) == 0 {
		return types.PCM{}, fmt.Errorf("empty audio payload: %w", types.ErrUnsupportedFormat)
	}
	switch {
	case clip.Format == FormatWAV:
		pcm, err := DecodeWAV(clip.Data)
		if err == nil {
			return Resample(pcm, CanonicalRate), nil
		}
		if !n.FFmpeg.Available() {
			return types.PCM{}, fmt.Errorf("decode wav: %v: %w", err, types.ErrUnsupportedFormat)
		}
		// compressed WAV payloads (ADPCM, mu-law) are left to ffmpeg
		return n.transcode(ctx, clip, scratch)
	case Transcodable(clip.Format):
		return n.transcode(ctx, clip, scratch)
	default:
		return types.PCM{}, fmt.Errorf("format %q: %w", clip.Format, types.ErrUnsupportedFormat)
	}
}

func (n Normalizer) transcode(ctx context.Context, clip types.AudioClip, scratch *Scratch) (types.PCM, error) {
	in, err := scratch.WriteFile("input."+clip.Format, clip.Data)
	if err != nil {
		return types.PCM{}, err
	}
	out := scratch.Path("normalized.wav")
	if err := n.FFmpeg.ToWAV(ctx, in, out, CanonicalRate, ""); err != nil {
		return types.PCM{}, fmt.Errorf("transcode %s: %v: %w", clip.Format, err, types.ErrUnsupportedFormat)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		return types.PCM{}, fmt.Errorf("read transcoded audio: %w", err)
	}
	pcm, err := DecodeWAV(b)
	if err != nil {
		return types.PCM{}, fmt.Errorf("decode transcoded audio: %v: %w", err, types.ErrUnsupportedFormat)
	}
	return pcm, nil
}
