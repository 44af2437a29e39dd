package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"voice-geo-go/internal/audio"
	"voice-geo-go/internal/logger"
	"voice-geo-go/internal/types"
)

const (
	defaultBlockSize = 1024
	defaultMaxBytes  = 64 << 20
)

// Why a stream read stopped before EOF.
const (
	cutDeadline = "deadline"
	cutSizeCap  = "size_cap"
)

// Source describes where to acquire audio from. Stream sources set URL;
// upload, microphone and spool sources carry Data directly.
type Source struct {
	Provenance  types.Provenance
	URL         string
	Data        []byte
	ContentType string
	Name        string
}

type Fetcher struct {
	Client    *http.Client
	BlockSize int
	MaxBytes  int
	Log       *logger.Logger
}

func NewFetcher(log *logger.Logger) *Fetcher {
	return &Fetcher{
		// the per-call deadline bounds the request; no client-wide timeout
		Client:    &http.Client{},
		BlockSize: defaultBlockSize,
		MaxBytes:  defaultMaxBytes,
		Log:       log.Component("ingest"),
	}
}

// Fetch acquires the clip. Stream reads continue until EOF or deadline; when
// the deadline fires after some bytes arrived, those bytes are returned with
// Truncated set instead of an error.
func (f *Fetcher) Fetch(ctx context.Context, src Source, deadline time.Duration) (types.AudioClip, error) {
	if src.Provenance != types.ProvenanceStream {
		if len(src.Data) == 0 {
			return types.AudioClip{}, fmt.Errorf("empty %s payload: %w", src.Provenance, types.ErrUnsupportedFormat)
		}
		data := append([]byte(nil), src.Data...)
		return types.AudioClip{
			Data:       data,
			Format:     audio.DetectFormat(data, src.ContentType, src.Name),
			Provenance: src.Provenance,
			Source:     src.Name,
		}, nil
	}
	return f.fetchStream(ctx, src, deadline)
}

func (f *Fetcher) fetchStream(ctx context.Context, src Source, deadline time.Duration) (types.AudioClip, error) {
	log := f.Log.With("url", src.URL).With("deadline", deadline.String())
	fetchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, src.URL, nil)
	if err != nil {
		return types.AudioClip{}, fmt.Errorf("build request: %v: %w", err, types.ErrNetwork)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		if fetchCtx.Err() != nil {
			return types.AudioClip{}, fmt.Errorf("connect %s: %v: %w", src.URL, err, types.ErrTimeout)
		}
		return types.AudioClip{}, fmt.Errorf("connect %s: %v: %w", src.URL, err, types.ErrNetwork)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.AudioClip{}, fmt.Errorf("stream %s: http %d: %w", src.URL, resp.StatusCode, types.ErrNetwork)
	}

	block := f.BlockSize
	if block <= 0 {
		block = defaultBlockSize
	}
	buf := make([]byte, block)
	var (
		data      []byte
		truncated bool
		cutReason string
	)
	for {
		n, rerr := resp.Body.Read(buf)
		data = append(data, buf[:n]...)
		if f.MaxBytes > 0 && len(data) >= f.MaxBytes {
			truncated, cutReason = true, cutSizeCap
			break
		}
		if rerr == nil {
			continue
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			if len(data) == 0 {
				return types.AudioClip{}, fmt.Errorf("no audio received before deadline: %w", types.ErrTimeout)
			}
			truncated, cutReason = true, cutDeadline
			break
		}
		if ctx.Err() != nil {
			return types.AudioClip{}, fmt.Errorf("stream read: %v: %w", ctx.Err(), types.ErrTimeout)
		}
		return types.AudioClip{}, fmt.Errorf("stream read: %v: %w", rerr, types.ErrNetwork)
	}
	if len(data) == 0 {
		return types.AudioClip{}, fmt.Errorf("stream %s returned no data: %w", src.URL, types.ErrNetwork)
	}
	if truncated {
		log.WithField("bytes", len(data)).WithField("reason", cutReason).Warn("stream cut short, using partial audio")
	} else {
		log.WithField("bytes", len(data)).Debug("stream fetched")
	}
	return types.AudioClip{
		Data:       data,
		Format:     audio.DetectFormat(data, resp.Header.Get("Content-Type"), src.URL),
		Provenance: types.ProvenanceStream,
		Source:     src.URL,
		Truncated:  truncated,
	}, nil
}
