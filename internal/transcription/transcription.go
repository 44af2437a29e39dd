package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"voice-geo-go/internal/audio"
	"voice-geo-go/internal/logger"
	"voice-geo-go/internal/types"
)

// DefaultMaxRetryTime bounds how long a backend keeps retrying one clip.
const DefaultMaxRetryTime = 30 * time.Second

// Transcriber turns canonical PCM into an ordered transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm types.PCM) (types.Transcript, error)
}

// OpenAI talks to any OpenAI-compatible /audio/transcriptions endpoint
// (OpenAI, faster-whisper-server, whisper.cpp server, LocalAI).
type OpenAI struct {
	BaseURL      string
	APIKey       string
	Model        string
	Client       *http.Client
	MaxRetryTime time.Duration
	Log          *logger.Logger
}

func NewOpenAI(baseURL, apiKey, model string, timeout time.Duration, log *logger.Logger) *OpenAI {
	return &OpenAI{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		Model:        model,
		Client:       &http.Client{Timeout: timeout},
		MaxRetryTime: DefaultMaxRetryTime,
		Log:          log.Component("transcription"),
	}
}

type verboseJSON struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (o *OpenAI) Transcribe(ctx context.Context, pcm types.PCM) (types.Transcript, error) {
	if len(pcm.Samples) == 0 {
		return types.Transcript{}, fmt.Errorf("no audio samples: %w", types.ErrTranscription)
	}
	wav := audio.WAVBytes(pcm)
	endpoint := o.BaseURL + "/audio/transcriptions"

	var out verboseJSON
	build := func() (*http.Request, error) {
		var b bytes.Buffer
		w := multipart.NewWriter(&b)
		_ = w.WriteField("model", o.Model)
		_ = w.WriteField("response_format", "verbose_json")
		_ = w.WriteField("timestamp_granularities[]", "segment")
		fw, err := w.CreateFormFile("file", "audio.wav")
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(wav); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &b)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		if o.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+o.APIKey)
		}
		return req, nil
	}
	if err := doJSON(ctx, o.Client, build, &out, o.MaxRetryTime); err != nil {
		o.Log.WithError(err).Warn("transcription request failed")
		return types.Transcript{}, fmt.Errorf("%w: %v", types.ErrTranscription, err)
	}

	tr := types.Transcript{FullText: out.Text, Language: out.Language}
	for _, s := range out.Segments {
		tr.Segments = append(tr.Segments, types.Segment{Text: s.Text, Start: s.Start, End: s.End})
	}
	if len(tr.Segments) == 0 && strings.TrimSpace(out.Text) != "" {
		// plain json responses carry no timings; cover the whole clip
		tr.Segments = []types.Segment{{Text: out.Text, Start: 0, End: pcm.Duration()}}
	}
	tr = Normalize(tr)
	o.Log.WithField("segments", len(tr.Segments)).WithField("language", tr.Language).Info("transcription complete")
	return tr, nil
}

// doJSON retries network errors and 5xx responses with exponential backoff;
// 4xx responses and undecodable bodies are permanent.
func doJSON(ctx context.Context, client *http.Client, build func() (*http.Request, error), target any, maxElapsed time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed
	op := func() error {
		req, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("http %d: %s", resp.StatusCode, string(body)))
		}
		if len(body) == 0 {
			return fmt.Errorf("empty body")
		}
		if err := json.Unmarshal(body, target); err != nil {
			return backoff.Permanent(fmt.Errorf("json decode error: %v body=%s", err, string(body)))
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

// Normalize trims segment text, orders segments by start time, enforces
// start <= end and fills FullText from the segments when missing.
func Normalize(tr types.Transcript) types.Transcript {
	segs := make([]types.Segment, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		s.Text = strings.TrimSpace(s.Text)
		if s.Start < 0 {
			s.Start = 0
		}
		if s.End < s.Start {
			s.End = s.Start
		}
		segs = append(segs, s)
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
	tr.Segments = segs
	tr.FullText = strings.TrimSpace(tr.FullText)
	if tr.FullText == "" {
		parts := make([]string, 0, len(segs))
		for _, s := range segs {
			if s.Text != "" {
				parts = append(parts, s.Text)
			}
		}
		tr.FullText = strings.Join(parts, " ")
	}
	return tr
}
