package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"voice-geo-go/internal/types"
)

// PCMHTTP posts raw float32 samples as a JSON array to a self-hosted whisper
// service and reads back its segment list.
type PCMHTTP struct {
	URL          string
	Client       *http.Client
	MaxRetryTime time.Duration
}

func NewPCMHTTP(url string, timeout time.Duration) (*PCMHTTP, error) {
	if url == "" {
		return nil, fmt.Errorf("invalid url for PCMHTTP transcriber %q", url)
	}
	return &PCMHTTP{URL: url, Client: &http.Client{Timeout: timeout}, MaxRetryTime: DefaultMaxRetryTime}, nil
}

type pcmHTTPResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (p *PCMHTTP) Transcribe(ctx context.Context, pcm types.PCM) (types.Transcript, error) {
	payload, err := json.Marshal(pcm.Samples)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("%w: %v", types.ErrTranscription, err)
	}
	var out pcmHTTPResponse
	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}
	if err := doJSON(ctx, p.Client, build, &out, p.MaxRetryTime); err != nil {
		return types.Transcript{}, fmt.Errorf("%w: %v", types.ErrTranscription, err)
	}
	tr := types.Transcript{FullText: out.Text, Language: out.Language}
	for _, s := range out.Segments {
		tr.Segments = append(tr.Segments, types.Segment{Text: s.Text, Start: s.Start, End: s.End})
	}
	return Normalize(tr), nil
}
