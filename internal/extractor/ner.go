package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"voice-geo-go/internal/logger"
	"voice-geo-go/internal/types"
)

// NER calls a tagger service (spaCy-style) that answers POST {"text": ...}
// with either a bare entity array or {"entities": [...]}.
type NER struct {
	URL          string
	Client       *http.Client
	MaxRetryTime time.Duration
	Log          *logger.Logger
}

func NewNER(url string, timeout time.Duration, log *logger.Logger) *NER {
	return &NER{
		URL:          url,
		Client:       &http.Client{Timeout: timeout},
		MaxRetryTime: nerMaxRetryTime,
		Log:          log.Component("extractor-ner"),
	}
}

func (n *NER) Extract(ctx context.Context, text string) ([]types.Entity, error) {
	if text == "" {
		return []types.Entity{}, nil
	}
	payload, _ := json.Marshal(map[string]string{"text": text})

	var parsed []wireEntity
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := n.Client.Do(req)
		if err != nil {
			n.Log.WithError(err).Warn("ner request failed")
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("ner server error %d: %s", resp.StatusCode, string(body))
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("ner http %d: %s", resp.StatusCode, string(body)))
		}
		ents, err := decodeEntities(body)
		if err != nil {
			return backoff.Permanent(err)
		}
		parsed = ents
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = n.MaxRetryTime
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("ner extract failed: %w", err)
	}
	out := toEntities(parsed)
	n.Log.WithField("entities", len(out)).Debug("entities extracted")
	return out, nil
}

// decodeEntities accepts `[...]` or `{"entities": [...]}`.
func decodeEntities(body []byte) ([]wireEntity, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var arr []wireEntity
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, fmt.Errorf("decode entities: %w", err)
		}
		return arr, nil
	}
	var obj struct {
		Entities []wireEntity `json:"entities"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}
	return obj.Entities, nil
}
