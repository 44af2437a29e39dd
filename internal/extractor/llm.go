package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"voice-geo-go/internal/logger"
	"voice-geo-go/internal/types"
)

// LLM asks an OpenAI-compatible chat gateway to tag entities.
type LLM struct {
	GatewayURL   string
	Model        string
	APIKey       string
	HTTPTimeout  time.Duration
	MaxRetryTime time.Duration
	Log          *logger.Logger
}

func NewLLM(gatewayURL, model, apiKey string, timeout time.Duration, log *logger.Logger) *LLM {
	return &LLM{
		GatewayURL:   gatewayURL,
		Model:        model,
		APIKey:       apiKey,
		HTTPTimeout:  timeout,
		MaxRetryTime: llmMaxRetryTime,
		Log:          log.Component("extractor-llm"),
	}
}

// BuildPrompt asks for spaCy-compatible labels so both backends feed the
// resolver the same way.
func BuildPrompt(transcript string) string {
	prompt := `You are a named-entity tagger for police and fire radio transcripts.

Tag every named entity in the TRANSCRIPT. Use exactly these labels:
- GPE: cities, states, countries, neighbourhoods
- LOC: streets, rivers, parks, other non-political locations
- FAC: buildings, airports, bridges, highways
- ORG: agencies, companies, departments
- PERSON: people
- OTHER: anything else

Keep each entity's text exactly as it appears. Keep transcript order.
Do not invent entities. Do not add commentary.

Return ONLY this JSON:
{"entities": [{"entity": "", "type": ""}]}

TRANSCRIPT:
%s
`
	return fmt.Sprintf(prompt, transcript)
}

func (l *LLM) Extract(ctx context.Context, text string) ([]types.Entity, error) {
	if strings.TrimSpace(text) == "" {
		return []types.Entity{}, nil
	}
	reqBody := map[string]any{
		"model": l.Model,
		"messages": []map[string]string{
			{"role": "user", "content": BuildPrompt(text)},
		},
		"temperature": 0.0,
	}
	data, _ := json.Marshal(reqBody)
	l.Log.WithField("payload_len", len(data)).Debug("llm request")

	var (
		extracted []wireEntity
		lastErr   error
	)
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, l.HTTPTimeout)
		defer cancel()

		req, _ := http.NewRequestWithContext(callCtx, http.MethodPost, l.GatewayURL, bytes.NewReader(data))
		req.Header.Set("Authorization", "Bearer "+l.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			lastErr = err
			l.Log.WithError(err).Warn("llm request failed")
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		l.Log.WithField("http_status", resp.StatusCode).Debug("llm raw:\n" + string(body))

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			lastErr = fmt.Errorf("llm http %d: %s", resp.StatusCode, string(body))
			return backoff.Permanent(lastErr)
		}
		if resp.StatusCode < 300 {
			if inner := extractContentFromChoices(body); inner != "" {
				if ents, err := decodeEntities([]byte(inner)); err == nil {
					extracted, lastErr = ents, nil
					return nil
				}
			}
			if fallback := extractJSON(string(body)); fallback != "" {
				if ents, err := decodeEntities([]byte(fallback)); err == nil {
					extracted, lastErr = ents, nil
					return nil
				}
			}
		}
		// bad status or unparseable output: worth another try
		lastErr = fmt.Errorf("no entity JSON found in LLM output (http %d)", resp.StatusCode)
		return lastErr
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = l.MaxRetryTime
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, fmt.Errorf("llm extract failed: %w", lastErr)
	}
	out := toEntities(extracted)
	l.Log.WithField("entities", len(out)).Info("llm entities parsed")
	return out, nil
}

// extractContentFromChoices attempts to read openai-style choices[0].message.content JSON
func extractContentFromChoices(body []byte) string {
	var obj struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &obj); err != nil || len(obj.Choices) == 0 {
		return ""
	}
	return extractJSON(obj.Choices[0].Message.Content)
}

// extractJSON finds the first balanced JSON object or array in a string.
// It strips common markdown fences first.
func extractJSON(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, r := range []string{"```json", "```text", "```"} {
		s = strings.ReplaceAll(s, r, "")
	}

	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return ""
	}
	open, closing := s[start], byte('}')
	if open == '[' {
		closing = ']'
	}

	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}
