package extractor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voice-geo-go/internal/logger"
	"voice-geo-go/internal/types"
)

// Extractor tags named entities in a transcript.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]types.Entity, error)
}

// wireEntity is the tagger's record shape: {"entity": "...", "type": "GPE"}.
type wireEntity struct {
	Entity string `json:"entity"`
	Type   string `json:"type"`
}

func toEntities(in []wireEntity) []types.Entity {
	out := make([]types.Entity, 0, len(in))
	for _, w := range in {
		if strings.TrimSpace(w.Entity) == "" {
			continue
		}
		out = append(out, types.NewEntity(w.Entity, w.Type))
	}
	return out
}

const (
	// DefaultTimeout is the per-request HTTP timeout when Options leaves it unset.
	DefaultTimeout = 25 * time.Second
	// RetryBudget is the longest any backend keeps retrying one transcript.
	RetryBudget = llmMaxRetryTime

	nerMaxRetryTime = 20 * time.Second
	llmMaxRetryTime = 45 * time.Second
)

// Options selects and configures a backend.
type Options struct {
	Backend  string
	NERURL   string
	LLMURL   string
	LLMModel string
	LLMKey   string
	Mock     bool
	Timeout  time.Duration
}

func New(opts Options, log *logger.Logger) (Extractor, error) {
	if opts.Mock {
		return NewMock(), nil
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	switch strings.ToLower(opts.Backend) {
	case "", "ner":
		if opts.NERURL == "" {
			return nil, fmt.Errorf("NER_URL not set")
		}
		return NewNER(opts.NERURL, opts.Timeout, log), nil
	case "llm":
		if opts.LLMURL == "" || opts.LLMKey == "" {
			return nil, fmt.Errorf("llm gateway not configured")
		}
		return NewLLM(opts.LLMURL, opts.LLMModel, opts.LLMKey, opts.Timeout, log), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown extract backend: %s", opts.Backend)
	}
}
